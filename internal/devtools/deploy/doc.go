// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Deploy copies a firmware source variant into the project tree, then builds
and runs the project.

# Usage

	$ go tool deploy <options>
	$ go tool deploy --help

Options are single characters and can be combined in any order:

  - b: Build the project with "scons build".
  - r: Run the project with "scons run".
  - c: Replace the project sources with the controller sources.
  - k: Replace the project sources with the keyboard/mouse sources.

Sources are always replaced first, then the project is built, then it is
run. Options c and k can't be used together.

For example, to deploy the controller code and start it:

	$ go tool deploy cbr

# Directory Layout

Deploy is run from the testing directory. The controller and kbm source
trees live next to it, and the project is checked out into
aruw-edu/aruw-edu-project inside it; its src directory is replaced
entirely.

# Configuration

Paths and the build tool can be overridden in a Starlark file, deploy.star
in the working directory or the file named by the DEPLOY_CONFIG environment
variable:

	base_dir = "~/aruw"
	project_dir = wd + "/aruw-edu/aruw-edu-project"
	dest_dir = project_dir + "/src"
	tool = "pipenv run scons"

The predeclared wd is the working directory; getenv(name, default) reads an
environment variable.

# Exit Status

Deploy exits with 0 on success, with the build tool's exit status if it
fails, and with 1 on any other error.
*/
package main

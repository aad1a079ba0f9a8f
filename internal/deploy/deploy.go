// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Package deploy copies a firmware source variant into the project tree and
drives the build tool.

An invocation is a set of single-character options:

	b  build the project
	r  run the project
	c  replace the project sources with the controller sources
	k  replace the project sources with the keyboard/mouse sources

The steps always execute in the same order: sources are replaced first,
then the project is built, then it's run. Options c and k are mutually
exclusive.

The destination directory is not locked. Concurrent invocations against the
same project must be serialized by the caller.
*/
package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/afero"
)

// Usage is printed for [HelpOption] and on every usage error.
const Usage = `usage:
	deploy <options>
	deploy --help
options:
	b       build the project
	r       run the project
	c       deploy controller code
	k       deploy keyboard/mouse code
example:
	deploy cbr
`

// Env is the environment in which [Main] runs.
type Env struct {
	Args   []string // arguments without the program name
	Getenv func(string) string
	Stdout io.Writer
	Stderr io.Writer
	// Dir is the working directory that configuration paths are derived from.
	Dir string
	// FS is the filesystem sources are read from and written to.
	FS afero.Fs
	// Runner runs the build tool. If nil, an ExecRunner writing to Stdout
	// and Stderr is used.
	Runner Runner
}

// OSEnv returns the environment of the current process.
func OSEnv() (*Env, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return &Env{
		Args:   os.Args[1:],
		Getenv: os.Getenv,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Dir:    wd,
		FS:     afero.NewOsFs(),
	}, nil
}

var errorPrefix = color.New(color.FgRed, color.Bold)

// Main runs the deploy tool and returns the process exit code: 0 on success
// or help, the build tool's exit status if it fails, and 1 for every other
// error.
func Main(ctx context.Context, env *Env) int {
	err := run(ctx, env)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrHelp):
		fmt.Fprint(env.Stdout, Usage)
		return 0
	}

	errorPrefix.Fprint(env.Stderr, "error: ")
	fmt.Fprintln(env.Stderr, err)

	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr.ExitCode()
	}
	if isUsageError(err) {
		fmt.Fprintln(env.Stderr, "see 'deploy --help'")
		fmt.Fprint(env.Stdout, Usage)
	}
	return 1
}

func isUsageError(err error) bool {
	var invalid *InvalidOptionError
	return errors.Is(err, ErrNoOptions) ||
		errors.Is(err, ErrAmbiguousSource) ||
		errors.As(err, &invalid)
}

func run(ctx context.Context, env *Env) error {
	flags, err := Parse(env.Args)
	if err != nil {
		return err
	}
	if err := flags.Validate(); err != nil {
		return err
	}

	getenv := env.Getenv
	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	c, err := LoadConfig(ctx, env.FS, env.Dir, getenv)
	if err != nil {
		return err
	}

	runner := env.Runner
	if runner == nil {
		runner = &ExecRunner{Stdout: env.Stdout, Stderr: env.Stderr}
	}
	e := &Executor{
		Config: c,
		FS:     env.FS,
		Runner: runner,
	}
	return e.Execute(ctx, flags)
}

// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Serve serves the documentation for local development.

# Usage:

	$ go tool serve [flags] [dir]

Serve performs an initial build of the documentation in dir (default "docs")
and serves the output. It then watches dir for changes and rebuilds the
documentation automatically. Drafts are always included.
*/
package main

import (
	_ "embed"

	"go.astrophena.name/base/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }

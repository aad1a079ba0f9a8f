// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Build builds the documentation.

# Usage

	$ go tool build [flags] [dir]

Build reads the configuration from conf.star in the documentation source
directory dir (default "docs") and renders it into "_build/html" inside dir,
unless -dst is provided.

With -prod, draft pages are left out and links are made absolute using
the base_url from conf.star.
*/
package main

import (
	_ "embed"

	"go.astrophena.name/base/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }

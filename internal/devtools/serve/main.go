// © 2022 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"flag"
	"fmt"

	"go.astrophena.name/aruw/internal/devtools"
	"go.astrophena.name/aruw/internal/docs"
	"go.astrophena.name/base/cli"
)

func main() { cli.Main(new(app)) }

type app struct {
	listen string
}

func (a *app) Flags(fs *flag.FlagSet) {
	fs.StringVar(&a.listen, "listen", "localhost:3000", "Listen on `host:port`.")
}

func (a *app) Run(ctx context.Context) error {
	devtools.EnsureRoot()

	args := cli.GetEnv(ctx).Args
	if len(args) > 1 {
		return fmt.Errorf("%w: want at most one documentation directory", cli.ErrInvalidArgs)
	}
	dir := devtools.DocsDir
	if len(args) > 0 {
		dir = args[0]
	}

	c, err := docs.LoadConfig(ctx, dir)
	if err != nil {
		return err
	}
	return docs.Serve(ctx, c, a.listen)
}

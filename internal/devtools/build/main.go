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
	prod     bool
	skipFeed bool
	dst      string
}

func (a *app) Flags(fs *flag.FlagSet) {
	fs.BoolVar(&a.prod, "prod", false, "Build in a production mode.")
	fs.BoolVar(&a.skipFeed, "skip-feed", false, "Don't build the changelog feed.")
	fs.StringVar(&a.dst, "dst", "", "Write the output to `dir` instead of _build/html.")
}

func (a *app) Run(ctx context.Context) error {
	devtools.EnsureRoot()

	c, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if a.dst != "" {
		c.Dst = a.dst
	}
	c.Prod = a.prod
	c.SkipFeed = a.skipFeed
	return docs.Build(ctx, c)
}

func loadConfig(ctx context.Context) (*docs.Config, error) {
	args := cli.GetEnv(ctx).Args
	if len(args) > 1 {
		return nil, fmt.Errorf("%w: want at most one documentation directory", cli.ErrInvalidArgs)
	}
	dir := devtools.DocsDir
	if len(args) > 0 {
		dir = args[0]
	}
	return docs.LoadConfig(ctx, dir)
}

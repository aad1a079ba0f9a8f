// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"os"

	"go.astrophena.name/aruw/internal/deploy"

	"go.astrophena.name/base/unwrap"
)

func main() {
	env := unwrap.Value(deploy.OSEnv())
	os.Exit(deploy.Main(context.Background(), env))
}

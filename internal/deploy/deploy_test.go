// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package deploy

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"go.astrophena.name/base/testutil"

	"github.com/fatih/color"
	"github.com/spf13/afero"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

type testEnv struct {
	*Env
	stdout, stderr *bytes.Buffer
	runner         *recordingRunner
}

func newTestEnv(t *testing.T, args ...string) *testEnv {
	t.Helper()
	te := &testEnv{
		stdout: new(bytes.Buffer),
		stderr: new(bytes.Buffer),
		runner: &recordingRunner{},
	}
	te.Env = &Env{
		Args:   args,
		Getenv: func(string) string { return "" },
		Stdout: te.stdout,
		Stderr: te.stderr,
		Dir:    testWd,
		FS:     newTestFS(t),
		Runner: te.runner,
	}
	return te
}

func TestMainExitCodes(t *testing.T) {
	stale := map[string]string{
		"main.cpp":  "stale main",
		"stale.hpp": "stale header",
	}

	cases := map[string]struct {
		args       []string
		wantCode   int
		wantStderr string
		wantUsage  bool
		wantCalls  int
		wantTree   map[string]string
	}{
		"no arguments": {
			wantCode:   1,
			wantStderr: "error: no options provided\nsee 'deploy --help'\n",
			wantUsage:  true,
			wantTree:   stale,
		},
		"help": {
			args:      []string{"--help"},
			wantCode:  0,
			wantUsage: true,
			wantTree:  stale,
		},
		"invalid option": {
			args:       []string{"bx"},
			wantCode:   1,
			wantStderr: "error: invalid option (x)\nsee 'deploy --help'\n",
			wantUsage:  true,
			wantTree:   stale,
		},
		"ambiguous source": {
			args:       []string{"bck"},
			wantCode:   1,
			wantStderr: "error: cannot source both 'controller' and 'kbm'\nsee 'deploy --help'\n",
			wantUsage:  true,
			wantTree:   stale,
		},
		"controller": {
			args:     []string{"c"},
			wantCode: 0,
			wantTree: map[string]string{
				"main.cpp":                          "controller main",
				"control/standard.cpp":              "controller standard",
				"control/chassis/chassis_drive.cpp": "controller chassis",
			},
		},
		"build and run kbm": {
			args:      []string{"k", "rb"},
			wantCode:  0,
			wantCalls: 2,
			wantTree: map[string]string{
				"main.cpp":             "kbm main",
				"control/standard.cpp": "kbm standard",
			},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			te := newTestEnv(t, tc.args...)

			code := Main(context.Background(), te.Env)

			testutil.AssertEqual(t, code, tc.wantCode)
			testutil.AssertEqual(t, te.stderr.String(), tc.wantStderr)
			testutil.AssertEqual(t, strings.Contains(te.stdout.String(), Usage), tc.wantUsage)
			testutil.AssertEqual(t, len(te.runner.calls), tc.wantCalls)
			testutil.AssertEqual(t, readTree(t, te.FS, testDest), tc.wantTree)
		})
	}
}

func TestMainNoSideEffectsOnRejectedInput(t *testing.T) {
	for _, args := range [][]string{nil, {"ck"}, {"kc"}, {"brkc"}, {"bx"}, {"--help"}} {
		te := newTestEnv(t, args...)
		te.FS = afero.NewReadOnlyFs(te.FS)
		// Loading the configuration would fail: it comes after validation.
		te.Getenv = func(name string) string {
			if name == ConfigEnv {
				return "/does/not/exist.star"
			}
			return ""
		}
		Main(context.Background(), te.Env)
		if len(te.runner.calls) != 0 {
			t.Fatalf("%q: build tool must not be invoked, got %v", args, te.runner.calls)
		}
		if strings.Contains(te.stderr.String(), "exist.star") {
			t.Fatalf("%q: configuration must not be loaded, got %q", args, te.stderr.String())
		}
	}
}

func TestMainToolFailure(t *testing.T) {
	te := newTestEnv(t, "br")
	te.runner.fail = map[string]error{ActionBuild: errors.New("scons: *** [build] Error 2")}

	code := Main(context.Background(), te.Env)

	testutil.AssertEqual(t, code, 1)
	testutil.AssertEqual(t, te.stderr.String(), "error: build failed: scons: *** [build] Error 2\n")
	testutil.AssertEqual(t, te.stdout.String(), "")
	testutil.AssertEqual(t, len(te.runner.calls), 1)
}

func TestMainMissingSource(t *testing.T) {
	te := newTestEnv(t, "cb")
	if err := te.FS.RemoveAll("/work/controller"); err != nil {
		t.Fatal(err)
	}

	code := Main(context.Background(), te.Env)

	testutil.AssertEqual(t, code, 1)
	if !strings.HasPrefix(te.stderr.String(), "error: replacing controller sources: ") {
		t.Fatalf("unexpected stderr: %q", te.stderr.String())
	}
	testutil.AssertEqual(t, len(te.runner.calls), 0)
}

func TestMainWithConfig(t *testing.T) {
	te := newTestEnv(t, "kb")
	writeTree(t, te.FS, testWd, map[string]string{
		ConfigFile: `
base_dir = "/srv/sources"
project_dir = wd + "/checkout"
dest_dir = "checkout/src"
tool = "pipenv run scons"
`,
	})
	writeTree(t, te.FS, "/srv/sources/kbm", map[string]string{
		"main.cpp": "srv kbm main",
	})

	code := Main(context.Background(), te.Env)

	testutil.AssertEqual(t, code, 0)
	testutil.AssertEqual(t, te.stderr.String(), "")
	testutil.AssertEqual(t, readTree(t, te.FS, testWd+"/checkout/src"), map[string]string{
		"main.cpp": "srv kbm main",
	})
	testutil.AssertEqual(t, te.runner.calls, []call{
		{dir: testWd + "/checkout", args: "pipenv run scons build"},
	})
}

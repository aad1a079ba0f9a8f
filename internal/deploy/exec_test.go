// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package deploy

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"go.astrophena.name/base/testutil"
	"go.astrophena.name/base/txtar"

	"github.com/spf13/afero"
)

const (
	testWd   = "/work/testing"
	testDest = "/work/testing/aruw-edu/aruw-edu-project/src"
)

var testProject = filepath.Dir(testDest)

// newTestFS returns a filesystem laid out the way the deploy tool expects to
// find it: source trees next to the working directory and a project checkout
// with stale sources inside it.
func newTestFS(t *testing.T) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	writeTree(t, fsys, "/work/controller", map[string]string{
		"main.cpp":                          "controller main",
		"control/standard.cpp":              "controller standard",
		"control/chassis/chassis_drive.cpp": "controller chassis",
	})
	writeTree(t, fsys, "/work/kbm", map[string]string{
		"main.cpp":             "kbm main",
		"control/standard.cpp": "kbm standard",
	})
	writeTree(t, fsys, testDest, map[string]string{
		"main.cpp":  "stale main",
		"stale.hpp": "stale header",
	})
	return fsys
}

func writeTree(t *testing.T, fsys afero.Fs, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := afero.WriteFile(fsys, path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func readTree(t *testing.T, fsys afero.Fs, root string) map[string]string {
	t.Helper()
	files := make(map[string]string)
	if err := afero.Walk(fsys, root, func(path string, fi fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		b, err := afero.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = string(b)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	return files
}

type call struct {
	dir  string
	args string
}

// recordingRunner records commands instead of running them.
type recordingRunner struct {
	calls []call
	fail  map[string]error // action -> error
}

func (r *recordingRunner) Run(ctx context.Context, dir string, args []string) error {
	r.calls = append(r.calls, call{dir: dir, args: strings.Join(args, " ")})
	if err, ok := r.fail[args[len(args)-1]]; ok {
		return err
	}
	return nil
}

func newTestExecutor(t *testing.T) (*Executor, *recordingRunner) {
	t.Helper()
	r := &recordingRunner{}
	return &Executor{
		Config: DefaultConfig(testWd),
		FS:     newTestFS(t),
		Runner: r,
	}, r
}

func TestExecute(t *testing.T) {
	controllerTree := map[string]string{
		"main.cpp":                          "controller main",
		"control/standard.cpp":              "controller standard",
		"control/chassis/chassis_drive.cpp": "controller chassis",
	}
	kbmTree := map[string]string{
		"main.cpp":             "kbm main",
		"control/standard.cpp": "kbm standard",
	}
	staleTree := map[string]string{
		"main.cpp":  "stale main",
		"stale.hpp": "stale header",
	}

	cases := map[string]struct {
		options   string
		wantTree  map[string]string
		wantCalls []call
	}{
		"controller only": {
			options:  "c",
			wantTree: controllerTree,
		},
		"kbm only": {
			options:  "k",
			wantTree: kbmTree,
		},
		"build, run and controller": {
			options:  "brc",
			wantTree: controllerTree,
			wantCalls: []call{
				{dir: testProject, args: "scons build"},
				{dir: testProject, args: "scons run"},
			},
		},
		"run before build in input": {
			options:  "rb",
			wantTree: staleTree,
			wantCalls: []call{
				{dir: testProject, args: "scons build"},
				{dir: testProject, args: "scons run"},
			},
		},
		"run only": {
			options:   "r",
			wantTree:  staleTree,
			wantCalls: []call{{dir: testProject, args: "scons run"}},
		},
		"repeated build": {
			options:   "bbb",
			wantTree:  staleTree,
			wantCalls: []call{{dir: testProject, args: "scons build"}},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			e, r := newTestExecutor(t)
			flags, err := Parse([]string{tc.options})
			if err != nil {
				t.Fatal(err)
			}
			if err := e.Execute(context.Background(), flags); err != nil {
				t.Fatal(err)
			}
			testutil.AssertEqual(t, readTree(t, e.FS, testDest), tc.wantTree)
			testutil.AssertEqual(t, r.calls, tc.wantCalls)
		})
	}
}

func TestExecuteAmbiguousSource(t *testing.T) {
	r := &recordingRunner{}
	e := &Executor{
		Config: DefaultConfig(testWd),
		// Any write attempt fails on a read-only filesystem.
		FS:     afero.NewReadOnlyFs(newTestFS(t)),
		Runner: r,
	}
	err := e.Execute(context.Background(), Flags(Build|Controller|KBM))
	if !errors.Is(err, ErrAmbiguousSource) {
		t.Fatalf("want ErrAmbiguousSource, got %v", err)
	}
	testutil.AssertEqual(t, readTree(t, e.FS, testDest), map[string]string{
		"main.cpp":  "stale main",
		"stale.hpp": "stale header",
	})
	testutil.AssertEqual(t, len(r.calls), 0)
}

func TestExecuteMissingDest(t *testing.T) {
	e, _ := newTestExecutor(t)
	if err := e.FS.RemoveAll(testDest); err != nil {
		t.Fatal(err)
	}
	if err := e.Execute(context.Background(), Flags(KBM)); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, readTree(t, e.FS, testDest), map[string]string{
		"main.cpp":             "kbm main",
		"control/standard.cpp": "kbm standard",
	})
}

func TestExecuteMissingSource(t *testing.T) {
	e, r := newTestExecutor(t)
	if err := e.FS.RemoveAll("/work/controller"); err != nil {
		t.Fatal(err)
	}
	err := e.Execute(context.Background(), Flags(Controller|Build))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("want fs.ErrNotExist, got %v", err)
	}
	// Destination is left alone and nothing is built.
	testutil.AssertEqual(t, readTree(t, e.FS, testDest), map[string]string{
		"main.cpp":  "stale main",
		"stale.hpp": "stale header",
	})
	testutil.AssertEqual(t, len(r.calls), 0)
}

func TestExecuteSourceNotDir(t *testing.T) {
	e, _ := newTestExecutor(t)
	if err := e.FS.RemoveAll("/work/kbm"); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(e.FS, "/work/kbm", []byte("oops"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := e.Execute(context.Background(), Flags(KBM))
	if err == nil || !strings.Contains(err.Error(), "is not a directory") {
		t.Fatalf("want not a directory error, got %v", err)
	}
	if _, err := e.FS.Stat(filepath.Join(testDest, "stale.hpp")); err != nil {
		t.Fatalf("destination must be untouched: %v", err)
	}
}

func TestExecuteBuildFails(t *testing.T) {
	e, r := newTestExecutor(t)
	boom := errors.New("boom")
	r.fail = map[string]error{ActionBuild: boom}

	err := e.Execute(context.Background(), Flags(Build|Run|Controller))

	var toolErr *ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("want *ToolError, got %v", err)
	}
	testutil.AssertEqual(t, toolErr.Action, ActionBuild)
	testutil.AssertEqual(t, errors.Is(err, boom), true)
	testutil.AssertEqual(t, toolErr.ExitCode(), 1)
	testutil.AssertEqual(t, err.Error(), "build failed: boom")
	// Run is skipped, sources stay replaced.
	testutil.AssertEqual(t, r.calls, []call{{dir: testProject, args: "scons build"}})
	testutil.AssertEqual(t, readTree(t, e.FS, testDest)["main.cpp"], "controller main")
}

func TestExecuteCustomTool(t *testing.T) {
	e, r := newTestExecutor(t)
	e.Config.Tool = []string{"pipenv", "run", "scons"}
	if err := e.Execute(context.Background(), Flags(Build)); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, r.calls, []call{{dir: testProject, args: "pipenv run scons build"}})
	testutil.AssertEqual(t, e.Config.Tool, []string{"pipenv", "run", "scons"})
}

func TestReplaceDirOS(t *testing.T) {
	root := t.TempDir()
	testutil.ExtractTxtar(t, txtar.Parse([]byte(`
-- controller/main.cpp --
int main() {}
-- controller/tools/flash.sh --
#!/bin/sh
-- project/src/old.cpp --
old
`)), root)

	src := filepath.Join(root, "controller")
	dst := filepath.Join(root, "project", "src")
	if err := os.Chmod(filepath.Join(src, "tools", "flash.sh"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "shared.hpp"), []byte("shared"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(root, "shared.hpp"), filepath.Join(src, "shared.hpp")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	fsys := afero.NewOsFs()
	if err := ReplaceDir(context.Background(), fsys, src, dst); err != nil {
		t.Fatal(err)
	}

	testutil.AssertEqual(t, readTree(t, fsys, dst), map[string]string{
		"main.cpp":       "int main() {}\n",
		"tools/flash.sh": "#!/bin/sh\n",
		"shared.hpp":     "shared",
	})

	fi, err := os.Stat(filepath.Join(dst, "tools", "flash.sh"))
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, fi.Mode().Perm(), fs.FileMode(0o755))

	fi, err = os.Lstat(filepath.Join(dst, "shared.hpp"))
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, fi.Mode().IsRegular(), true)
}

func TestExecRunner(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh is not available")
	}

	var stdout strings.Builder
	r := &ExecRunner{Stdout: &stdout, Stderr: &stdout}
	dir := t.TempDir()

	if err := r.Run(context.Background(), dir, []string{"sh", "-c", "pwd"}); err != nil {
		t.Fatal(err)
	}
	got, err := filepath.EvalSymlinks(strings.TrimSpace(stdout.String()))
	if err != nil {
		t.Fatal(err)
	}
	want, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, got, want)

	err = r.Run(context.Background(), dir, []string{"sh", "-c", "exit 3"})
	toolErr := &ToolError{Action: ActionRun, Err: err}
	testutil.AssertEqual(t, toolErr.ExitCode(), 3)

	if err := r.Run(context.Background(), dir, nil); err == nil {
		t.Fatal("want error for empty command")
	}
}

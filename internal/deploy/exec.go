// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.astrophena.name/base/logger"

	"github.com/spf13/afero"
)

// Build tool sub-actions.
const (
	ActionBuild = "build"
	ActionRun   = "run"
)

// Runner runs external commands.
type Runner interface {
	// Run runs the command described by args in dir and waits for it to
	// exit.
	Run(ctx context.Context, dir string, args []string) error
}

// ExecRunner runs commands with os/exec, passing their output through.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Run implements [Runner].
func (r *ExecRunner) Run(ctx context.Context, dir string, args []string) error {
	if len(args) == 0 {
		return errors.New("empty command")
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = dir
	cmd.Stdin = os.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	return cmd.Run()
}

// ToolError is returned when the build tool fails.
type ToolError struct {
	Action string
	Err    error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Action, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// ExitCode returns the exit status of the build tool, or 1 if it didn't exit
// normally.
func (e *ToolError) ExitCode() int {
	var exitErr *exec.ExitError
	if errors.As(e.Err, &exitErr) && exitErr.ExitCode() > 0 {
		return exitErr.ExitCode()
	}
	return 1
}

// Executor performs the side effects of a validated set of flags.
type Executor struct {
	Config *Config
	FS     afero.Fs
	Runner Runner
}

// Execute replaces the sources, builds and runs the project, in that order,
// as requested by flags. Steps are not rolled back if a later one fails. The run
// step is skipped if the build fails.
func (e *Executor) Execute(ctx context.Context, flags Flags) error {
	if err := flags.Validate(); err != nil {
		return err
	}

	if name := flags.Source(); name != "" {
		src := e.Config.SourceDir(name)
		logger.Info(ctx, "replacing sources",
			slog.String("src", src),
			slog.String("dst", e.Config.DestDir),
		)
		if err := ReplaceDir(ctx, e.FS, src, e.Config.DestDir); err != nil {
			return fmt.Errorf("replacing %s sources: %w", name, err)
		}
	}

	for _, step := range []struct {
		flag   Flag
		action string
	}{
		{Build, ActionBuild},
		{Run, ActionRun},
	} {
		if !flags.Has(step.flag) {
			continue
		}
		args := append(append([]string(nil), e.Config.Tool...), step.action)
		logger.Info(ctx, "invoking build tool",
			slog.String("cmd", strings.Join(args, " ")),
			slog.String("dir", e.Config.ProjectDir),
		)
		if err := e.Runner.Run(ctx, e.Config.ProjectDir, args); err != nil {
			return &ToolError{Action: step.action, Err: err}
		}
	}

	return nil
}

// ReplaceDir replaces the contents of dst with a full copy of src. It fails
// without touching dst if src is not a directory. A missing dst is not an
// error. Symbolic links to files are copied as files.
func ReplaceDir(ctx context.Context, fsys afero.Fs, src, dst string) error {
	fi, err := fsys.Stat(src)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s is not a directory", src)
	}
	if err := fsys.RemoveAll(dst); err != nil {
		return err
	}
	return copyTree(ctx, fsys, src, dst)
}

func copyTree(ctx context.Context, fsys afero.Fs, src, dst string) error {
	return afero.Walk(fsys, src, func(path string, fi fs.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case fi.IsDir():
			return fsys.MkdirAll(target, fi.Mode().Perm()|0o700)
		case fi.Mode().IsRegular():
			return copyFile(fsys, path, target, fi.Mode().Perm())
		}

		// Walk doesn't follow symlinks; copy the contents of linked files.
		if st, err := fsys.Stat(path); err == nil && st.Mode().IsRegular() {
			return copyFile(fsys, path, target, st.Mode().Perm())
		}
		logger.Info(ctx, "skipping irregular file", slog.String("path", path))
		return nil
	})
}

func copyFile(fsys afero.Fs, src, dst string, perm fs.FileMode) error {
	in, err := fsys.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := fsys.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

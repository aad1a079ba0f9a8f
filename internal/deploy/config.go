// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package deploy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"go.astrophena.name/aruw/internal/starconf"

	"github.com/mattn/go-shellwords"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"go.starlark.net/starlark"
)

// ConfigFile is the name of the optional configuration file looked up in the
// working directory.
const ConfigFile = "deploy.star"

// ConfigEnv is the environment variable that points to a configuration file
// in a non-default location.
const ConfigEnv = "DEPLOY_CONFIG"

// Config holds the paths and the build tool used by an invocation.
type Config struct {
	// BaseDir contains the named source trees (controller and kbm).
	BaseDir string
	// DestDir is the directory replaced with a copy of the chosen source tree.
	DestDir string
	// ProjectDir is the working directory of the build tool.
	ProjectDir string
	// Tool is the build tool command line. Sub-actions are appended to it.
	Tool []string
}

// DefaultConfig returns the configuration for a deploy run from the wd
// directory: the source trees live next to wd, and the project is checked out
// to wd/aruw-edu/aruw-edu-project.
func DefaultConfig(wd string) *Config {
	project := filepath.Join(wd, "aruw-edu", "aruw-edu-project")
	return &Config{
		BaseDir:    filepath.Dir(wd),
		DestDir:    filepath.Join(project, "src"),
		ProjectDir: project,
		Tool:       []string{"scons"},
	}
}

// SourceDir returns the path of the named source tree.
func (c *Config) SourceDir(name string) string {
	return filepath.Join(c.BaseDir, name)
}

// LoadConfig returns the configuration for wd. It starts from
// [DefaultConfig] and applies overrides from the file named by [ConfigEnv]
// or, if that is unset, from [ConfigFile] in wd when it exists.
func LoadConfig(ctx context.Context, fsys afero.Fs, wd string, getenv func(string) string) (*Config, error) {
	c := DefaultConfig(wd)

	path := getenv(ConfigEnv)
	if path == "" {
		path = filepath.Join(wd, ConfigFile)
		if _, err := fsys.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return c, nil
		} else if err != nil {
			return nil, err
		}
	}

	src, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	g, err := starconf.Exec(ctx, path, src, starlark.StringDict{
		"wd":     starlark.String(wd),
		"getenv": starconf.Getenv(getenv),
	})
	if err != nil {
		return nil, err
	}
	if err := c.apply(g, wd); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func (c *Config) apply(g starconf.Globals, wd string) error {
	for _, p := range []struct {
		name string
		dst  *string
	}{
		{"base_dir", &c.BaseDir},
		{"dest_dir", &c.DestDir},
		{"project_dir", &c.ProjectDir},
	} {
		v, err := g.String(p.name, "")
		if err != nil {
			return err
		}
		if v == "" {
			continue
		}
		if *p.dst, err = resolvePath(wd, v); err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}
	}

	tool, err := g.String("tool", "")
	if err != nil {
		return err
	}
	if tool != "" {
		args, err := shellwords.Parse(tool)
		if err != nil {
			return fmt.Errorf("tool: %w", err)
		}
		if len(args) == 0 {
			return errors.New("tool: must contain at least one word")
		}
		c.Tool = args
	}
	return nil
}

func resolvePath(wd, p string) (string, error) {
	p, err := homedir.Expand(p)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(wd, p)
	}
	return filepath.Clean(p), nil
}

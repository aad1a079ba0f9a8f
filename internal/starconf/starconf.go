// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package starconf evaluates configuration files written in Starlark.
//
// A configuration file is an ordinary Starlark module. Its top-level
// assignments become the configuration values:
//
//	project = "aruw-edu"
//	exclude_patterns = ["_build", "Thumbs.db", ".DS_Store"]
//	heading_anchors = 2
package starconf

import (
	"context"
	"fmt"
	"log/slog"

	"go.astrophena.name/base/logger"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// TypeError is returned when a configuration value has an unexpected type.
type TypeError struct {
	Name string // global name
	Want string // wanted Starlark type
	Got  string // actual Starlark type
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("%s: want %s, got %s", e.Name, e.Want, e.Got)
}

// Globals holds the top-level values of an evaluated configuration file.
type Globals starlark.StringDict

var fileOptions = &syntax.FileOptions{
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
}

// Exec evaluates the configuration file. If src is nil, the file is read from
// filename; otherwise src is used as the file contents (see
// [starlark.ExecFileOptions]). Values from predeclared are visible to the
// file but not included in the returned Globals.
func Exec(ctx context.Context, filename string, src any, predeclared starlark.StringDict) (Globals, error) {
	thread := &starlark.Thread{
		Name: filename,
		Print: func(_ *starlark.Thread, msg string) {
			logger.Info(ctx, msg, slog.String("config", filename))
		},
	}
	globals, err := starlark.ExecFileOptions(fileOptions, thread, filename, src, predeclared)
	if err != nil {
		if evalErr, ok := err.(*starlark.EvalError); ok {
			return nil, fmt.Errorf("%s: %s", filename, evalErr.Backtrace())
		}
		return nil, err
	}
	return Globals(globals), nil
}

// Has reports whether the configuration defines name.
func (g Globals) Has(name string) bool {
	_, ok := g[name]
	return ok
}

// String returns the string value of name, or def if it is not defined.
func (g Globals) String(name, def string) (string, error) {
	v, ok := g[name]
	if !ok || v == starlark.None {
		return def, nil
	}
	s, ok := starlark.AsString(v)
	if !ok {
		return "", &TypeError{Name: name, Want: "string", Got: v.Type()}
	}
	return s, nil
}

// Strings returns the value of name as a slice of strings, or def if it is
// not defined. Lists and tuples are accepted.
func (g Globals) Strings(name string, def []string) ([]string, error) {
	v, ok := g[name]
	if !ok || v == starlark.None {
		return def, nil
	}
	var seq starlark.Indexable
	switch v := v.(type) {
	case *starlark.List:
		seq = v
	case starlark.Tuple:
		seq = v
	default:
		return nil, &TypeError{Name: name, Want: "list", Got: v.Type()}
	}
	ss := make([]string, 0, seq.Len())
	for i := range seq.Len() {
		elem := seq.Index(i)
		s, ok := starlark.AsString(elem)
		if !ok {
			return nil, &TypeError{Name: fmt.Sprintf("%s[%d]", name, i), Want: "string", Got: elem.Type()}
		}
		ss = append(ss, s)
	}
	return ss, nil
}

// Int returns the integer value of name, or def if it is not defined.
func (g Globals) Int(name string, def int) (int, error) {
	v, ok := g[name]
	if !ok || v == starlark.None {
		return def, nil
	}
	i, ok := v.(starlark.Int)
	if !ok {
		return 0, &TypeError{Name: name, Want: "int", Got: v.Type()}
	}
	n, ok := i.Int64()
	if !ok {
		return 0, fmt.Errorf("%s: %s is out of range", name, i)
	}
	return int(n), nil
}

// Bool returns the boolean value of name, or def if it is not defined.
func (g Globals) Bool(name string, def bool) (bool, error) {
	v, ok := g[name]
	if !ok || v == starlark.None {
		return def, nil
	}
	b, ok := v.(starlark.Bool)
	if !ok {
		return false, &TypeError{Name: name, Want: "bool", Got: v.Type()}
	}
	return bool(b), nil
}

// Getenv returns a Starlark builtin getenv(name, default="") backed by the
// provided lookup function.
func Getenv(lookup func(string) string) *starlark.Builtin {
	return starlark.NewBuiltin("getenv", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var name, def string
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "default?", &def); err != nil {
			return nil, err
		}
		if v := lookup(name); v != "" {
			return starlark.String(v), nil
		}
		return starlark.String(def), nil
	})
}

// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package docs

import (
	"embed"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

//go:embed templates/*.html
var defaultTemplates embed.FS

// parseTemplates parses the built-in templates, then templates from every
// templates directory. Later definitions override earlier ones.
func (b *buildContext) parseTemplates() error {
	if err := b.parseTemplateFS(defaultTemplates, "templates"); err != nil {
		return err
	}
	for _, dir := range b.c.TemplatesPath {
		root := filepath.Join(b.c.Src, dir)
		if _, err := os.Stat(root); os.IsNotExist(err) {
			continue
		}
		if err := b.parseTemplateFS(os.DirFS(root), "."); err != nil {
			return err
		}
	}
	return nil
}

func (b *buildContext) parseTemplateFS(fsys fs.FS, root string) error {
	return fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || filepath.Ext(path) != ".html" || isIgnorable(path) {
			return nil
		}

		// fs.FS paths are always slash-separated.
		name := path
		if root != "." {
			name = strings.TrimPrefix(path, root+"/")
		}
		name = strings.TrimSuffix(name, ".html")

		bb, err := fs.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		b.templates[name], err = template.New(name).Funcs(b.funcs).Parse(string(bb))
		return err
	})
}

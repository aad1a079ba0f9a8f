// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Package docs builds the project documentation.

# Directory Structure

The documentation directory has the following layout:

	conf.star   Build configuration, see below.
	_build      This is where the generated site will be placed by default.
	_static     Files in this directory are copied to _static in the
	            generated site. CSS, JavaScript and JSON files are minified
	            and get a content hash in their names.
	_templates  Templates that wrap pages. They must have the '.html'
	            extension. The default template is called "layout"; a
	            built-in one is used if it's not defined.

Every other Markdown (.md) or HTML (.html) file is a page. Other files,
such as images, are copied verbatim.

# Configuration

The conf.star file is evaluated as Starlark. Recognized values are:

	project = "aruw-edu"
	copyright = "2022, Advanced Robotics at the University of Washington"
	author = "Advanced Robotics at the University of Washington"
	base_url = "https://aruw.example"
	templates_path = ["_templates"]
	static_path = ["_static"]
	exclude_patterns = ["_build", "Thumbs.db", ".DS_Store"]
	heading_anchors = 2
	css_files = ["theme.css"]

Exclude patterns use .dockerignore syntax and are matched against paths
relative to the documentation directory.

# Page Layout

A page may start with JSON front matter:

	{
	  "title": "Getting started",
	  "template": "layout",
	  "permalink": "/getting-started"
	}

Without front matter the title is taken from the first top-level heading
and the permalink from the file path. See Page for all available front
matter fields. Pages of type "changelog" are published in the Atom feed.
*/
package docs

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"go.astrophena.name/aruw/internal/starconf"

	"go.astrophena.name/base/logger"

	"github.com/moby/patternmatcher"
	"go.starlark.net/starlark"
	"rsc.io/markdown"
)

// ConfigFile is the name of the configuration file in the documentation
// directory.
const ConfigFile = "conf.star"

// Config represents a build configuration.
type Config struct {
	// Project is the name of the documented project.
	Project string
	// Copyright is the copyright notice shown in the footer.
	Copyright string
	// Author is the author of the documentation.
	Author string
	// BaseURL is the base URL of the site. It is used to derive absolute URLs
	// in production mode and in the feed.
	BaseURL *url.URL
	// Src is the documentation directory. If empty, uses the current
	// directory.
	Src string
	// Dst is the directory where to write files. If empty, uses _build/html
	// inside Src.
	Dst string
	// Prod determines if the site should be built in a production mode. This
	// means that drafts are excluded and the base URL is used to derive absolute
	// URLs from relative ones.
	Prod bool
	// SkipFeed determines if the changelog feed shouldn't be built.
	SkipFeed bool
	// TemplatesPath lists directories with templates, relative to Src.
	TemplatesPath []string
	// StaticPath lists directories with static files, relative to Src.
	StaticPath []string
	// ExcludePatterns lists paths that are not part of the documentation.
	ExcludePatterns []string
	// HeadingAnchors is the deepest heading level that gets an anchor link.
	// Zero disables anchors.
	HeadingAnchors int
	// CSSFiles lists static CSS files included on every page.
	CSSFiles []string

	feedCreated time.Time // used in tests
}

// Defaults for the configuration values.
var (
	defaultTemplatesPath   = []string{"_templates"}
	defaultStaticPath      = []string{"_static"}
	defaultExcludePatterns = []string{"_build", "Thumbs.db", ".DS_Store"}
)

const defaultHeadingAnchors = 2

func (c *Config) setDefaults() {
	if c.Src == "" {
		c.Src = "."
	}
	if c.Dst == "" {
		c.Dst = filepath.Join(c.Src, "_build", "html")
	}
	if c.Project == "" {
		abs, err := filepath.Abs(c.Src)
		if err != nil {
			abs = c.Src
		}
		c.Project = filepath.Base(abs)
	}
	if c.TemplatesPath == nil {
		c.TemplatesPath = defaultTemplatesPath
	}
	if c.StaticPath == nil {
		c.StaticPath = defaultStaticPath
	}
	if c.ExcludePatterns == nil {
		c.ExcludePatterns = defaultExcludePatterns
	}
}

// LoadConfig reads the configuration from the conf.star file in dir. If the
// file doesn't exist, the defaults are used.
func LoadConfig(ctx context.Context, dir string) (*Config, error) {
	c := &Config{
		Src:            dir,
		HeadingAnchors: defaultHeadingAnchors,
	}

	path := filepath.Join(dir, ConfigFile)
	src, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		c.setDefaults()
		return c, nil
	} else if err != nil {
		return nil, err
	}

	g, err := starconf.Exec(ctx, path, src, starlark.StringDict{
		"getenv": starconf.Getenv(os.Getenv),
	})
	if err != nil {
		return nil, err
	}
	if err := c.apply(g); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	c.setDefaults()
	return c, nil
}

func (c *Config) apply(g starconf.Globals) error {
	var err error
	for _, s := range []struct {
		name string
		dst  *string
	}{
		{"project", &c.Project},
		{"copyright", &c.Copyright},
		{"author", &c.Author},
	} {
		if *s.dst, err = g.String(s.name, ""); err != nil {
			return err
		}
	}

	for _, l := range []struct {
		name string
		dst  *[]string
		def  []string
	}{
		{"templates_path", &c.TemplatesPath, defaultTemplatesPath},
		{"static_path", &c.StaticPath, defaultStaticPath},
		{"exclude_patterns", &c.ExcludePatterns, defaultExcludePatterns},
		{"css_files", &c.CSSFiles, nil},
	} {
		if *l.dst, err = g.Strings(l.name, l.def); err != nil {
			return err
		}
	}

	if c.HeadingAnchors, err = g.Int("heading_anchors", defaultHeadingAnchors); err != nil {
		return err
	}
	if c.HeadingAnchors < 0 || c.HeadingAnchors > 6 {
		return fmt.Errorf("heading_anchors: must be between 0 and 6, got %d", c.HeadingAnchors)
	}

	baseURL, err := g.String("base_url", "")
	if err != nil {
		return err
	}
	if baseURL != "" {
		if c.BaseURL, err = url.Parse(baseURL); err != nil {
			return fmt.Errorf("base_url: %w", err)
		}
	}
	return nil
}

// Build builds the documentation based on the provided [Config].
func Build(ctx context.Context, c *Config) error {
	c.setDefaults()
	b, err := newBuildContext(c)
	if err != nil {
		return err
	}

	// Parse templates, pages and static files.
	if err := b.parseTemplates(); err != nil {
		return err
	}
	if err := filepath.WalkDir(b.c.Src, b.walkSource); err != nil {
		return err
	}
	for _, dir := range b.c.StaticPath {
		root := filepath.Join(b.c.Src, dir)
		if err := walkIfExists(root, b.hashStatic(root)); err != nil {
			return err
		}
	}

	sortPages(b.pages)

	// Clean up after previous build.
	if err := os.RemoveAll(b.c.Dst); err != nil {
		return err
	}
	if err := os.MkdirAll(b.c.Dst, 0o755); err != nil {
		return err
	}

	// Render page contents first, so that titles derived from headings are
	// known when templates list pages.
	for _, p := range b.pages {
		if err := p.render(b); err != nil {
			return err
		}
	}
	for _, p := range b.pages {
		if err := b.writePage(p); err != nil {
			return err
		}
	}
	if !b.c.SkipFeed {
		if err := b.buildFeed(); err != nil {
			return err
		}
	}

	// Copy static files and assets.
	for _, dir := range b.c.StaticPath {
		root := filepath.Join(b.c.Src, dir)
		if err := walkIfExists(root, b.copyStatic(root)); err != nil {
			return err
		}
	}
	for _, asset := range b.assets {
		if err := copyFile(filepath.Join(b.c.Src, asset), filepath.Join(b.c.Dst, asset)); err != nil {
			return err
		}
	}

	logger.Info(ctx, "built documentation",
		slog.String("dst", b.c.Dst),
		slog.Int("pages", len(b.pages)),
	)
	return nil
}

// sortPages sorts pages by permalink with the index page first.
func sortPages(pages []*Page) {
	sort.SliceStable(pages, func(i, j int) bool {
		ii, ji := pages[i].isIndex(), pages[j].isIndex()
		if ii != ji {
			return ii
		}
		return pages[i].dstPath < pages[j].dstPath
	})
}

func walkIfExists(root string, fn fs.WalkDirFunc) error {
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return filepath.WalkDir(root, fn)
}

func (b *buildContext) writePage(p *Page) error {
	dst := filepath.Join(b.c.Dst, filepath.FromSlash(p.dstPath))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	tpl, ok := b.templates[p.Template]
	if !ok {
		return fmt.Errorf("%s: no such template %q", p.path, p.Template)
	}

	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if err := p.build(b, tpl, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

type buildContext struct {
	c         *Config
	md        *markdown.Parser
	funcs     template.FuncMap
	exclude   *patternmatcher.PatternMatcher
	skipDirs  []string // absolute paths of directories that are not walked for pages
	pages     []*Page
	assets    []string // paths relative to Src copied verbatim
	templates map[string]*template.Template
	static    map[string]string // path -> hashed path (e.g. /_static/theme.css -> /_static/theme-[hash].css)
	min       *minifier
}

func newBuildContext(c *Config) (*buildContext, error) {
	exclude, err := patternmatcher.New(c.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("exclude_patterns: %w", err)
	}

	b := &buildContext{
		c: c,
		md: &markdown.Parser{
			HeadingID:          true,
			Strikethrough:      true,
			TaskList:           true,
			AutoLinkText:       true,
			AutoLinkAssumeHTTP: true,
			Table:              true,
			Emoji:              true,
			SmartDot:           true,
			SmartDash:          true,
			SmartQuote:         true,
			Footnote:           true,
		},
		exclude:   exclude,
		templates: make(map[string]*template.Template),
		static:    make(map[string]string),
		min:       newMin(),
	}

	skip := []string{c.Dst}
	for _, dir := range slices.Concat(c.TemplatesPath, c.StaticPath) {
		skip = append(skip, filepath.Join(c.Src, dir))
	}
	for _, dir := range skip {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, err
		}
		b.skipDirs = append(b.skipDirs, abs)
	}

	b.funcs = template.FuncMap{
		"content":   func(p *Page) template.HTML { return template.HTML(p.contents) },
		"time":      b.time,
		"pages":     b.pagesByType,
		"url":       b.url,
		"static":    b.getStatic,
		"css":       b.css,
		"project":   func() string { return b.c.Project },
		"copyright": func() string { return b.c.Copyright },
		"author":    func() string { return b.c.Author },
	}

	return b, nil
}

func (b *buildContext) pagesByType(typ string) []*Page {
	if typ == "" {
		return b.pages
	}
	var pages []*Page
	for _, p := range b.pages {
		if p.Type == typ {
			pages = append(pages, p)
		}
	}
	return pages
}

func (b *buildContext) time(format string, d *date) template.HTML {
	return template.HTML(fmt.Sprintf(`<time datetime="%s">%s</time>`,
		d.Format(time.RFC3339),
		d.Format(format),
	))
}

func isFullURL(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

func (b *buildContext) url(base string) string {
	if isFullURL(base) || !b.c.Prod || b.c.BaseURL == nil {
		return base
	}
	return b.absURL(base)
}

func (b *buildContext) absURL(base string) string {
	if b.c.BaseURL == nil {
		return base
	}
	u := *b.c.BaseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(base, "/")
	return u.String()
}

// getStatic returns the URL of a static file. Paths not starting with a slash
// are relative to the _static directory.
func (b *buildContext) getStatic(base string) string {
	if !strings.HasPrefix(base, "/") && !isFullURL(base) {
		base = staticPrefix + base
	}
	hashed, ok := b.static[base]
	if !ok {
		return b.url(base)
	}
	return b.url(hashed)
}

func (b *buildContext) css() []string {
	urls := make([]string, 0, len(b.c.CSSFiles))
	for _, f := range b.c.CSSFiles {
		urls = append(urls, b.getStatic(f))
	}
	return urls
}

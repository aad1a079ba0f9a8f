// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package docs

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	ttemplate "text/template"
	"time"

	"rsc.io/markdown"
)

// Possible errors, used in tests.
var (
	errFrontmatterSplit  = errors.New("failed to split frontmatter and contents")
	errFrontmatterParse  = errors.New("failed to parse frontmatter")
	errFormatUnsupported = errors.New("format unsupported")
	errPermalinkInvalid  = errors.New("invalid permalink")
	errTitleMissing      = errors.New("missing title: set it in frontmatter or add a top-level heading")
)

var pageFormats = []string{".html", ".md"}

const (
	defaultTemplate = "layout"
	defaultType     = "page"
)

// Page represents a documentation page. The exported fields are the front
// matter fields.
type Page struct {
	Title     string            `json:"title,omitempty"`     // title: Page title, defaults to the first top-level heading.
	Permalink string            `json:"permalink,omitempty"` // permalink: Output path for the page, defaults to the source path.
	Template  string            `json:"template,omitempty"`  // template: Template used for rendering this page, "layout" by default.
	Date      *date             `json:"date,omitempty"`      // date: Publication date in the 'year-month-day' format, e.g. 2006-01-02, optional.
	Draft     bool              `json:"draft,omitempty"`     // draft: Determines whether this page should be not included in production builds, false by default.
	MetaTags  map[string]string `json:"meta_tags,omitempty"` // meta_tags: Additional HTML meta tags that will be added to this page, optional.
	Summary   string            `json:"summary,omitempty"`   // summary: Page summary, used in the changelog feed, optional.
	Type      string            `json:"type,omitempty"`      // type: Used to distinguish different kinds of pages, page by default.
	CSS       []string          `json:"css,omitempty"`       // css: Additional static CSS files that should be loaded, optional.
	JS        []string          `json:"js,omitempty"`        // js: Additional static JavaScript files that should be loaded, optional.

	path     string // path to the page source
	rel      string // slash-separated source path relative to the documentation directory
	dstPath  string // where to write the built page
	contents []byte // page contents without front matter
}

type date struct {
	time.Time
}

const dateLayout = "2006-01-02"

func (d *date) UnmarshalJSON(p []byte) error {
	s := strings.Trim(string(p), "\"")
	if s == "null" {
		d.Time = time.Time{}
		return nil
	}

	dt, err := time.Parse(dateLayout, s)
	if err != nil {
		return err
	}
	d.Time = dt

	return nil
}

func (p *Page) isIndex() bool { return p.dstPath == "/index.html" }

var htmlCommentLineRe = regexp.MustCompile(`^\s*<!--.*-->\s*$`)

// parse reads the page. Front matter is optional: it must be the first thing
// in the file, preceded only by blank lines and one-line HTML comments.
func (p *Page) parse(r io.Reader) error {
	if !slices.Contains(pageFormats, filepath.Ext(p.path)) {
		return fmt.Errorf("%s: %w", p.path, errFormatUnsupported)
	}

	const (
		leftDelim  = "{"
		rightDelim = "}"
	)

	var (
		scanner               = bufio.NewScanner(r)
		frontmatter, contents []byte
		inFrontmatter         bool
		pastPreamble          bool
	)
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case inFrontmatter:
			frontmatter = append(frontmatter, line+"\n"...)
			if line == rightDelim {
				inFrontmatter = false
				pastPreamble = true
			}
			continue
		case !pastPreamble && line == leftDelim:
			inFrontmatter = true
			frontmatter = append(frontmatter, line+"\n"...)
			continue
		case !pastPreamble && (strings.TrimSpace(line) == "" || htmlCommentLineRe.MatchString(line)):
			continue
		}

		pastPreamble = true
		contents = append(contents, line+"\n"...)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%s: %w: %v", p.path, errFrontmatterSplit, err)
	}
	if inFrontmatter {
		return fmt.Errorf("%s: %w: unterminated frontmatter", p.path, errFrontmatterSplit)
	}
	p.contents = contents

	if len(frontmatter) > 0 {
		if err := json.Unmarshal(frontmatter, p); err != nil {
			return fmt.Errorf("%s: %w: %v", p.path, errFrontmatterParse, err)
		}
	}

	if p.Type == "" {
		p.Type = defaultType
	}
	if p.Template == "" {
		p.Template = defaultTemplate
	}

	if p.Permalink == "" {
		rel := p.rel
		if rel == "" {
			rel = filepath.ToSlash(filepath.Base(p.path))
		}
		p.Permalink = "/" + strings.TrimSuffix(rel, path.Ext(rel)) + ".html"
	}
	if _, err := url.ParseRequestURI(p.Permalink); err != nil {
		return fmt.Errorf("%s: %w: %v", p.path, errPermalinkInvalid, err)
	}
	p.dstPath = p.Permalink
	if !strings.HasSuffix(p.dstPath, ".html") {
		if strings.HasSuffix(p.dstPath, "/") {
			p.dstPath += "index"
		}
		p.dstPath += ".html"
	}
	p.dstPath = path.Clean(p.dstPath)

	return nil
}

var htmlCommentRe = regexp.MustCompile("(?s)<!--(.*?)-->")

// render turns page source into HTML contents, adds heading anchors and
// fills in the title.
func (p *Page) render(b *buildContext) error {
	// We use here text/template, but not html/template because we don't want to
	// escape any HTML on the Markdown source.
	ptpl, err := ttemplate.New(p.path).Funcs(ttemplate.FuncMap(b.funcs)).Parse(string(p.contents))
	if err != nil {
		return err
	}
	var pbuf bytes.Buffer
	if err = ptpl.Execute(&pbuf, p); err != nil {
		return fmt.Errorf("%s: failed to execute page template: %w", p.path, err)
	}
	p.contents = pbuf.Bytes()

	if filepath.Ext(p.path) == ".md" {
		doc := b.md.Parse(string(p.contents))
		p.contents = []byte(markdown.ToHTML(doc))
	}

	p.contents = htmlCommentRe.ReplaceAll(p.contents, []byte{})

	contents, title, err := addHeadingAnchors(p.contents, b.c.HeadingAnchors)
	if err != nil {
		return fmt.Errorf("%s: %w", p.path, err)
	}
	p.contents = contents
	if p.Title == "" {
		p.Title = title
	}
	if p.Title == "" {
		return fmt.Errorf("%s: %w", p.path, errTitleMissing)
	}
	return nil
}

// build wraps rendered contents into the template and writes the minified
// result to w.
func (p *Page) build(b *buildContext, tpl *template.Template, w io.Writer) error {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, p); err != nil {
		return fmt.Errorf("%s: failed to execute template %q: %w", p.path, p.Template, err)
	}

	minified, err := b.min.Bytes("text/html", buf.Bytes())
	if err != nil {
		return err
	}

	_, err = w.Write(minified)
	return err
}

// walkSource collects pages and assets from the documentation directory.
func (b *buildContext) walkSource(path string, d fs.DirEntry, err error) error {
	if err != nil {
		return err
	}

	rel, err := filepath.Rel(b.c.Src, path)
	if err != nil {
		return err
	}
	if rel == "." {
		return nil
	}
	rel = filepath.ToSlash(rel)

	skip, err := b.skip(path, rel, d)
	if err != nil {
		return err
	}
	if skip {
		if d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	}
	if d.IsDir() {
		return nil
	}

	if !slices.Contains(pageFormats, filepath.Ext(path)) {
		b.assets = append(b.assets, rel)
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	p := &Page{path: path, rel: rel}
	if err := p.parse(f); err != nil {
		return err
	}
	if !p.Draft || !b.c.Prod {
		b.pages = append(b.pages, p)
	}

	return nil
}

func (b *buildContext) skip(path, rel string, d fs.DirEntry) (bool, error) {
	if rel == ConfigFile || isIgnorable(path) || strings.HasPrefix(d.Name(), ".") {
		return true, nil
	}
	if d.IsDir() {
		abs, err := filepath.Abs(path)
		if err != nil {
			return false, err
		}
		if slices.Contains(b.skipDirs, abs) {
			return true, nil
		}
	}
	return b.exclude.MatchesOrParentMatches(rel)
}

func isIgnorable(path string) bool {
	// Ignore files that look like Vim backups.
	if strings.HasSuffix(path, "~") {
		return true
	}

	// Ignore .gitignore files.
	if strings.Contains(path, ".gitignore") {
		return true
	}

	return false
}

// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package docs

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// addHeadingAnchors gives every heading from h1 to h<depth> an id (unless it
// already has one) and a permalink to itself. It returns the modified HTML
// and the text of the first h1.
func addHeadingAnchors(contents []byte, depth int) ([]byte, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(contents))
	if err != nil {
		return nil, "", err
	}

	title := strings.TrimSpace(doc.Find("h1").First().Text())
	if depth <= 0 {
		return contents, title, nil
	}

	seen := make(map[string]int)
	doc.Find("[id]").Each(func(_ int, s *goquery.Selection) {
		seen[s.AttrOr("id", "")]++
	})

	doc.Find(headingSelector(depth)).Each(func(_ int, s *goquery.Selection) {
		id, ok := s.Attr("id")
		if !ok || id == "" {
			id = uniqueSlug(seen, s.Text())
			if id == "" {
				return
			}
			s.SetAttr("id", id)
		}
		s.AppendHtml(fmt.Sprintf(`<a class="headerlink" href="#%s" title="Permalink to this heading">¶</a>`, id))
	})

	html, err := doc.Find("body").Html()
	if err != nil {
		return nil, "", err
	}
	return []byte(html), title, nil
}

func headingSelector(depth int) string {
	if depth > 6 {
		depth = 6
	}
	sel := make([]string, 0, depth)
	for i := 1; i <= depth; i++ {
		sel = append(sel, fmt.Sprintf("h%d", i))
	}
	return strings.Join(sel, ", ")
}

// slugify turns heading text into an identifier: lower case ASCII letters and
// digits separated by single dashes.
func slugify(text string) string {
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(stripMarks, text)
	if err != nil {
		folded = text
	}

	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if dash && sb.Len() > 0 {
				sb.WriteByte('-')
			}
			dash = false
			sb.WriteRune(r)
		default:
			dash = true
		}
	}
	return sb.String()
}

// uniqueSlug returns a slug for text that is not yet in seen, and records it.
func uniqueSlug(seen map[string]int, text string) string {
	base := slugify(text)
	if base == "" {
		return ""
	}
	slug := base
	for n := 1; seen[slug] > 0; n++ {
		slug = fmt.Sprintf("%s-%d", base, n)
	}
	seen[slug]++
	return slug
}

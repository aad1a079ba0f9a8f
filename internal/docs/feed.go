// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package docs

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gorilla/feeds"
)

// feedFile is the name of the changelog Atom feed in the generated site.
const feedFile = "feed.xml"

// buildFeed writes an Atom feed of changelog pages, newest first. Nothing is
// written if there are no changelog pages.
func (b *buildContext) buildFeed() error {
	entries := b.pagesByType("changelog")
	if len(entries) == 0 {
		return nil
	}
	entries = append([]*Page(nil), entries...)
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Date == nil || entries[j].Date == nil {
			return entries[j].Date == nil && entries[i].Date != nil
		}
		return entries[i].Date.After(entries[j].Date.Time)
	})

	feed := &feeds.Feed{
		Title:   b.c.Project + " changelog",
		Link:    &feeds.Link{Href: b.absURL("/")},
		Created: time.Now(),
	}
	if b.c.Author != "" {
		feed.Author = &feeds.Author{Name: b.c.Author}
	}
	if !b.c.feedCreated.IsZero() {
		feed.Created = b.c.feedCreated
	}

	for _, p := range entries {
		item := &feeds.Item{
			Id:          b.absURL(p.Permalink),
			Title:       p.Title,
			Link:        &feeds.Link{Href: b.absURL(p.Permalink)},
			Author:      feed.Author,
			Description: p.Summary,
			Content:     string(p.contents),
		}
		if p.Date != nil {
			item.Created = p.Date.Time
		}
		feed.Items = append(feed.Items, item)
	}

	atom, err := feed.ToAtom()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(b.c.Dst, feedFile), []byte(atom), 0o644)
}

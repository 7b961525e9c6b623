// Package analytics holds the visit model shared by the ingest side, the
// stats side and the client tracker: page categories, visit events, and the
// derived metrics shown on the dashboard.
package analytics

import "strings"

// Page is a page category. The set is closed; anything unrecognised is PageOther.
type Page string

const (
	PageHome    Page = "home"
	PageStories Page = "stories"
	PageArt     Page = "art"
	PageAbout   Page = "about"
	PageContact Page = "contact"
	PageOther   Page = "other"
)

// Pages lists every category, in display order.
var Pages = []Page{PageHome, PageStories, PageArt, PageAbout, PageContact, PageOther}

// DashboardPages are the categories reported in page-view breakdowns.
var DashboardPages = []Page{PageHome, PageStories, PageArt, PageAbout, PageContact}

var prefixes = []struct {
	prefix string
	page   Page
}{
	{"/stories", PageStories},
	{"/art", PageArt},
	{"/about", PageAbout},
	{"/contact", PageContact},
}

// ClassifyPath maps a URL path onto a page category.
func ClassifyPath(path string) Page {
	if path == "/" {
		return PageHome
	}
	for _, p := range prefixes {
		if strings.HasPrefix(path, p.prefix) {
			return p.page
		}
	}
	return PageOther
}

// ParsePage maps a reported page name onto a category. Unknown names are PageOther.
func ParsePage(name string) Page {
	switch p := Page(strings.ToLower(strings.TrimSpace(name))); p {
	case PageHome, PageStories, PageArt, PageAbout, PageContact, PageOther:
		return p
	default:
		return PageOther
	}
}

func (p Page) String() string { return string(p) }

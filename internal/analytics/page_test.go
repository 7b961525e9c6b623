package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyPath(t *testing.T) {
	cases := map[string]Page{
		"/":                  PageHome,
		"/stories":           PageStories,
		"/stories/ulker":     PageStories,
		"/art":               PageArt,
		"/art/42":            PageArt,
		"/about":             PageAbout,
		"/contact":           PageContact,
		"/analytics":         PageOther,
		"/sirius":            PageOther,
		"":                   PageOther,
		"/home":              PageOther,
		"/diagnostic/stars/": PageOther,
	}
	for path, want := range cases {
		assert.Equal(t, want, ClassifyPath(path), "path %q", path)
	}
}

func TestParsePage(t *testing.T) {
	assert.Equal(t, PageArt, ParsePage("art"))
	assert.Equal(t, PageStories, ParsePage(" Stories "))
	assert.Equal(t, PageOther, ParsePage("gallery"))
	assert.Equal(t, PageOther, ParsePage(""))
	for _, p := range Pages {
		assert.Equal(t, p, ParsePage(p.String()))
	}
}

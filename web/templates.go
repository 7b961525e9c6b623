package web

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"sync"
)

//go:embed *.html app.css
var content embed.FS

var (
	tmpl *template.Template
	once sync.Once
)

var funcs = template.FuncMap{
	"oneDecimal": func(v float64) string { return fmt.Sprintf("%.1f", v) },
}

// Templates returns the parsed HTML templates for the UI, embedded at build time.
func Templates() *template.Template {
	once.Do(func() {
		tmpl = template.Must(template.New("").Funcs(funcs).ParseFS(content, "*.html"))
	})
	return tmpl
}

// StaticFS exposes embedded static assets such as CSS.
func StaticFS() fs.FS {
	return content
}

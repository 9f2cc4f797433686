// Package web renders the form service's HTML views and serves its static
// assets. Templates and assets are embedded in the binary.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed assets
var assetFS embed.FS

// Views rendered by the form flow.
var views = []string{"index", "form", "age", "result"}

// Renderer executes named views against the shared layout.
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer parses every view together with the layout.
func NewRenderer() (*Renderer, error) {
	pages := make(map[string]*template.Template, len(views))
	for _, v := range views {
		t, err := template.New(v).ParseFS(templateFS, "templates/layout.html", "templates/"+v+".html")
		if err != nil {
			return nil, fmt.Errorf("web: parse %s: %w", v, err)
		}
		pages[v] = t
	}
	return &Renderer{pages: pages}, nil
}

// Render writes view with data and the given status. The page is executed
// into a buffer first so a template failure never leaves a partial response.
func (r *Renderer) Render(w http.ResponseWriter, status int, view string, data any) error {
	t, ok := r.pages[view]
	if !ok {
		return fmt.Errorf("web: unknown view %q", view)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("web: render %s: %w", view, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// Assets serves the embedded static files. Mount it under /assets/.
func Assets() http.Handler {
	sub, err := fs.Sub(assetFS, "assets")
	if err != nil {
		panic(err) // embedded directory is fixed at build time
	}
	return http.StripPrefix("/assets/", http.FileServerFS(sub))
}

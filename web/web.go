// Package web bundles the challenge-page template and its static JS solving
// helper — a thin, non-cryptographic view layered on top of the
// access-control core.
package web

import (
	"embed"
	"html/template"
	"io/fs"
)

//go:embed challenge.html.tmpl
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// ChallengeTemplate parses the embedded challenge page template.
func ChallengeTemplate() (*template.Template, error) {
	return template.ParseFS(templateFS, "challenge.html.tmpl")
}

// Static returns the embedded static/ directory, rooted so its contents are
// served at /static/ without the directory name in the path.
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// Package assets embeds the files served alongside the preview page.
package assets

import (
	"embed"
	"io/fs"
)

//go:embed static
var files embed.FS

// DefaultStylesheet is applied when no stylesheet is configured.
//
//go:embed static/default.css
var DefaultStylesheet string

// Static returns the embedded static directory, rooted so that
// "viewer.js" names static/viewer.js.
func Static() fs.FS {
	sub, err := fs.Sub(files, "static")
	if err != nil {
		// fs.Sub only fails on an invalid path, and "static" is valid.
		panic(err)
	}
	return sub
}

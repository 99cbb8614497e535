// Package web embeds the page templates.
package web

import (
	"embed"
	"io/fs"
)

//go:embed templates
var content embed.FS

// Templates returns the embedded templates rooted at the templates directory.
func Templates() fs.FS {
	sub, err := fs.Sub(content, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

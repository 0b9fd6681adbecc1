// Package web holds the embedded landing page and its assets
package web

import (
	"embed"
	"io/fs"
)

//go:embed index.html static
var content embed.FS

// IndexHTML returns the landing page
func IndexHTML() []byte {
	b, err := content.ReadFile("index.html")
	if err != nil {
		// index.html is embedded at build time
		panic(err)
	}
	return b
}

// Static returns the static asset tree rooted at static/
func Static() fs.FS {
	sub, err := fs.Sub(content, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

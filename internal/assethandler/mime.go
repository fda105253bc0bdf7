package assethandler

import (
	"mime"
	"path"
	"strings"
)

// TypeResolver looks up content types for logical filenames.
type TypeResolver interface {
	// Lookup returns the content type for filename, or "".
	Lookup(filename string) string
	// Charset returns the charset for a content type, or "".
	Charset(contentType string) string
}

type mimeTypes struct{}

// DefaultTypes resolves types through the stdlib mime database.
func DefaultTypes() TypeResolver { return mimeTypes{} }

func (mimeTypes) Lookup(filename string) string {
	return mime.TypeByExtension(path.Ext(filename))
}

func (mimeTypes) Charset(contentType string) string {
	// the stdlib database already carries charset for most text types;
	// cover the text/* entries that come back bare
	if strings.HasPrefix(contentType, "text/") {
		return "utf-8"
	}
	return ""
}

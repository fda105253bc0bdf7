package assethandler

import (
	"net/url"
	"path"
	"strings"
)

// normalizePath maps an escaped URL path to a logical index key:
// percent-decoded, cleaned, no leading or trailing slash. The root
// request maps to indexFile and directory-style requests to
// "<dir>/<indexFile>". ok is false for paths that fail to decode or
// that try to step outside the tree; callers defer those to the next
// handler rather than erroring.
func normalizePath(escaped, indexFile string) (logical string, ok bool) {
	decoded, err := url.PathUnescape(escaped)
	if err != nil {
		return "", false
	}
	if strings.Contains(decoded, "\x00") || strings.Contains(decoded, "\\") {
		return "", false
	}

	trailingSlash := strings.HasSuffix(decoded, "/")

	// rooted Clean resolves dot segments against the virtual root, so
	// the result can never climb out of the tree
	clean := path.Clean("/" + decoded)
	logical = strings.Trim(clean, "/")

	if logical == "" {
		return indexFile, true
	}
	if trailingSlash {
		return logical + "/" + indexFile, true
	}
	return logical, true
}

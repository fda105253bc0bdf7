package assethandler

import (
	"io/fs"
	"net/http"
)

// FileSender performs the byte transfer for a resolved physical file.
// The handler only decides which path and headers to hand it.
type FileSender interface {
	Send(w http.ResponseWriter, r *http.Request, fsys fs.FS, name string, headers http.Header)
}

type fsSender struct{}

// DefaultSender serves files with http.ServeFileFS. Headers resolved by
// the handler are set first; ServeFileFS keeps a pre-set Content-Type
// instead of sniffing one from the compressed extension.
func DefaultSender() FileSender { return fsSender{} }

func (fsSender) Send(w http.ResponseWriter, r *http.Request, fsys fs.FS, name string, headers http.Header) {
	for k, vs := range headers {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	http.ServeFileFS(w, r, fsys, name)
}

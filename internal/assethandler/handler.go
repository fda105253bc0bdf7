// Package assethandler resolves requests against the asset index,
// negotiates a compression variant, and hands the chosen physical file
// to the file sender. Anything it cannot serve is deferred to the next
// handler in the chain, never guessed at.
package assethandler

import (
	"net/http"
	"strings"

	"github.com/varserve/varserve/internal/negotiate"
)

// Pass reasons reported through Options.OnPassed.
const (
	PassDecodeError   = "decode_error"
	PassNotIndexed    = "not_indexed"
	PassNotAcceptable = "no_acceptable_encoding"
)

type Handler struct {
	opts Options
}

func New(opts Options) (*Handler, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Handler{opts: opts}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	logical, ok := normalizePath(r.URL.EscapedPath(), h.opts.IndexFile)
	if !ok {
		h.pass(w, r, PassDecodeError)
		return
	}

	// Startup guarantees the build finishes before traffic is accepted;
	// this block only matters for requests racing that window.
	if err := h.opts.Index.Ready(r.Context()); err != nil {
		h.opts.Logger.Error(r.Context(), err, "index not available")
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	entry, found := h.opts.Index.Index().Lookup(logical)
	if !found {
		h.pass(w, r, PassNotIndexed)
		return
	}

	outcome, err := negotiate.Select(r.Header.Get("Accept-Encoding"), entry.Variants(), h.opts.Negotiation)
	if err != nil {
		// file exists but no registered variant satisfies the client;
		// serving an unacceptable encoding anyway is never an option
		h.pass(w, r, PassNotAcceptable)
		return
	}

	name := entry.PhysicalPath(outcome.Variant)
	if outcome.Variant.IsIdentity() {
		h.opts.Sender.Send(w, r, h.opts.UncompressedFS, name, nil)
	} else {
		headers := make(http.Header, 3)
		if ct := h.contentType(entry.LogicalName()); ct != "" {
			headers.Set("Content-Type", ct)
		}
		headers.Set("Content-Encoding", outcome.Variant.Name)
		// intermediary caches must key on the negotiated header
		headers.Set("Vary", "Accept-Encoding")
		h.opts.Sender.Send(w, r, h.opts.CompressedFS, name, headers)
	}

	if h.opts.OnServed != nil {
		h.opts.OnServed(outcome.Variant.Name, outcome.Fallback)
	}
}

// contentType derives the Content-Type from the logical (uncompressed)
// filename, appending the charset when one is known and the type does
// not already carry one.
func (h *Handler) contentType(logicalName string) string {
	ct := h.opts.Types.Lookup(logicalName)
	if ct == "" {
		return ""
	}
	if cs := h.opts.Types.Charset(ct); cs != "" && !strings.Contains(ct, "charset=") {
		ct += "; charset=" + cs
	}
	return ct
}

func (h *Handler) pass(w http.ResponseWriter, r *http.Request, reason string) {
	if h.opts.OnPassed != nil {
		h.opts.OnPassed(reason)
	}
	h.opts.Next.ServeHTTP(w, r)
}

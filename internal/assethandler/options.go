package assethandler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"

	"github.com/varserve/varserve/internal/assetindex"
	"github.com/varserve/varserve/internal/log"
	"github.com/varserve/varserve/internal/negotiate"
)

var ErrInvalidOptions = errors.New("assethandler: invalid options")

// IndexProvider is the one-shot index the handler serves from.
type IndexProvider interface {
	// Ready blocks until the startup build finished.
	Ready(ctx context.Context) error
	Index() *assetindex.Index
}

type Options struct {
	Logger log.Logger

	// Index is awaited on every request before lookup.
	Index IndexProvider

	// CompressedFS backs compressed variants, UncompressedFS backs
	// identity. They may be the same filesystem.
	CompressedFS   fs.FS
	UncompressedFS fs.FS

	// IndexFile is the logical path served for the root request.
	// Default: "index.html".
	IndexFile string

	// Negotiation carries disable-compression and server order
	// preference into the per-request selection.
	Negotiation negotiate.Prefs

	// Sender performs the byte transfer. Default wraps http.ServeFileFS.
	Sender FileSender
	// Types resolves Content-Type for logical filenames. Default uses
	// the stdlib mime database.
	Types TypeResolver

	// Next handles everything this handler declines: unindexed paths,
	// undecodable paths, and unsatisfiable negotiations.
	Next http.Handler

	// OnServed is invoked after a variant is handed to the sender.
	OnServed func(encoding string, fallback bool)
	// OnPassed is invoked when the request is deferred to Next.
	OnPassed func(reason string)
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.IndexFile == "" {
		o.IndexFile = "index.html"
	}
	if o.Sender == nil {
		o.Sender = DefaultSender()
	}
	if o.Types == nil {
		o.Types = DefaultTypes()
	}
	if o.Next == nil {
		o.Next = http.NotFoundHandler()
	}
}

func (o *Options) validate() error {
	if o.Index == nil {
		return fmt.Errorf("%w: Index is nil", ErrInvalidOptions)
	}
	if o.CompressedFS == nil {
		return fmt.Errorf("%w: CompressedFS is nil", ErrInvalidOptions)
	}
	if o.UncompressedFS == nil {
		return fmt.Errorf("%w: UncompressedFS is nil", ErrInvalidOptions)
	}
	return nil
}

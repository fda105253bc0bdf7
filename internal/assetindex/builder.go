// Package assetindex builds the immutable logical-path index of
// pre-compressed asset variants. The build runs once at startup; after
// completion the index is read-only and safe for unsynchronized
// concurrent lookups.
package assetindex

import (
	"context"
	"time"

	"github.com/varserve/varserve/internal/log"
	"github.com/varserve/varserve/internal/xerrors"
)

// Builder runs a single asynchronous index build and exposes a one-shot
// completion signal. Every request path lookup awaits the signal, so
// traffic arriving during startup queues behind the build instead of
// racing an incomplete index.
type Builder struct {
	opts Options

	done chan struct{}
	// written once before done is closed, read-only afterwards
	index    *Index
	buildErr error
	took     time.Duration
}

func NewBuilder(opts Options) *Builder {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &Builder{opts: opts, done: make(chan struct{})}
}

// Start launches the build. It must be called exactly once.
func (b *Builder) Start(ctx context.Context) {
	go b.run(ctx)
}

func (b *Builder) run(ctx context.Context) {
	start := time.Now()
	ix, err := Build(ctx, b.opts)
	b.index = ix
	b.buildErr = err
	b.took = time.Since(start)
	close(b.done)

	if err != nil {
		b.opts.Logger.Error(ctx, err, "index build failed")
		return
	}
	b.opts.Logger.Info(ctx, "index build complete",
		"logical_paths", ix.Len(),
		"file_errors", ix.FileErrors(),
		"duration", b.took.Seconds(),
	)
}

// Ready blocks until the build completes or ctx is done, and returns
// the build error if the build failed.
func (b *Builder) Ready(ctx context.Context) error {
	select {
	case <-b.done:
		return b.buildErr
	case <-ctx.Done():
		return xerrors.Wrap(ctx.Err(), "awaiting index build")
	}
}

// Index returns the built index. Valid only after Ready returned nil.
func (b *Builder) Index() *Index { return b.index }

// BuildDuration reports how long the build took. Valid after Ready.
func (b *Builder) BuildDuration() time.Duration { return b.took }

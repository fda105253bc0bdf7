package assetindex

import (
	"context"
	"errors"
	"io/fs"
	"path"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/varserve/varserve/internal/log"
	"github.com/varserve/varserve/internal/variant"
	"github.com/varserve/varserve/internal/xerrors"
)

// ErrRootNotFound means the configured asset root is missing or
// unreadable. It is fatal to startup; the server must not come up and
// silently serve nothing.
var ErrRootNotFound = errors.New("asset root not found")

// Options configures one index build.
type Options struct {
	// FS is the compressed asset root.
	FS fs.FS
	// Registry holds the recognized variants.
	Registry *variant.Registry
	// RootsDiffer is set when the uncompressed fallback root is a
	// different directory than FS. It enables identity registration for
	// every compressed file so compression-refusing clients can still be
	// served.
	RootsDiffer bool
	// AliasExts are extensions (no dot) that may be omitted from request
	// paths, in configured order. First match wins.
	AliasExts []string

	Logger log.Logger
}

// Index is the immutable result of a build.
type Index struct {
	entries map[string]*Entry
	// fileErrors counts per-file stat/list failures that were skipped.
	fileErrors int64
}

// Lookup returns the entry for a logical path (no leading or trailing
// slash), or false when the path is not indexed.
func (ix *Index) Lookup(logical string) (*Entry, bool) {
	e, ok := ix.entries[logical]
	return e, ok
}

// Len is the number of logical paths indexed.
func (ix *Index) Len() int { return len(ix.entries) }

// FileErrors is the number of files skipped because their status probe
// failed. Each probe is attempted exactly once.
func (ix *Index) FileErrors() int { return int(ix.fileErrors) }

// EncodingCounts returns how many entries carry each encoding name.
func (ix *Index) EncodingCounts() map[string]int {
	out := make(map[string]int)
	for _, e := range ix.entries {
		for _, v := range e.variants {
			out[v.Name]++
		}
	}
	return out
}

// Paths returns the indexed logical paths, unordered. Intended for
// tests and startup logging.
func (ix *Index) Paths() []string {
	out := make([]string, 0, len(ix.entries))
	for p := range ix.entries {
		out = append(out, p)
	}
	return out
}

// addition is one (logical path, variant) contribution from a file.
type addition struct {
	logical    string
	missingExt string
	v          variant.Variant
}

// Build walks the root once and produces the index. The walk fans out a
// status probe per directory entry and joins all children before a
// directory completes; results merge in listing order, so repeated
// builds over an unchanged tree yield identical indexes.
func Build(ctx context.Context, opts Options) (*Index, error) {
	w := &walker{opts: opts}
	if w.opts.Logger == nil {
		w.opts.Logger = log.Nop()
	}

	if _, err := fs.Stat(opts.FS, "."); err != nil {
		return nil, xerrors.Wrapf(ErrRootNotFound, "stat root: %v", err)
	}

	adds, err := w.walkDir(ctx, ".")
	if err != nil {
		return nil, err
	}

	ix := &Index{entries: make(map[string]*Entry), fileErrors: w.fileErrors.Load()}
	for _, a := range adds {
		e, ok := ix.entries[a.logical]
		if !ok {
			e = &Entry{incomplete: a.logical, missingExt: a.missingExt}
			ix.entries[a.logical] = e
		}
		if e.missingExt != a.missingExt {
			// two differently-aliased files collapsed onto one logical
			// path; first discovery wins, the latecomer is dropped
			w.opts.Logger.Warn(ctx, "alias collision, keeping first discovery",
				"logical_path", a.logical,
				"kept_suffix", e.missingExt,
				"dropped_suffix", a.missingExt,
			)
			continue
		}
		e.add(a.v)
	}
	return ix, nil
}

type walker struct {
	opts       Options
	fileErrors atomic.Int64
}

// walkDir lists dir, probes every entry concurrently, recurses into
// subdirectories, and returns the merged additions in listing order.
// Only root-level failures are fatal.
func (w *walker) walkDir(ctx context.Context, dir string) ([]addition, error) {
	entries, err := fs.ReadDir(w.opts.FS, dir)
	if err != nil {
		if dir == "." {
			return nil, xerrors.Wrapf(ErrRootNotFound, "list root: %v", err)
		}
		w.noteFileError(ctx, dir, err)
		return nil, nil
	}

	results := make([][]addition, len(entries))
	g, ctx := errgroup.WithContext(ctx)
	for i, ent := range entries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			full := ent.Name()
			if dir != "." {
				full = path.Join(dir, ent.Name())
			}
			info, err := fs.Stat(w.opts.FS, full)
			if err != nil {
				w.noteFileError(ctx, full, err)
				return nil
			}
			if info.IsDir() {
				adds, err := w.walkDir(ctx, full)
				if err != nil {
					return err
				}
				results[i] = adds
				return nil
			}
			if !info.Mode().IsRegular() {
				return nil
			}
			results[i] = w.classify(full)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []addition
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged, nil
}

func (w *walker) noteFileError(ctx context.Context, p string, err error) {
	w.fileErrors.Add(1)
	w.opts.Logger.Warn(ctx, "skipping unreadable path", "path", p, "error", err)
}

// classify maps one regular file to its index additions.
func (w *walker) classify(p string) []addition {
	if !w.opts.Registry.CompressionEnabled() {
		// identity-only mode: the file itself, plus an alias-stripped
		// entry when the filename carries a configured alias extension
		adds := []addition{{logical: p, v: variant.Identity}}
		if stripped, suffix, ok := w.stripAlias(p); ok {
			adds = append(adds, addition{logical: stripped, missingExt: suffix, v: variant.Identity})
		}
		return adds
	}

	ext := lastExt(p)
	if ext == variant.IdentityName {
		// ".none" placeholder files mark explicitly-uncompressed
		// artifacts and are not variants themselves
		return nil
	}
	v, ok := w.opts.Registry.ByExt(ext)
	if !ok {
		return nil
	}
	base := strings.TrimSuffix(p, "."+ext)

	adds := []addition{{logical: base, v: v}}
	if w.opts.RootsDiffer {
		adds = append(adds, addition{logical: base, v: variant.Identity})
	}
	if stripped, suffix, ok := w.stripAlias(base); ok {
		adds = append(adds, addition{logical: stripped, missingExt: suffix, v: v})
		if w.opts.RootsDiffer {
			adds = append(adds, addition{logical: stripped, missingExt: suffix, v: variant.Identity})
		}
	}
	return adds
}

// stripAlias removes the first matching configured alias extension from
// p. suffix includes the dot. Matching stops at the first hit.
func (w *walker) stripAlias(p string) (stripped, suffix string, ok bool) {
	for _, alias := range w.opts.AliasExts {
		if alias == "" {
			continue
		}
		s := "." + alias
		if !strings.HasSuffix(p, s) {
			continue
		}
		// the alias must leave a non-empty basename behind
		if rest := len(p) - len(s); rest > 0 && p[rest-1] != '/' {
			return p[:rest], s, true
		}
	}
	return "", "", false
}

// lastExt returns the extension after the final dot, without the dot,
// or "" when the name has none.
func lastExt(p string) string {
	if e := path.Ext(p); e != "" {
		return e[1:]
	}
	return ""
}

package variant

import "strings"

// Custom is a user-configured compression: an encoding name plus the
// extension its precompressed files carry.
type Custom struct {
	Name string
	Ext  string
}

// Config selects which encodings the registry holds.
type Config struct {
	DisableCompression bool
	EnableBrotli       bool
	Custom             []Custom
}

// Registry is an ordered, deduplicating set of variants. Insertion order
// is discovery preference during indexing, not client preference.
// Immutable once built.
type Registry struct {
	order []Variant
	byKey map[string]Variant
}

// NewRegistry builds the registry for cfg. Identity is always first.
// With compression enabled, gzip comes next, then custom compressions in
// configured order, then brotli when enabled. With compression disabled
// only identity is registered.
func NewRegistry(cfg Config) *Registry {
	r := &Registry{byKey: make(map[string]Variant)}
	r.register(Identity)
	if cfg.DisableCompression {
		return r
	}
	r.register(Variant{Name: GzipName, Ext: "gz"})
	for _, c := range cfg.Custom {
		r.register(Variant{Name: c.Name, Ext: normalizeExt(c.Ext)})
	}
	if cfg.EnableBrotli {
		r.register(Variant{Name: BrotliName, Ext: "br"})
	}
	return r
}

// register adds v unless a variant with the same key already exists.
func (r *Registry) register(v Variant) {
	if _, ok := r.byKey[v.key()]; ok {
		return
	}
	r.byKey[v.key()] = v
	r.order = append(r.order, v)
}

// ByExt returns the compressed variant whose files carry ext.
// Identity is never returned here; it has no extension.
func (r *Registry) ByExt(ext string) (Variant, bool) {
	ext = normalizeExt(ext)
	if ext == "" || ext == IdentityName {
		return Variant{}, false
	}
	v, ok := r.byKey[ext]
	return v, ok
}

// Variants returns all registered variants in insertion order.
func (r *Registry) Variants() []Variant {
	out := make([]Variant, len(r.order))
	copy(out, r.order)
	return out
}

// CompressionEnabled reports whether anything beyond identity is registered.
func (r *Registry) CompressionEnabled() bool { return len(r.order) > 1 }

func normalizeExt(ext string) string {
	return strings.TrimPrefix(strings.TrimSpace(ext), ".")
}

package assetindex

import (
	"github.com/varserve/varserve/internal/variant"
)

// Entry is the variant set indexed for one logical request path.
type Entry struct {
	// incomplete is the logical path with the compression extension and
	// any alias extension stripped; recombined with a variant's extension
	// at resolution time. It always equals the index key.
	incomplete string
	// missingExt is the alias suffix stripped from the request path,
	// dot included (".html"), or "" for non-aliased entries.
	missingExt string
	// variants in discovery order, unique by encoding name.
	variants []variant.Variant
}

// add appends v unless a variant with the same encoding name is already
// present. Reports whether v was added.
func (e *Entry) add(v variant.Variant) bool {
	for _, have := range e.variants {
		if have.Name == v.Name {
			return false
		}
	}
	e.variants = append(e.variants, v)
	return true
}

// Variants returns the entry's variant set in discovery order.
func (e *Entry) Variants() []variant.Variant {
	out := make([]variant.Variant, len(e.variants))
	copy(out, e.variants)
	return out
}

// LogicalName is the uncompressed filename for this entry, alias suffix
// restored. It is what MIME type lookup should run against.
func (e *Entry) LogicalName() string {
	return e.incomplete + e.missingExt
}

// PhysicalPath resolves the file to serve for v, relative to the
// compressed root for compressed variants and to the uncompressed root
// for identity.
func (e *Entry) PhysicalPath(v variant.Variant) string {
	name := e.incomplete + e.missingExt
	if !v.IsIdentity() {
		name += "." + v.Ext
	}
	return name
}

// Package variant defines the compression representations an asset can
// have and the ordered registry of encodings the server recognizes.
package variant

// Encoding names as they appear in Accept-Encoding / Content-Encoding.
// IdentityName is the internal marker for the uncompressed representation.
const (
	IdentityName = "none"
	GzipName     = "gzip"
	BrotliName   = "br"
)

// Variant is one representation of an asset: the Content-Encoding it is
// served with and the file extension its physical files carry.
type Variant struct {
	Name string // encoding name; "none" for identity
	Ext  string // extension without dot; "" for identity
}

// Identity is the uncompressed representation.
var Identity = Variant{Name: IdentityName, Ext: ""}

func (v Variant) IsIdentity() bool { return v.Name == IdentityName }

// key identifies a variant in the registry: the file extension for
// compressed variants, the literal "none" for identity.
func (v Variant) key() string {
	if v.IsIdentity() {
		return IdentityName
	}
	return v.Ext
}

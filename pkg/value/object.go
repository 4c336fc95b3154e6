package value

// ObjType discriminates heap object variants. String is the only variant
// this language surface needs (no user classes, no closures - see the
// Non-goals in the language's own spec); the sum-type shape is kept so a
// future variant has somewhere obvious to go.
type ObjType byte

const (
	ObjTypeString ObjType = iota
)

// Obj is the common header every heap object embeds, plus the payload for
// the one variant that exists today. The reference implementation emulates
// inheritance with a C struct whose first field is a shared header; here
// that's a sum type with a single populated field, selected by Type.
//
// Next links the intrusive list of every live object, threaded through the
// VM's object-list root. The list is allocation order (newest first) and
// exists solely so VM teardown can release every heap object in one walk
// without reference counting or a collector.
type Obj struct {
	Type ObjType
	Next *Obj
	Str  *ObjString
}

// ObjString is an immutable, interned byte string. Hash is precomputed at
// construction time (FNV-1a over Chars) so both the intern table and the
// globals table can use it without re-hashing on every lookup.
type ObjString struct {
	Length int
	Hash   uint32
	Chars  string
}

// String implements fmt.Stringer for Obj so Value.String can dispatch
// uniformly regardless of variant.
func (o *Obj) String() string {
	switch o.Type {
	case ObjTypeString:
		return o.Str.Chars
	default:
		return "<obj>"
	}
}

// FNV1a32 computes the 32-bit FNV-1a hash of s, matching the reference
// scanner/object hash function bit for bit (offset basis 2166136261,
// prime 16777619).
func FNV1a32(s string) uint32 {
	const offset32 = 2166136261
	const prime32 = 16777619

	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}

// NewString allocates a fresh, un-interned ObjString/Obj pair. Callers
// (the VM's InternString method) are responsible for the dedup check
// and for threading Next onto the VM's object list - NewString only
// allocates, it never mutates shared state, so it's safe to call before
// deciding whether the result will actually be kept.
func NewString(chars string) *Obj {
	return &Obj{
		Type: ObjTypeString,
		Str: &ObjString{
			Length: len(chars),
			Hash:   FNV1a32(chars),
			Chars:  chars,
		},
	}
}

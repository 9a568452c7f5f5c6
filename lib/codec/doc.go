// Package codec implements the canonical encodings shared by the keyval
// engine: an order-preserving binary encoding for tuple keys and a pluggable
// codec for document values.
//
// The key encoding guarantees that for any two keys a and b, the lexicographic
// order of EncodeKey(a) and EncodeKey(b) equals the tuple order of a and b.
// This property is what allows the storage layer to use the encoded form
// directly as a primary key and to answer prefix scans with a plain range
// query.
//
// The value encoding is canonical JSON. The atomic mutation compiler relies on
// values being stored as JSON text so that sum/max/min and append/prepend can
// be expressed as SQL over the stored bytes (see lib/kv).
package codec

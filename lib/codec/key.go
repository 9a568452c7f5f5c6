package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Key Model
// --------------------------------------------------------------------------

// Key is an ordered tuple of parts. Supported part types are string, int,
// int64, uint64, bool, float64, []byte and Placeholder.
type Key []any

// Placeholder is a key part that is resolved to the versionstamp of the
// commit that writes the key. It enables atomic "create with generated id"
// patterns and is only valid inside an atomic mutation; encoding a key that
// still contains a Placeholder is an error.
type Placeholder struct{}

// Type tags of the encoded form. Tags are ordered so that the encoded bytes
// sort by (type, value), bytes < string < int < float < bool.
const (
	tagBytes   = 0x01
	tagString  = 0x02
	tagIntMin  = 0x0c // int encoded with 8-byte negative magnitude
	tagIntZero = 0x14
	tagIntMax  = 0x1c // int encoded with 8-byte positive magnitude
	tagFloat   = 0x21
	tagFalse   = 0x26
	tagTrue    = 0x27
)

const escape = 0xff

// --------------------------------------------------------------------------
// Key Methods
// --------------------------------------------------------------------------

// Equal reports whether two keys have the same parts in the same order.
// Numeric parts compare by value, so Key{1} equals Key{int64(1)}.
func (k Key) Equal(other Key) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if !partEqual(k[i], other[i]) {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix is a leading subsequence of k's parts.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	return k[:len(prefix)].Equal(prefix)
}

// HasPlaceholder reports whether any part of k is a Placeholder.
func (k Key) HasPlaceholder() bool {
	for _, p := range k {
		if _, ok := p.(Placeholder); ok {
			return true
		}
	}
	return false
}

// Resolve returns a copy of k with every Placeholder part replaced by the
// given versionstamp. Keys without placeholders are returned unchanged.
func (k Key) Resolve(versionstamp string) Key {
	if !k.HasPlaceholder() {
		return k
	}
	resolved := make(Key, len(k))
	for i, p := range k {
		if _, ok := p.(Placeholder); ok {
			resolved[i] = versionstamp
		} else {
			resolved[i] = p
		}
	}
	return resolved
}

// String renders the key in a human-readable form for logs and errors.
func (k Key) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, p := range k {
		if i > 0 {
			sb.WriteByte(',')
		}
		switch v := p.(type) {
		case string:
			sb.WriteString(strconv.Quote(v))
		case []byte:
			fmt.Fprintf(&sb, "0x%x", v)
		case Placeholder:
			sb.WriteString("<versionstamp>")
		default:
			fmt.Fprintf(&sb, "%v", v)
		}
	}
	sb.WriteByte(']')
	return sb.String()
}

func partEqual(a, b any) bool {
	if ab, ok := a.([]byte); ok {
		bb, ok := b.([]byte)
		return ok && bytes.Equal(ab, bb)
	}
	if ai, aok := normInt(a); aok {
		bi, bok := normInt(b)
		return bok && ai == bi
	}
	return a == b
}

// normInt folds the signed integer part types into int64.
func normInt(p any) (int64, bool) {
	switch v := p.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case uint64:
		if v <= math.MaxInt64 {
			return int64(v), true
		}
	}
	return 0, false
}

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

// EncodeKey encodes a key into its canonical, order-preserving binary form.
// The encoded bytes are used as the primary key of kv_entries and as FTS
// document identifiers.
func EncodeKey(key Key) ([]byte, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("codec: cannot encode empty key")
	}
	buf := make([]byte, 0, 16*len(key))
	for i, part := range key {
		var err error
		buf, err = appendPart(buf, part)
		if err != nil {
			return nil, fmt.Errorf("codec: key part %d: %w", i, err)
		}
	}
	return buf, nil
}

// MustEncodeKey is EncodeKey for keys that are known to be valid, e.g.
// literals in tests. It panics on error.
func MustEncodeKey(key Key) []byte {
	b, err := EncodeKey(key)
	if err != nil {
		panic(err)
	}
	return b
}

func appendPart(buf []byte, part any) ([]byte, error) {
	switch v := part.(type) {
	case []byte:
		buf = append(buf, tagBytes)
		buf = appendEscaped(buf, v)
	case string:
		buf = append(buf, tagString)
		buf = appendEscaped(buf, []byte(v))
	case int:
		buf = appendInt(buf, int64(v))
	case int64:
		buf = appendInt(buf, v)
	case uint64:
		buf = appendUint(buf, v)
	case float64:
		buf = append(buf, tagFloat)
		buf = appendFloat(buf, v)
	case bool:
		if v {
			buf = append(buf, tagTrue)
		} else {
			buf = append(buf, tagFalse)
		}
	case Placeholder:
		return nil, fmt.Errorf("unresolved versionstamp placeholder")
	default:
		return nil, fmt.Errorf("unsupported part type %T", part)
	}
	return buf, nil
}

// appendEscaped writes data with 0x00 escaped as 0x00 0xff, terminated by a
// plain 0x00. A shorter byte string therefore always sorts before any of its
// extensions.
func appendEscaped(buf, data []byte) []byte {
	for _, b := range data {
		buf = append(buf, b)
		if b == 0x00 {
			buf = append(buf, escape)
		}
	}
	return append(buf, 0x00)
}

// appendInt encodes n as tag 0x14+len for positive magnitudes and 0x14-len
// with complemented bytes for negative ones, so encoded integers sort
// numerically.
func appendInt(buf []byte, n int64) []byte {
	if n == 0 {
		return append(buf, tagIntZero)
	}
	if n > 0 {
		return appendUint(buf, uint64(n))
	}
	mag := uint64(-n) // safe: -MinInt64 overflow handled below
	if n == math.MinInt64 {
		mag = uint64(math.MaxInt64) + 1
	}
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], ^mag) // one's complement for ordering
	size := 8 - leadingFF(tmp[:])
	buf = append(buf, byte(tagIntZero-size))
	return append(buf, tmp[8-size:]...)
}

func appendUint(buf []byte, n uint64) []byte {
	if n == 0 {
		return append(buf, tagIntZero)
	}
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], n)
	size := 8 - leadingZeros(tmp[:])
	buf = append(buf, byte(tagIntZero+size))
	return append(buf, tmp[8-size:]...)
}

func leadingZeros(b []byte) int {
	n := 0
	for _, c := range b {
		if c != 0x00 {
			break
		}
		n++
	}
	return n
}

func leadingFF(b []byte) int {
	n := 0
	for _, c := range b {
		if c != 0xff {
			break
		}
		n++
	}
	return n
}

// appendFloat writes the IEEE 754 bits transformed so the byte order matches
// the numeric order: positive floats get the sign bit flipped, negative
// floats get all bits flipped.
func appendFloat(buf []byte, f float64) []byte {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], bits)
	return append(buf, tmp[:]...)
}

// --------------------------------------------------------------------------
// Decoding
// --------------------------------------------------------------------------

// DecodeKey decodes the canonical binary form back into a key. Integer parts
// decode as int64, or uint64 when the value exceeds MaxInt64.
func DecodeKey(raw []byte) (Key, error) {
	var key Key
	for len(raw) > 0 {
		part, rest, err := decodePart(raw)
		if err != nil {
			return nil, fmt.Errorf("codec: part %d: %w", len(key), err)
		}
		key = append(key, part)
		raw = rest
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("codec: empty encoded key")
	}
	return key, nil
}

func decodePart(raw []byte) (any, []byte, error) {
	tag := raw[0]
	raw = raw[1:]
	switch {
	case tag == tagBytes:
		data, rest, err := decodeEscaped(raw)
		return data, rest, err
	case tag == tagString:
		data, rest, err := decodeEscaped(raw)
		return string(data), rest, err
	case tag == tagIntZero:
		return int64(0), raw, nil
	case tag > tagIntZero && tag <= tagIntMax:
		size := int(tag - tagIntZero)
		if len(raw) < size {
			return nil, nil, fmt.Errorf("truncated integer")
		}
		var tmp [8]byte
		copy(tmp[8-size:], raw[:size])
		n := binary.BigEndian.Uint64(tmp[:])
		if n > math.MaxInt64 {
			return n, raw[size:], nil
		}
		return int64(n), raw[size:], nil
	case tag >= tagIntMin && tag < tagIntZero:
		size := int(tagIntZero - tag)
		if len(raw) < size {
			return nil, nil, fmt.Errorf("truncated integer")
		}
		tmp := [8]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
		copy(tmp[8-size:], raw[:size])
		mag := ^binary.BigEndian.Uint64(tmp[:])
		if mag == uint64(math.MaxInt64)+1 {
			return int64(math.MinInt64), raw[size:], nil
		}
		return -int64(mag), raw[size:], nil
	case tag == tagFloat:
		if len(raw) < 8 {
			return nil, nil, fmt.Errorf("truncated float")
		}
		bits := binary.BigEndian.Uint64(raw[:8])
		if bits&(1<<63) != 0 {
			bits &^= 1 << 63
		} else {
			bits = ^bits
		}
		return math.Float64frombits(bits), raw[8:], nil
	case tag == tagFalse:
		return false, raw, nil
	case tag == tagTrue:
		return true, raw, nil
	default:
		return nil, nil, fmt.Errorf("unknown type tag 0x%02x", tag)
	}
}

func decodeEscaped(raw []byte) ([]byte, []byte, error) {
	var data []byte
	for i := 0; i < len(raw); i++ {
		if raw[i] != 0x00 {
			data = append(data, raw[i])
			continue
		}
		if i+1 < len(raw) && raw[i+1] == escape {
			data = append(data, 0x00)
			i++
			continue
		}
		return data, raw[i+1:], nil
	}
	return nil, nil, fmt.Errorf("unterminated byte string")
}

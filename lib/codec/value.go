package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Value Codec
// --------------------------------------------------------------------------

// ValueCodec converts opaque document values to and from their stored byte
// form. Implementations must be deterministic: encoding the same value twice
// yields identical bytes.
type ValueCodec interface {
	// EncodeValue serializes a document value into its stored form.
	EncodeValue(v any) ([]byte, error)
	// DecodeValue deserializes stored bytes back into a document value.
	DecodeValue(b []byte) (any, error)
}

// NewJSONValueCodec returns the canonical JSON value codec. This is the codec
// the mutation compiler assumes: values are stored as JSON text, which lets
// sum/max/min and append/prepend be computed inside the SQL backend.
func NewJSONValueCodec() ValueCodec {
	return jsonValueCodec{}
}

type jsonValueCodec struct{}

func (jsonValueCodec) EncodeValue(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: encode value: %w", err)
	}
	return b, nil
}

func (jsonValueCodec) DecodeValue(b []byte) (any, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("codec: decode value: %w", err)
	}
	return v, nil
}

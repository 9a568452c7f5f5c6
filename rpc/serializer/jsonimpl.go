package serializer

import (
	"bytes"
	"encoding/json"
)

// NewJSONSerializer creates a new serializer using json encoding.
func NewJSONSerializer() Serializer {
	return jsonSerializerImpl{}
}

// jsonSerializerImpl implements the Serializer interface using json encoding.
type jsonSerializerImpl struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.Serializer)
// --------------------------------------------------------------------------

func (jsonSerializerImpl) ContentType() string {
	return ContentTypeJSON
}

func (jsonSerializerImpl) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonSerializerImpl) Unmarshal(b []byte, v any) error {
	// Numbers must survive the round trip without float64 coercion; integer
	// key parts depend on it.
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	return dec.Decode(v)
}

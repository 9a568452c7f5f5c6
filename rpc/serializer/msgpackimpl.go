package serializer

import (
	"github.com/vmihailenco/msgpack/v5"
)

// NewMsgpackSerializer creates a new serializer using msgpack encoding.
func NewMsgpackSerializer() Serializer {
	return msgpackSerializerImpl{}
}

// msgpackSerializerImpl implements the Serializer interface using msgpack
// encoding.
type msgpackSerializerImpl struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.Serializer)
// --------------------------------------------------------------------------

func (msgpackSerializerImpl) ContentType() string {
	return ContentTypeMsgpack
}

func (msgpackSerializerImpl) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (msgpackSerializerImpl) Unmarshal(b []byte, v any) error {
	return msgpack.Unmarshal(b, v)
}

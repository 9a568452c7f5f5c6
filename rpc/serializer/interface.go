package serializer

import "fmt"

// Content types handled by the API.
const (
	ContentTypeJSON    = "application/json"
	ContentTypeMsgpack = "application/x-msgpack"
)

// Serializer is the interface for all API payload serializers.
type Serializer interface {
	// ContentType returns the MIME type this serializer produces.
	ContentType() string
	// Marshal serializes a payload into a byte array.
	Marshal(v any) ([]byte, error)
	// Unmarshal deserializes a byte array into the given pointer.
	Unmarshal(b []byte, v any) error
}

// ForContentType returns the serializer for a Content-Type header value.
// An empty content type defaults to JSON.
func ForContentType(contentType string) (Serializer, error) {
	switch contentType {
	case "", ContentTypeJSON:
		return NewJSONSerializer(), nil
	case ContentTypeMsgpack:
		return NewMsgpackSerializer(), nil
	default:
		return nil, fmt.Errorf("serializer: unsupported content type %q", contentType)
	}
}

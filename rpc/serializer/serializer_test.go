package serializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() Serializer{
	"JSON":    NewJSONSerializer,
	"Msgpack": NewMsgpackSerializer,
}

type testPayload struct {
	Key          []any  `json:"key" msgpack:"key"`
	Versionstamp string `json:"versionstamp" msgpack:"versionstamp"`
	OK           bool   `json:"ok" msgpack:"ok"`
	Err          string `json:"error,omitempty" msgpack:"error,omitempty"`
}

func TestSerializerRoundTrip(t *testing.T) {
	payloads := []testPayload{
		{},
		{Key: []any{"posts", "1"}, Versionstamp: "00000196f0a1b2c30000", OK: true},
		{Err: "test error message"},
	}

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			s := factory()
			for _, payload := range payloads {
				data, err := s.Marshal(payload)
				require.NoError(t, err)

				var decoded testPayload
				require.NoError(t, s.Unmarshal(data, &decoded))
				assert.Equal(t, payload.Versionstamp, decoded.Versionstamp)
				assert.Equal(t, payload.OK, decoded.OK)
				assert.Equal(t, payload.Err, decoded.Err)
				assert.Len(t, decoded.Key, len(payload.Key))
			}
		})
	}
}

func TestForContentType(t *testing.T) {
	s, err := ForContentType("")
	require.NoError(t, err)
	assert.Equal(t, ContentTypeJSON, s.ContentType())

	s, err = ForContentType(ContentTypeMsgpack)
	require.NoError(t, err)
	assert.Equal(t, ContentTypeMsgpack, s.ContentType())

	_, err = ForContentType("text/xml")
	assert.Error(t, err)
}

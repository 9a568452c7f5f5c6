package common

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/keyvaldb/keyval/lib/codec"
	"github.com/keyvaldb/keyval/lib/kv"
)

// --------------------------------------------------------------------------
// Wire Types
// --------------------------------------------------------------------------

// Keys travel as arrays of parts. Strings, numbers and booleans map
// directly; byte strings are {"bytes": "<base64>"} and the versionstamp
// placeholder is {"versionstamp": true}.

// CheckDTO is one optimistic-concurrency precondition. An empty versionstamp
// asserts the key does not exist.
type CheckDTO struct {
	Key          []any  `json:"key" msgpack:"key"`
	Versionstamp string `json:"versionstamp,omitempty" msgpack:"versionstamp,omitempty"`
}

// MutationDTO is one staged write. Type is one of set, delete, sum, max,
// min, append, prepend.
type MutationDTO struct {
	Type     string `json:"type" msgpack:"type"`
	Key      []any  `json:"key" msgpack:"key"`
	Value    any    `json:"value,omitempty" msgpack:"value,omitempty"`
	ExpireIn int64  `json:"expire_in,omitempty" msgpack:"expire_in,omitempty"` // seconds
}

// AtomicRequest is the payload of POST /v1/atomic.
type AtomicRequest struct {
	Checks    []CheckDTO    `json:"checks,omitempty" msgpack:"checks,omitempty"`
	Mutations []MutationDTO `json:"mutations,omitempty" msgpack:"mutations,omitempty"`
}

// GetRequest is the payload of POST /v1/get.
type GetRequest struct {
	Key []any `json:"key" msgpack:"key"`
}

// ListRequest is the payload of POST /v1/list.
type ListRequest struct {
	Prefix []any `json:"prefix" msgpack:"prefix"`
	Limit  int   `json:"limit,omitempty" msgpack:"limit,omitempty"`
}

// EntryDTO is one entry in a read or search response.
type EntryDTO struct {
	Key          []any  `json:"key" msgpack:"key"`
	Value        any    `json:"value" msgpack:"value"`
	Versionstamp string `json:"versionstamp" msgpack:"versionstamp"`
}

// CreateIndexRequest is the payload of POST /v1/indexes.
type CreateIndexRequest struct {
	Prefix   []any    `json:"prefix" msgpack:"prefix"`
	Fields   []string `json:"fields" msgpack:"fields"`
	Tokenize string   `json:"tokenize,omitempty" msgpack:"tokenize,omitempty"`
}

// RemoveIndexRequest is the payload of DELETE /v1/indexes.
type RemoveIndexRequest struct {
	Prefix []any `json:"prefix" msgpack:"prefix"`
}

// SearchRequest is the payload of POST /v1/search.
type SearchRequest struct {
	Prefix []any  `json:"prefix" msgpack:"prefix"`
	Query  string `json:"query" msgpack:"query"`
	Limit  int    `json:"limit,omitempty" msgpack:"limit,omitempty"`
}

// ErrorResponse carries an API error message.
type ErrorResponse struct {
	Error string `json:"error" msgpack:"error"`
}

// --------------------------------------------------------------------------
// Key Conversion
// --------------------------------------------------------------------------

// ToKey converts wire key parts into a codec.Key.
func ToKey(parts []any) (codec.Key, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("common: key must have at least one part")
	}
	key := make(codec.Key, len(parts))
	for i, part := range parts {
		converted, err := toKeyPart(part)
		if err != nil {
			return nil, fmt.Errorf("common: key part %d: %w", i, err)
		}
		key[i] = converted
	}
	return key, nil
}

func toKeyPart(part any) (any, error) {
	switch v := part.(type) {
	case string:
		return v, nil
	case bool:
		return v, nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint64:
		return v, nil
	case uint:
		return uint64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", v.String())
		}
		return f, nil
	case []byte:
		return v, nil
	case map[string]any:
		return toObjectPart(v)
	default:
		return nil, fmt.Errorf("unsupported part type %T", part)
	}
}

func toObjectPart(obj map[string]any) (any, error) {
	if raw, ok := obj["bytes"]; ok {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("bytes part must be base64 text")
		}
		data, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("bytes part: %w", err)
		}
		return data, nil
	}
	if raw, ok := obj["versionstamp"]; ok {
		if marker, ok := raw.(bool); ok && marker {
			return codec.Placeholder{}, nil
		}
		return nil, fmt.Errorf("versionstamp part must be true")
	}
	return nil, fmt.Errorf("unknown object part")
}

// FromKey converts a codec.Key into wire key parts.
func FromKey(key codec.Key) []any {
	parts := make([]any, len(key))
	for i, part := range key {
		switch v := part.(type) {
		case []byte:
			parts[i] = map[string]any{"bytes": base64.StdEncoding.EncodeToString(v)}
		case codec.Placeholder:
			parts[i] = map[string]any{"versionstamp": true}
		default:
			parts[i] = v
		}
	}
	return parts
}

// FromEntry converts an engine entry into its wire form.
func FromEntry(entry kv.Entry) EntryDTO {
	return EntryDTO{
		Key:          FromKey(entry.Key),
		Value:        entry.Value,
		Versionstamp: entry.Versionstamp,
	}
}

// FromEntries converts a batch of engine entries into wire form.
func FromEntries(entries []kv.Entry) []EntryDTO {
	out := make([]EntryDTO, len(entries))
	for i, entry := range entries {
		out[i] = FromEntry(entry)
	}
	return out
}

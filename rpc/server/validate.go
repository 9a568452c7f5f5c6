package server

import (
	"encoding/json"
	"fmt"

	"github.com/keyvaldb/keyval/lib/codec"
	"github.com/keyvaldb/keyval/rpc/common"
)

// --------------------------------------------------------------------------
// Request Validation
// --------------------------------------------------------------------------

// validateKey enforces the configured key depth and encoded-size limits.
func (s *Server) validateKey(key codec.Key) error {
	limits := s.config.Limits
	if len(key) > limits.MaxKeyDepth {
		return fmt.Errorf("server: key depth %d exceeds limit %d", len(key), limits.MaxKeyDepth)
	}
	if key.HasPlaceholder() {
		// Placeholder parts are only measurable after resolution; a resolved
		// versionstamp part is 20 characters, well under any sane limit.
		return nil
	}
	encoded, err := codec.EncodeKey(key)
	if err != nil {
		return err
	}
	if len(encoded) > limits.MaxKeySize {
		return fmt.Errorf("server: encoded key size %d exceeds limit %d", len(encoded), limits.MaxKeySize)
	}
	return nil
}

// validateAtomic enforces batch and per-item limits on a commit request.
func (s *Server) validateAtomic(req common.AtomicRequest) error {
	limits := s.config.Limits
	if total := len(req.Checks) + len(req.Mutations); total > limits.MaxMutations {
		return fmt.Errorf("server: %d checks+mutations exceed limit %d", total, limits.MaxMutations)
	}
	for _, check := range req.Checks {
		key, err := common.ToKey(check.Key)
		if err != nil {
			return err
		}
		if err := s.validateKey(key); err != nil {
			return err
		}
	}
	for _, m := range req.Mutations {
		key, err := common.ToKey(m.Key)
		if err != nil {
			return err
		}
		if err := s.validateKey(key); err != nil {
			return err
		}
		if m.Value != nil {
			raw, err := json.Marshal(m.Value)
			if err != nil {
				return fmt.Errorf("server: unserializable value: %w", err)
			}
			if len(raw) > limits.MaxValueSize {
				return fmt.Errorf("server: value size %d exceeds limit %d", len(raw), limits.MaxValueSize)
			}
		}
	}
	return nil
}

// toInt64 normalizes the numeric operand of sum/max/min from any of the
// serializers' number representations.
func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > 1<<63-1 {
			return 0, fmt.Errorf("server: numeric operand %d overflows int64", n)
		}
		return int64(n), nil
	case float64:
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("server: numeric operand %v is not an integer", n)
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	default:
		return 0, fmt.Errorf("server: numeric operand must be an integer, got %T", v)
	}
}

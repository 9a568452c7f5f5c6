package kv

import (
	"encoding/binary"
	"encoding/hex"
	"sync"
	"time"
)

// --------------------------------------------------------------------------
// Versionstamp Minting
// --------------------------------------------------------------------------

// A versionstamp is 10 bytes hex-encoded to 20 characters: 8 bytes of
// big-endian unix milliseconds followed by a 2-byte in-process sequence
// number. Lexicographic order of versionstamps therefore equals mint order
// within one process.
const versionstampLen = 20

// stampMinter mints strictly increasing versionstamps.
//
// Thread-safety: mint is safe for concurrent use.
type stampMinter struct {
	mu      sync.Mutex
	millis  int64
	counter uint16
}

func (m *stampMinter) mint() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UnixMilli()
	switch {
	case now > m.millis:
		m.millis = now
		m.counter = 0
	case m.counter == 0xffff:
		// Sequence exhausted within one logical millisecond, borrow from the
		// future to stay strictly increasing.
		m.millis++
		m.counter = 0
	default:
		m.counter++
	}

	var raw [10]byte
	binary.BigEndian.PutUint64(raw[:8], uint64(m.millis))
	binary.BigEndian.PutUint16(raw[8:], m.counter)
	return hex.EncodeToString(raw[:])
}

// isValidVersionstamp reports whether s has the canonical 20-hex-char form.
func isValidVersionstamp(s string) bool {
	if len(s) != versionstampLen {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Package serializer provides payload serialization for the keyval HTTP API.
// It defines a common interface and two implementations, negotiated by
// Content-Type: JSON for debuggability and interoperability, and msgpack for
// compact payloads between keyval-aware clients.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
package serializer

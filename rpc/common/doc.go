// Package common holds the shared pieces of the keyval HTTP API: the server
// configuration, the wire-level request/response types (including the
// conversion between wire key parts and codec.Key tuples), and the logger
// factory used across the server.
package common

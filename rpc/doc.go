// Package rpc provides the HTTP surface of the keyval engine. It maps the
// engine's operations 1:1 onto HTTP endpoints.
//
// The package is organized into several subpackages:
//
//   - common: Shared data structures used across the API: server
//     configuration, wire-level request/response types and the key-part
//     conversion, and the logger factory.
//
//   - serializer: Payload serialization with multiple format options (JSON,
//     msgpack), negotiated via Content-Type.
//
//   - server: The chi-based HTTP server, request validation and the handler
//     for each engine operation, plus the Prometheus metrics endpoint.
package rpc

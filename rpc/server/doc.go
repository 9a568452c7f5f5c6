// Package server implements the keyval HTTP API on a chi router.
//
// Endpoints map 1:1 onto engine operations: POST /v1/atomic is an atomic
// commit, POST /v1/get and /v1/list are primary reads, /v1/indexes manages
// the full-text index lifecycle, POST /v1/search runs a full-text query, and
// GET /metrics exposes the engine's operation metrics together with Go
// process metrics in Prometheus exposition format.
//
// Untrusted input is validated here (key depth and size, value size,
// mutation batch cap, search limit clamp) before it reaches the engine.
package server

// Package testing provides shared test tooling for backend.Backend
// implementations: a conformance suite exercising the contract (including
// batch atomicity) and a recording spy backend used by engine unit tests to
// observe and script the SQL traffic.
package testing

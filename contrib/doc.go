// Package contrib holds utilities that sit outside the core geo query
// engine and its stores.
//
// Nothing here is covered by the compatibility guarantees of the core
// packages. [github.com/surrealdb/surrealgeo/contrib/testenv] wires the
// SurrealDB and Redis stores to real servers for integration tests and
// provides a deterministic slog handler for example output.
package contrib

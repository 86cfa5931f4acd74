// Package store provides core.Store implementations for agent memory tails.
//
// InMemoryStore keeps values in process memory and is the default backend.
// Compressed wraps any Store with zstd compression. The sqlite and postgres
// subpackages persist tails in a single key/value table.
package store

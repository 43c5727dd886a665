// Package sqlite provides the SQLite-backed backend storage implementation.
//
// Player state is split into a metadata row and one row per model key so an
// update rewrites only the keys a command changed.
package sqlite

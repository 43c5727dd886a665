// Package storage defines persistence contracts for backend player state and audit.
package storage

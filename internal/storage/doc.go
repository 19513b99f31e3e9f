// Package storage opens the SQLite databases used for datasets and
// visualization, and packs float arrays into blobs.
package storage

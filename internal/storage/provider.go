// Package storage gives read/write access to the static site tree that holds
// scenario definitions and evidence files.
package storage

import "time"

// FileInfo describes one file found under the site root.
type FileInfo struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provider is the interface for site file operations. Paths are slash
// separated and relative to the provider root.
type Provider interface {
	// List returns every regular file under dir, optionally restricted to
	// the given extensions (".json", ".txt"). No extensions means all files.
	List(dir string, exts ...string) ([]FileInfo, error)
	Read(path string) ([]byte, error)
	// Write atomically replaces path with content.
	Write(path string, content []byte) error
}

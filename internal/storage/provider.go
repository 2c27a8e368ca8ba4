// Package storage confines file access to one root directory and writes
// atomically. It backs chapter sources, build output and published assets.
package storage

import "github.com/starford/scimark/internal/models"

// Provider is the interface for file operations under a root.
type Provider interface {
	// Root returns the absolute root directory.
	Root() string
	// List returns metadata for every file under dir whose name ends in ext.
	// An empty ext matches every file.
	List(dir, ext string) ([]models.FileMeta, error)
	// Read returns the raw bytes of the file at path (relative to root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to root).
	Write(path string, content []byte) error
	// Copy atomically copies the file at the absolute path src to path.
	Copy(src, path string) error
	// Delete removes the file at path (relative to root).
	Delete(path string) error
}

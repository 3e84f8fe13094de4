package fsutil

import "io"

// FileStore provides an interface for file system operations
type FileStore interface {
	// ReadFile reads a file and returns its contents
	ReadFile(path string) ([]byte, error)

	// ReadFileAsStream opens a file and returns a reader
	ReadFileAsStream(path string) (io.ReadCloser, error)

	// WriteFile replaces the file at path with data. Readers never observe a partially written file.
	WriteFile(path string, data []byte) error

	// Exists reports whether a regular file exists at path
	Exists(path string) (bool, error)

	// MakeDirectory creates a new directory and all necessary parents
	MakeDirectory(path string) error

	// Remove removes a single file or empty directory
	Remove(path string) error

	// RemoveAll removes a path and any children it contains
	RemoveAll(path string) error
}

package filesystem

import (
	"io"
	"os"
	"path/filepath"
)

// OSFileSystem performs the file operations the storage layer needs
// using the local filesystem.
type OSFileSystem struct{}

// NewOSFileSystem creates a new OS filesystem
func NewOSFileSystem() *OSFileSystem {
	return &OSFileSystem{}
}

// CreateFile creates a new file, truncating it if it already exists
func (fs *OSFileSystem) CreateFile(path string) (io.WriteCloser, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	return os.Create(path)
}

// AppendFile opens a file for appending, creating it if it does not exist
func (fs *OSFileSystem) AppendFile(path string) (io.WriteCloser, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

// OpenFile opens an existing file for reading
func (fs *OSFileSystem) OpenFile(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// DeleteFile deletes a file
func (fs *OSFileSystem) DeleteFile(path string) error {
	return os.Remove(path)
}

// EnsureDirectory ensures a directory exists
func (fs *OSFileSystem) EnsureDirectory(path string) error {
	return os.MkdirAll(path, 0o755)
}

// FileExists checks if a file exists
func (fs *OSFileSystem) FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

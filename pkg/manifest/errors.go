package manifest

import "errors"

var (
	ErrNoFiles        = errors.New("invalid manifest: no files")
	ErrEmptyPath      = errors.New("invalid manifest: file path is empty")
	ErrNegativeLength = errors.New("invalid manifest: file length is negative")
)

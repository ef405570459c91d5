package writer

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownPiece      = errors.New("piece index out of range")
	ErrPieceSizeMismatch = errors.New("piece length does not match manifest")
	ErrFragmentWrite     = errors.New("failed to write fragment file")
)

// PieceError reports the failure of a single piece within a batch.
type PieceError struct {
	Index int
	Err   error
}

func (e *PieceError) Error() string {
	return fmt.Sprintf("piece %d: %v", e.Index, e.Err)
}

func (e *PieceError) Unwrap() error {
	return e.Err
}

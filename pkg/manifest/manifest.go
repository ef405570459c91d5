package manifest

import "math"

// File describes one output file of a transfer: its path relative to the
// transfer root directory and its exact length in bytes.
type File struct {
	Path   string `json:"path"`
	Length int64  `json:"length"`
}

// Manifest is the ordered list of files composing a transfer. The flat
// byte stream that pieces index into is the concatenation of these files
// in manifest order.
type Manifest struct {
	Files []File `json:"files"`
}

// Validate checks that the manifest describes a well-formed transfer.
func (m Manifest) Validate() error {
	if len(m.Files) == 0 {
		return ErrNoFiles
	}

	for _, f := range m.Files {
		if f.Path == "" {
			return ErrEmptyPath
		}
		if f.Length < 0 {
			return ErrNegativeLength
		}
	}

	return nil
}

// TotalLength returns the length of the flat transfer byte stream.
func (m Manifest) TotalLength() int64 {
	var total int64
	for _, f := range m.Files {
		total += f.Length
	}

	return total
}

// PieceCount returns the number of pieces the transfer is divided into
// for the given piece size.
func (m Manifest) PieceCount(pieceSize int64) int {
	if pieceSize <= 0 {
		return 0
	}

	return int(math.Ceil(float64(m.TotalLength()) / float64(pieceSize)))
}

// PieceLength returns the expected byte length of the piece at index.
// Every piece is exactly pieceSize bytes except the last, which holds
// whatever remains of the stream. Out-of-range indices return 0.
func (m Manifest) PieceLength(index int, pieceSize int64) int64 {
	if index < 0 || pieceSize <= 0 {
		return 0
	}

	total := m.TotalLength()
	start := int64(index) * pieceSize
	if start >= total {
		return 0
	}

	if start+pieceSize > total {
		return total - start
	}

	return pieceSize
}

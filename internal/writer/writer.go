package writer

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/NamanBalaji/piecestore/internal/filesystem"
	"github.com/NamanBalaji/piecestore/internal/logger"
	"github.com/NamanBalaji/piecestore/pkg/layout"
)

// Piece is one verified piece delivered by the selection layer: its
// 0-based index in the flat transfer stream and its bytes.
type Piece struct {
	Index int
	Data  []byte
}

// Writer persists verified pieces to their fragment files according to
// an immutable layout.
type Writer struct {
	layout      *layout.Layout
	fs          *filesystem.OSFileSystem
	concurrency int
}

// New creates a writer for the given layout. concurrency bounds how many
// pieces of one batch are written in parallel.
func New(l *layout.Layout, fs *filesystem.OSFileSystem, concurrency int) *Writer {
	if concurrency < 1 {
		concurrency = 1
	}

	return &Writer{
		layout:      l,
		fs:          fs,
		concurrency: concurrency,
	}
}

// WriteBatch persists every piece in the batch to its fragment file(s).
// Distinct pieces never target the same fragment file, so they are
// written in parallel up to the configured bound. Every piece is
// attempted even when others fail; the returned error joins one
// PieceError per failed piece. Returns the number of bytes persisted.
func (w *Writer) WriteBatch(pieces []Piece) (int64, error) {
	logger.Debugf("Writing batch of %d pieces", len(pieces))

	var (
		mu      sync.Mutex
		errs    []error
		written int64
	)

	g := new(errgroup.Group)
	g.SetLimit(w.concurrency)

	for _, p := range pieces {
		p := p
		g.Go(func() error {
			if err := w.writePiece(p); err != nil {
				logger.Errorf("Failed to write piece %d: %v", p.Index, err)

				mu.Lock()
				errs = append(errs, &PieceError{Index: p.Index, Err: err})
				mu.Unlock()

				return nil
			}

			mu.Lock()
			written += int64(len(p.Data))
			mu.Unlock()

			return nil
		})
	}

	_ = g.Wait()

	logger.Debugf("Batch done: %d bytes written, %d pieces failed", written, len(errs))

	return written, errors.Join(errs...)
}

// writePiece validates a piece's length against the layout and writes
// its bytes to one fragment file, or to several when the piece straddles
// file boundaries.
func (w *Writer) writePiece(p Piece) error {
	if p.Index < 0 || p.Index >= w.layout.PieceCount() {
		return fmt.Errorf("%w: index %d, piece count %d", ErrUnknownPiece, p.Index, w.layout.PieceCount())
	}

	expected := w.layout.PieceLength(p.Index)
	if int64(len(p.Data)) != expected {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrPieceSizeMismatch, len(p.Data), expected)
	}

	switch s := w.layout.Structure.(type) {
	case layout.SingleFile:
		return w.writeFragment(s.FragmentPaths[p.Index], p.Data)
	case layout.MultiFile:
		// Each extent is an independent write to its own fragment file.
		// A failed extent leaves earlier extents in place; redelivering
		// the piece rewrites all of them with identical bytes.
		var off int64
		for _, ext := range s.Pieces[p.Index] {
			if err := w.writeFragment(ext.FragmentPath, p.Data[off:off+ext.Length]); err != nil {
				return err
			}
			off += ext.Length
		}

		return nil
	}

	return fmt.Errorf("unknown layout structure %T", w.layout.Structure)
}

func (w *Writer) writeFragment(path string, data []byte) error {
	f, err := w.fs.CreateFile(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrFragmentWrite, path, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("%w: %s: %v", ErrFragmentWrite, path, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrFragmentWrite, path, err)
	}

	logger.Debugf("Wrote %d bytes to fragment %s", len(data), path)

	return nil
}

// Package piecestore is the on-disk persistence layer of the transfer
// client. It maps hash-verified pieces of the flat transfer byte stream
// onto fragment files and, once every fragment of an output file is on
// disk, assembles the final file by ordered concatenation. Piece
// scheduling, peer transport and hash verification live in the layers
// above; they hand this package (index, bytes) pairs and a parsed
// manifest.
package piecestore

import (
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/NamanBalaji/piecestore/internal/assembler"
	"github.com/NamanBalaji/piecestore/internal/config"
	"github.com/NamanBalaji/piecestore/internal/filesystem"
	"github.com/NamanBalaji/piecestore/internal/logger"
	"github.com/NamanBalaji/piecestore/internal/repository"
	"github.com/NamanBalaji/piecestore/internal/writer"
	"github.com/NamanBalaji/piecestore/pkg/layout"
	"github.com/NamanBalaji/piecestore/pkg/manifest"
)

// Re-exported so callers deal with a single package.
type (
	Manifest = manifest.Manifest
	File     = manifest.File
)

// Piece is one verified piece delivered by the selection layer: its
// 0-based index in the flat transfer stream and its bytes.
type Piece struct {
	Index int
	Data  []byte
}

// Options overrides the on-disk configuration for one store. Zero-value
// fields keep the configured (or default) values.
type Options struct {
	Debug            bool
	LogPath          string
	StateDBPath      string
	WriteConcurrency int
}

// Store owns the persistence pipeline of one transfer: the immutable
// layout, the fragment writer, the completion assembler and the durable
// assembly-state repository.
type Store struct {
	ID uuid.UUID

	layout *layout.Layout
	writer *writer.Writer
	asm    *assembler.Assembler
	repo   repository.Repository

	bytesWritten int64
}

// New plans the layout for a transfer and builds its store. rootDir is
// where output files land; when empty, the configured download
// directory is used. opts may be nil.
func New(m Manifest, pieceSize int64, rootDir string, opts *Options) (*Store, error) {
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	applyOptions(cfg, opts)

	if err := logger.InitLogging(cfg.Debug, cfg.LogPath); err != nil {
		return nil, err
	}

	if rootDir == "" {
		rootDir = cfg.Storage.DownloadDir
	}

	l, err := layout.Plan(m, pieceSize, rootDir)
	if err != nil {
		return nil, err
	}

	fs := filesystem.NewOSFileSystem()
	if err := fs.EnsureDirectory(l.FragmentDir); err != nil {
		return nil, fmt.Errorf("failed to create fragment directory: %w", err)
	}

	if err := fs.EnsureDirectory(filepath.Dir(cfg.Storage.StateDBPath)); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	repo, err := repository.NewBboltRepository(cfg.Storage.StateDBPath)
	if err != nil {
		return nil, err
	}

	id := uuid.New()

	logger.Infof("Store %s created: %d files, %d pieces, root %s", id, len(m.Files), l.PieceCount(), rootDir)

	return &Store{
		ID:     id,
		layout: l,
		writer: writer.New(l, fs, cfg.Storage.WriteConcurrency),
		asm:    assembler.New(l, fs, repo, id),
		repo:   repo,
	}, nil
}

func applyOptions(cfg *config.Config, opts *Options) {
	if opts == nil {
		return
	}

	if opts.Debug {
		cfg.Debug = true
	}
	if opts.LogPath != "" {
		cfg.LogPath = opts.LogPath
	}
	if opts.StateDBPath != "" {
		cfg.Storage.StateDBPath = opts.StateDBPath
	}
	if opts.WriteConcurrency > 0 {
		cfg.Storage.WriteConcurrency = opts.WriteConcurrency
	}
}

// WriteBatch durably writes a batch of verified pieces to their fragment
// files. Every piece is attempted; the returned error joins one error
// per rejected or failed piece, and the caller may redeliver those
// pieces in a later batch.
func (s *Store) WriteBatch(pieces []Piece) error {
	batch := make([]writer.Piece, len(pieces))
	for i, p := range pieces {
		batch[i] = writer.Piece{Index: p.Index, Data: p.Data}
	}

	n, err := s.writer.WriteBatch(batch)
	atomic.AddInt64(&s.bytesWritten, n)

	return err
}

// PromoteCompleted assembles every output file whose fragments are all
// on disk and that has not been assembled yet. Call it after each write
// batch. Returns the output paths assembled by this call.
func (s *Store) PromoteCompleted() ([]string, error) {
	return s.asm.PromoteCompleted()
}

// Cleanup removes the fragment files of outputs that are already
// assembled.
func (s *Store) Cleanup() error {
	return s.asm.RemoveFragments()
}

// BytesWritten returns the number of piece bytes durably written so far,
// counting redelivered pieces again.
func (s *Store) BytesWritten() int64 {
	return atomic.LoadInt64(&s.bytesWritten)
}

// TotalBytes returns the total length of the transfer.
func (s *Store) TotalBytes() int64 {
	return s.layout.Manifest.TotalLength()
}

// Progress returns the percentage of the transfer's bytes written.
func (s *Store) Progress() float64 {
	total := s.TotalBytes()
	if total <= 0 {
		return 0
	}

	written := s.BytesWritten()
	if written > total {
		written = total
	}

	return float64(written) / float64(total) * 100
}

// Outputs returns the dependency table: each final output file with the
// ordered fragments that assemble it.
func (s *Store) Outputs() []layout.Output {
	return s.layout.Outputs()
}

// Close releases the state repository.
func (s *Store) Close() error {
	return s.repo.Close()
}

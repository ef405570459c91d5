package layout

import (
	"fmt"
	"path/filepath"

	"github.com/NamanBalaji/piecestore/internal/logger"
	"github.com/NamanBalaji/piecestore/pkg/manifest"
)

// fragmentDirName is the directory under the transfer root that holds
// fragment files until their outputs are assembled.
const fragmentDirName = ".fragments"

// Extent is one contiguous run of a piece's bytes destined for a single
// fragment file. A piece that straddles file boundaries is described by
// an ordered list of extents, one per file it touches.
type Extent struct {
	Length       int64
	FragmentPath string
}

// Output names a final output file and the ordered list of fragment
// files that must all exist before it can be assembled. Concatenating
// the fragments in list order reproduces the file byte for byte.
type Output struct {
	Path      string
	Fragments []string
}

// Structure is the piece-to-fragment mapping of a transfer. Exactly two
// implementations exist; consumers switch over the concrete type.
type Structure interface {
	isStructure()
}

// SingleFile maps each piece index to its own fragment file. Used when
// the manifest has exactly one file, so no piece ever spans files.
type SingleFile struct {
	FragmentPaths []string
	OutputPath    string
}

// MultiFile maps each piece index to the ordered extents it contributes
// to one or more files, plus the per-output dependency table.
type MultiFile struct {
	Pieces  [][]Extent
	Outputs []Output
}

func (SingleFile) isStructure() {}
func (MultiFile) isStructure()  {}

// Layout is the immutable write plan for a transfer, computed once
// before any pieces arrive and shared read-only by writer and assembler.
type Layout struct {
	RootDir     string
	FragmentDir string
	PieceSize   int64
	Manifest    manifest.Manifest
	Structure   Structure
}

// Plan computes the layout for a transfer. It is pure and deterministic:
// the same manifest, piece size and root directory always produce the
// same fragment and output paths. It fails before any I/O if the
// manifest is malformed or the piece size is not positive.
func Plan(m manifest.Manifest, pieceSize int64, rootDir string) (*Layout, error) {
	if pieceSize <= 0 {
		return nil, ErrInvalidPieceSize
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	l := &Layout{
		RootDir:     rootDir,
		FragmentDir: filepath.Join(rootDir, fragmentDirName),
		PieceSize:   pieceSize,
		Manifest:    m,
	}

	if len(m.Files) == 1 {
		l.Structure = planSingleFile(m.Files[0], l)
	} else {
		l.Structure = planMultiFile(m, pieceSize, l)
	}

	logger.Debugf("Planned layout: %d files, %d pieces of %d bytes under %s",
		len(m.Files), l.PieceCount(), pieceSize, rootDir)

	return l, nil
}

// PieceCount returns the number of pieces in the transfer.
func (l *Layout) PieceCount() int {
	return l.Manifest.PieceCount(l.PieceSize)
}

// PieceLength returns the expected byte length of the piece at index.
func (l *Layout) PieceLength(index int) int64 {
	return l.Manifest.PieceLength(index, l.PieceSize)
}

// Outputs returns the dependency table: every final output file with the
// ordered fragment list that assembles it.
func (l *Layout) Outputs() []Output {
	switch s := l.Structure.(type) {
	case SingleFile:
		return []Output{{Path: s.OutputPath, Fragments: s.FragmentPaths}}
	case MultiFile:
		return s.Outputs
	}

	return nil
}

func planSingleFile(f manifest.File, l *Layout) SingleFile {
	n := l.PieceCount()

	paths := make([]string, n)
	for i := range paths {
		paths[i] = filepath.Join(l.FragmentDir, wholeFragmentName(i))
	}

	return SingleFile{
		FragmentPaths: paths,
		OutputPath:    filepath.Join(l.RootDir, f.Path),
	}
}

func planMultiFile(m manifest.Manifest, pieceSize int64, l *Layout) MultiFile {
	total := m.TotalLength()
	n := l.PieceCount()

	outputs := make([]Output, len(m.Files))
	for fi, f := range m.Files {
		outputs[fi] = Output{Path: filepath.Join(l.RootDir, f.Path)}
	}

	pieces := make([][]Extent, n)

	// Walk pieces and files in lockstep over the flat byte stream. Both
	// cursors only ever move forward, so planning is linear in
	// pieces + files.
	fi := 0
	var fileStart int64

	for i := range pieces {
		pieceStart := int64(i) * pieceSize
		pieceEnd := pieceStart + pieceSize
		if pieceEnd > total {
			pieceEnd = total
		}

		// Skip files that end at or before this piece starts.
		for fi < len(m.Files) && fileStart+m.Files[fi].Length <= pieceStart {
			fileStart += m.Files[fi].Length
			fi++
		}

		// Collect the intersection of this piece with every file it
		// touches. A file shorter than a piece makes this list longer
		// than two entries; order follows the flat stream.
		type span struct {
			file   int
			length int64
		}
		var spans []span

		fj, fjStart := fi, fileStart
		for fj < len(m.Files) && fjStart < pieceEnd {
			fileEnd := fjStart + m.Files[fj].Length

			lo := max(pieceStart, fjStart)
			hi := min(pieceEnd, fileEnd)
			if hi > lo {
				spans = append(spans, span{file: fj, length: hi - lo})
			}

			fjStart = fileEnd
			fj++
		}

		extents := make([]Extent, 0, len(spans))
		for j, s := range spans {
			name := wholeFragmentName(i)
			if len(spans) > 1 {
				name = splitFragmentName(i, j)
			}

			path := filepath.Join(l.FragmentDir, name)
			extents = append(extents, Extent{Length: s.length, FragmentPath: path})
			outputs[s.file].Fragments = append(outputs[s.file].Fragments, path)
		}

		pieces[i] = extents
	}

	return MultiFile{Pieces: pieces, Outputs: outputs}
}

func wholeFragmentName(piece int) string {
	return fmt.Sprintf("piece-%d.bin", piece)
}

func splitFragmentName(piece, extent int) string {
	return fmt.Sprintf("piece-%d.%d.bin", piece, extent)
}

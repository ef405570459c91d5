package layout_test

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/NamanBalaji/piecestore/pkg/layout"
	"github.com/NamanBalaji/piecestore/pkg/manifest"
)

func TestPlan_InvalidInput(t *testing.T) {
	valid := manifest.Manifest{Files: []manifest.File{{Path: "a", Length: 1}}}

	if _, err := layout.Plan(valid, 0, "/dl"); !errors.Is(err, layout.ErrInvalidPieceSize) {
		t.Errorf("expected ErrInvalidPieceSize, got %v", err)
	}
	if _, err := layout.Plan(valid, -4, "/dl"); !errors.Is(err, layout.ErrInvalidPieceSize) {
		t.Errorf("expected ErrInvalidPieceSize for negative size, got %v", err)
	}

	bad := manifest.Manifest{Files: []manifest.File{{Path: "a", Length: -1}}}
	if _, err := layout.Plan(bad, 4, "/dl"); !errors.Is(err, manifest.ErrNegativeLength) {
		t.Errorf("expected ErrNegativeLength, got %v", err)
	}
	if _, err := layout.Plan(manifest.Manifest{}, 4, "/dl"); !errors.Is(err, manifest.ErrNoFiles) {
		t.Errorf("expected ErrNoFiles, got %v", err)
	}
}

func TestPlan_SingleFile(t *testing.T) {
	m := manifest.Manifest{Files: []manifest.File{{Path: "movie.mkv", Length: 10}}}

	l, err := layout.Plan(m, 4, "/dl")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	s, ok := l.Structure.(layout.SingleFile)
	if !ok {
		t.Fatalf("expected SingleFile structure, got %T", l.Structure)
	}

	if len(s.FragmentPaths) != 3 {
		t.Fatalf("expected 3 fragments for length 10 / piece 4, got %d", len(s.FragmentPaths))
	}
	if s.OutputPath != filepath.Join("/dl", "movie.mkv") {
		t.Errorf("unexpected output path %s", s.OutputPath)
	}

	seen := map[string]bool{}
	for _, p := range s.FragmentPaths {
		if seen[p] {
			t.Errorf("duplicate fragment path %s", p)
		}
		seen[p] = true

		if filepath.Dir(p) != l.FragmentDir {
			t.Errorf("fragment %s not under fragment dir %s", p, l.FragmentDir)
		}
	}

	outs := l.Outputs()
	if len(outs) != 1 || outs[0].Path != s.OutputPath || len(outs[0].Fragments) != 3 {
		t.Errorf("Outputs() inconsistent with single-file structure: %+v", outs)
	}
}

// a.txt(5) + b.txt(5) with piece size 4. Piece 1 straddles the boundary:
// 1 byte belongs to a.txt, 3 bytes to b.txt.
func TestPlan_SplitPiece(t *testing.T) {
	m := manifest.Manifest{Files: []manifest.File{
		{Path: "a.txt", Length: 5},
		{Path: "b.txt", Length: 5},
	}}

	l, err := layout.Plan(m, 4, "/dl")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	s, ok := l.Structure.(layout.MultiFile)
	if !ok {
		t.Fatalf("expected MultiFile structure, got %T", l.Structure)
	}

	if len(s.Pieces) != 3 {
		t.Fatalf("expected 3 pieces, got %d", len(s.Pieces))
	}

	if len(s.Pieces[0]) != 1 || s.Pieces[0][0].Length != 4 {
		t.Errorf("piece 0 should be whole with length 4, got %+v", s.Pieces[0])
	}
	if len(s.Pieces[1]) != 2 {
		t.Fatalf("piece 1 should split into 2 extents, got %+v", s.Pieces[1])
	}
	if s.Pieces[1][0].Length != 1 || s.Pieces[1][1].Length != 3 {
		t.Errorf("piece 1 split should be 1+3 bytes, got %d+%d",
			s.Pieces[1][0].Length, s.Pieces[1][1].Length)
	}
	if len(s.Pieces[2]) != 1 || s.Pieces[2][0].Length != 2 {
		t.Errorf("piece 2 should be whole with length 2, got %+v", s.Pieces[2])
	}

	if len(s.Outputs) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(s.Outputs))
	}

	wantA := []string{s.Pieces[0][0].FragmentPath, s.Pieces[1][0].FragmentPath}
	if !reflect.DeepEqual(s.Outputs[0].Fragments, wantA) {
		t.Errorf("a.txt dependency list = %v, want %v", s.Outputs[0].Fragments, wantA)
	}

	wantB := []string{s.Pieces[1][1].FragmentPath, s.Pieces[2][0].FragmentPath}
	if !reflect.DeepEqual(s.Outputs[1].Fragments, wantB) {
		t.Errorf("b.txt dependency list = %v, want %v", s.Outputs[1].Fragments, wantB)
	}
}

// A file shorter than one piece makes a single piece span three files.
func TestPlan_PieceSpanningThreeFiles(t *testing.T) {
	m := manifest.Manifest{Files: []manifest.File{
		{Path: "a", Length: 3},
		{Path: "b", Length: 2},
		{Path: "c", Length: 5},
	}}

	l, err := layout.Plan(m, 6, "/dl")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	s := l.Structure.(layout.MultiFile)
	if len(s.Pieces) != 2 {
		t.Fatalf("expected 2 pieces, got %d", len(s.Pieces))
	}

	if len(s.Pieces[0]) != 3 {
		t.Fatalf("piece 0 should span 3 files, got %d extents", len(s.Pieces[0]))
	}

	wantLengths := []int64{3, 2, 1}
	for i, want := range wantLengths {
		if s.Pieces[0][i].Length != want {
			t.Errorf("piece 0 extent %d length = %d, want %d", i, s.Pieces[0][i].Length, want)
		}
	}

	if len(s.Pieces[1]) != 1 || s.Pieces[1][0].Length != 4 {
		t.Errorf("piece 1 should be 4 bytes of c, got %+v", s.Pieces[1])
	}

	wantC := []string{s.Pieces[0][2].FragmentPath, s.Pieces[1][0].FragmentPath}
	if !reflect.DeepEqual(s.Outputs[2].Fragments, wantC) {
		t.Errorf("c dependency list = %v, want %v", s.Outputs[2].Fragments, wantC)
	}
}

func TestPlan_ZeroLengthFile(t *testing.T) {
	m := manifest.Manifest{Files: []manifest.File{
		{Path: "a", Length: 4},
		{Path: "empty", Length: 0},
		{Path: "b", Length: 4},
	}}

	l, err := layout.Plan(m, 4, "/dl")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	s := l.Structure.(layout.MultiFile)
	if len(s.Pieces) != 2 {
		t.Fatalf("expected 2 pieces, got %d", len(s.Pieces))
	}
	if len(s.Pieces[0]) != 1 || len(s.Pieces[1]) != 1 {
		t.Errorf("zero-length file should contribute no extents: %+v", s.Pieces)
	}
	if len(s.Outputs[1].Fragments) != 0 {
		t.Errorf("empty file should have no fragment dependencies, got %v", s.Outputs[1].Fragments)
	}
}

// Every byte of the flat stream is carried by exactly one fragment, and
// the per-piece extents and per-output dependency lists agree on which.
func TestPlan_Consistency(t *testing.T) {
	manifests := []manifest.Manifest{
		{Files: []manifest.File{{Path: "a", Length: 5}, {Path: "b", Length: 5}}},
		{Files: []manifest.File{{Path: "a", Length: 3}, {Path: "b", Length: 2}, {Path: "c", Length: 5}}},
		{Files: []manifest.File{{Path: "a", Length: 1}, {Path: "b", Length: 1}, {Path: "c", Length: 1}}},
		{Files: []manifest.File{{Path: "a", Length: 100}, {Path: "b", Length: 1}, {Path: "c", Length: 27}}},
	}

	for _, m := range manifests {
		for _, pieceSize := range []int64{1, 3, 4, 7, 64} {
			l, err := layout.Plan(m, pieceSize, "/dl")
			if err != nil {
				t.Fatalf("Plan failed: %v", err)
			}

			s, ok := l.Structure.(layout.MultiFile)
			if !ok {
				t.Fatalf("expected MultiFile structure, got %T", l.Structure)
			}

			fragLengths := map[string]int64{}
			for i, extents := range s.Pieces {
				var sum int64
				for _, ext := range extents {
					if _, dup := fragLengths[ext.FragmentPath]; dup {
						t.Fatalf("fragment %s assigned twice", ext.FragmentPath)
					}
					fragLengths[ext.FragmentPath] = ext.Length
					sum += ext.Length
				}

				if sum != l.PieceLength(i) {
					t.Errorf("pieceSize=%d piece %d extents sum to %d, want %d",
						pieceSize, i, sum, l.PieceLength(i))
				}
			}

			for fi, out := range s.Outputs {
				var sum int64
				for _, frag := range out.Fragments {
					length, ok := fragLengths[frag]
					if !ok {
						t.Fatalf("dependency %s has no extent", frag)
					}
					sum += length
				}

				if sum != m.Files[fi].Length {
					t.Errorf("pieceSize=%d file %s dependencies sum to %d, want %d",
						pieceSize, m.Files[fi].Path, sum, m.Files[fi].Length)
				}
			}
		}
	}
}

func TestPlan_Deterministic(t *testing.T) {
	m := manifest.Manifest{Files: []manifest.File{
		{Path: "a", Length: 5},
		{Path: "b", Length: 5},
	}}

	l1, err := layout.Plan(m, 4, "/dl")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	l2, err := layout.Plan(m, 4, "/dl")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	if !reflect.DeepEqual(l1, l2) {
		t.Errorf("Plan is not deterministic")
	}
}

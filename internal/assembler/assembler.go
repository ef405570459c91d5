package assembler

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/NamanBalaji/piecestore/internal/filesystem"
	"github.com/NamanBalaji/piecestore/internal/logger"
	"github.com/NamanBalaji/piecestore/internal/repository"
	"github.com/NamanBalaji/piecestore/pkg/layout"
)

const assembleBufferSize = 4 * 1024 * 1024 // 4MB buffer

// Assembler promotes output files whose fragment sets are complete. The
// assembly state of every output is persisted, so an output is appended
// to exactly once even if promotion runs again later or the process
// restarts with all fragments still on disk.
type Assembler struct {
	mu         sync.Mutex
	layout     *layout.Layout
	fs         *filesystem.OSFileSystem
	repo       repository.Repository
	transferID uuid.UUID
}

// New creates an assembler for the given layout backed by a state
// repository.
func New(l *layout.Layout, fs *filesystem.OSFileSystem, repo repository.Repository, transferID uuid.UUID) *Assembler {
	return &Assembler{
		layout:     l,
		fs:         fs,
		repo:       repo,
		transferID: transferID,
	}
}

// PromoteCompleted assembles every output file whose full fragment list
// is on disk and that has not been assembled before. Outputs with
// missing fragments are skipped and picked up on a later call. Failures
// are reported per output; the rest are still attempted. Returns the
// paths of the outputs assembled by this call.
//
// The mutex covers the whole check-then-append sequence: two concurrent
// promotions could otherwise both observe a complete fragment set and
// both append.
func (a *Assembler) PromoteCompleted() ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var (
		promoted []string
		errs     []error
	)

	for _, out := range a.layout.Outputs() {
		state, err := a.repo.Find(out.Path)
		if err != nil && !errors.Is(err, repository.ErrStateNotFound) {
			errs = append(errs, fmt.Errorf("%s: %w", out.Path, err))
			continue
		}

		if state != nil {
			if state.Status == repository.StatusDone {
				continue
			}
			if state.Status == repository.StatusAssembling {
				// A previous append died after flushing bytes. Appending
				// again would duplicate data, so surface it instead.
				logger.Errorf("Output %s has an interrupted assembly", out.Path)
				errs = append(errs, fmt.Errorf("%w: %s", ErrAssemblyInterrupted, out.Path))
				continue
			}
		}

		ready, err := a.fragmentsReady(out)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", out.Path, err))
			continue
		}
		if !ready {
			logger.Debugf("Output %s is missing fragments, skipping this round", out.Path)
			continue
		}

		if err := a.assemble(out); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", out.Path, err))
			continue
		}

		promoted = append(promoted, out.Path)
	}

	return promoted, errors.Join(errs...)
}

// fragmentsReady reports whether every fragment in the output's
// dependency list exists on disk.
func (a *Assembler) fragmentsReady(out layout.Output) (bool, error) {
	for _, frag := range out.Fragments {
		exists, err := a.fs.FileExists(frag)
		if err != nil {
			return false, err
		}
		if !exists {
			return false, nil
		}
	}

	return true, nil
}

// assemble concatenates the output's fragments, in dependency-list
// order, into the final output file. The state row moves to Assembling
// before the first byte can reach disk and to Done after a successful
// flush. On failure the row is cleared again if nothing was flushed, so
// the output stays retryable; otherwise it stays Assembling.
func (a *Assembler) assemble(out layout.Output) error {
	logger.Infof("Assembling %s from %d fragments", out.Path, len(out.Fragments))

	err := a.repo.Save(&repository.AssemblyState{
		OutputPath: out.Path,
		TransferID: a.transferID,
		Status:     repository.StatusAssembling,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStateUpdate, err)
	}

	cw, err := a.openOutput(out.Path)
	if err != nil {
		a.clearIfClean(out.Path, cw)
		return err
	}

	bufWriter := bufio.NewWriterSize(cw, assembleBufferSize)

	if err := a.appendFragments(out, bufWriter); err != nil {
		cw.Close()
		a.clearIfClean(out.Path, cw)
		return err
	}

	if err := bufWriter.Flush(); err != nil {
		cw.Close()
		a.clearIfClean(out.Path, cw)
		return fmt.Errorf("%w: %v", ErrOutputFlush, err)
	}

	if err := cw.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrOutputFlush, err)
	}

	err = a.repo.Save(&repository.AssemblyState{
		OutputPath: out.Path,
		TransferID: a.transferID,
		Status:     repository.StatusDone,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStateUpdate, err)
	}

	logger.Infof("Assembled %s (%d bytes)", out.Path, cw.written)

	return nil
}

func (a *Assembler) openOutput(path string) (*countingWriteCloser, error) {
	f, err := a.fs.AppendFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutputOpen, err)
	}

	return &countingWriteCloser{wc: f}, nil
}

func (a *Assembler) appendFragments(out layout.Output, w io.Writer) error {
	for _, frag := range out.Fragments {
		fragFile, err := a.fs.OpenFile(frag)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrFragmentOpen, frag, err)
		}

		n, err := io.Copy(w, fragFile)
		fragFile.Close()

		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrFragmentCopy, frag, err)
		}

		logger.Debugf("Appended %d bytes from %s to %s", n, frag, out.Path)
	}

	return nil
}

// clearIfClean deletes the Assembling state row when no byte reached the
// output file, so a later promotion retries the output. If bytes were
// flushed the row is kept: the partial append cannot be rolled back.
func (a *Assembler) clearIfClean(outputPath string, cw *countingWriteCloser) {
	if cw != nil && cw.written > 0 {
		logger.Warnf("Leaving %s in assembling state: %d bytes already appended", outputPath, cw.written)
		return
	}

	if err := a.repo.Delete(outputPath); err != nil {
		logger.Warnf("Failed to clear assembly state for %s: %v", outputPath, err)
	}
}

// RemoveFragments deletes the fragment files of outputs already marked
// Done, then removes the fragment directory if it is empty. Missing
// fragments are ignored so cleanup can run repeatedly.
func (a *Assembler) RemoveFragments() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var lastErr error

	for _, out := range a.layout.Outputs() {
		state, err := a.repo.Find(out.Path)
		if err != nil {
			if !errors.Is(err, repository.ErrStateNotFound) {
				lastErr = err
			}
			continue
		}

		if state.Status != repository.StatusDone {
			continue
		}

		for _, frag := range out.Fragments {
			if err := a.fs.DeleteFile(frag); err != nil {
				exists, statErr := a.fs.FileExists(frag)
				if statErr == nil && !exists {
					continue
				}

				logger.Warnf("Failed to remove fragment %s: %v", frag, err)
				lastErr = ErrFragmentRemove
			}
		}
	}

	// Best effort: only succeeds once every fragment is gone.
	if err := a.fs.DeleteFile(a.layout.FragmentDir); err == nil {
		logger.Debugf("Removed fragment directory %s", a.layout.FragmentDir)
	}

	return lastErr
}

// countingWriteCloser tracks how many bytes reached the underlying file,
// which decides whether a failed assembly is retryable.
type countingWriteCloser struct {
	wc      io.WriteCloser
	written int64
}

func (c *countingWriteCloser) Write(p []byte) (int, error) {
	n, err := c.wc.Write(p)
	c.written += int64(n)

	return n, err
}

func (c *countingWriteCloser) Close() error {
	return c.wc.Close()
}

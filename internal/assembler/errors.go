package assembler

import "errors"

var (
	ErrOutputOpen          = errors.New("failed to open output file for assembly")
	ErrOutputFlush         = errors.New("failed to flush assembled data to output file")
	ErrFragmentOpen        = errors.New("failed to open fragment file")
	ErrFragmentCopy        = errors.New("failed to copy fragment data")
	ErrFragmentRemove      = errors.New("failed to remove fragment file during cleanup")
	ErrStateUpdate         = errors.New("failed to update assembly state")
	ErrAssemblyInterrupted = errors.New("assembly was interrupted mid-append; remove the partial output and its state row to retry")
)

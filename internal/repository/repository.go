package repository

// Repository persists per-output assembly state so each output file is
// assembled exactly once, even across process restarts.
type Repository interface {
	Save(state *AssemblyState) error
	Find(outputPath string) (*AssemblyState, error)
	FindAll() ([]*AssemblyState, error)
	Delete(outputPath string) error
	Close() error
}

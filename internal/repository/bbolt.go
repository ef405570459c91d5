package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"go.etcd.io/bbolt"
)

const (
	assembliesBucket = "assemblies"
	metadataBucket   = "metadata"
	schemaVersion    = 1
)

var (
	// ErrStateNotFound is returned when no assembly state exists for an output path
	ErrStateNotFound = errors.New("assembly state not found")
)

// Status is the durable assembly state of one output file. An output
// moves Pending -> Assembling -> Done exactly once; the Assembling state
// is only observable after a crash mid-append.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAssembling Status = "assembling"
	StatusDone       Status = "done"
)

// AssemblyState is one row of the assembly-state table, keyed by the
// output file path.
type AssemblyState struct {
	OutputPath string    `json:"outputPath"`
	TransferID uuid.UUID `json:"transferId"`
	Status     Status    `json:"status"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// BboltRepository implements the Repository interface on a bbolt database
type BboltRepository struct {
	db *bbolt.DB
}

// NewBboltRepository creates a new bbolt repository
func NewBboltRepository(dbPath string) (*BboltRepository, error) {
	options := &bbolt.Options{
		Timeout: 1 * time.Second,
	}

	db, err := bbolt.Open(dbPath, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &BboltRepository{
		db: db,
	}

	if err := repo.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return repo, nil
}

// initialize sets up buckets and schema
func (r *BboltRepository) initialize() error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(assembliesBucket))
		if err != nil {
			return fmt.Errorf("failed to create assemblies bucket: %w", err)
		}

		metadataBucket, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return fmt.Errorf("failed to create metadata bucket: %w", err)
		}

		versionBytes := []byte(fmt.Sprintf("%d", schemaVersion))
		err = metadataBucket.Put([]byte("schema_version"), versionBytes)
		if err != nil {
			return fmt.Errorf("failed to store schema version: %w", err)
		}

		return nil
	})
}

// Save persists an assembly state row, stamping its update time
func (r *BboltRepository) Save(state *AssemblyState) error {
	if state == nil {
		return errors.New("cannot save nil assembly state")
	}

	if state.OutputPath == "" {
		return errors.New("assembly state output path cannot be empty")
	}

	state.UpdatedAt = time.Now()

	return r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(assembliesBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", assembliesBucket)
		}

		data, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("failed to marshal assembly state: %w", err)
		}

		err = bucket.Put([]byte(state.OutputPath), data)
		if err != nil {
			return fmt.Errorf("failed to save assembly state: %w", err)
		}

		return nil
	})
}

// Find retrieves the assembly state for an output path
func (r *BboltRepository) Find(outputPath string) (*AssemblyState, error) {
	if outputPath == "" {
		return nil, errors.New("output path cannot be empty")
	}

	var data []byte
	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(assembliesBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", assembliesBucket)
		}

		data = bucket.Get([]byte(outputPath))
		if data == nil {
			return ErrStateNotFound
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	state := &AssemblyState{}

	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal assembly state: %w", err)
	}

	return state, nil
}

// FindAll retrieves all assembly state rows
func (r *BboltRepository) FindAll() ([]*AssemblyState, error) {
	var states []*AssemblyState

	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(assembliesBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", assembliesBucket)
		}

		return bucket.ForEach(func(k, v []byte) error {
			state := &AssemblyState{}

			if err := json.Unmarshal(v, state); err != nil {
				return fmt.Errorf("failed to unmarshal assembly state: %w", err)
			}

			states = append(states, state)
			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return states, nil
}

// Delete removes the assembly state for an output path
func (r *BboltRepository) Delete(outputPath string) error {
	if outputPath == "" {
		return errors.New("output path cannot be empty")
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(assembliesBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", assembliesBucket)
		}

		if bucket.Get([]byte(outputPath)) == nil {
			return ErrStateNotFound
		}

		return bucket.Delete([]byte(outputPath))
	})
}

// Close closes the database
func (r *BboltRepository) Close() error {
	return r.db.Close()
}

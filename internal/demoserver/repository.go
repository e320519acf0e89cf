package demoserver

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kingrea/opex/internal/domain"
)

// ErrStateNotFound is returned when no persisted demo state exists yet.
var ErrStateNotFound = errors.New("demoserver: state not found")

// State is the whole demo dataset.
type State struct {
	NextID       int64                        `json:"nextId"`
	Users        []domain.User                `json:"users"`
	Initiatives  []domain.Initiative          `json:"initiatives"`
	Transactions []domain.WorkflowTransaction `json:"transactions"`
	Timeline     []domain.TimelineEntry       `json:"timeline"`
	Monitoring   []domain.MonitoringEntry     `json:"monitoring"`
	Files        []StoredFile                 `json:"files"`
}

// StoredFile is an uploaded attachment with its content.
type StoredFile struct {
	domain.InitiativeFile
	Key     string `json:"key"`
	Content []byte `json:"content"`
}

// Repository persists demo state snapshots as JSON.
type Repository struct {
	path string
}

// NewRepository stores snapshots at path.
func NewRepository(path string) *Repository {
	return &Repository{path: path}
}

// Load reads the persisted state if present.
func (r *Repository) Load() (State, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return State{}, ErrStateNotFound
		}
		return State{}, err
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, err
	}
	return state, nil
}

// Save writes the snapshot through a temp file and rename.
func (r *Repository) Save(state State) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o700); err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, append(encoded, '\n'), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}

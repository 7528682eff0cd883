// Package registry keeps the history of training submissions as a JSON
// array file, newest first.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Record describes one training submission.
type Record struct {
	ID              string     `json:"id"`
	JobID           string     `json:"job_id"`
	Model           string     `json:"model"`
	FineTunedModel  string     `json:"fine_tuned_model,omitempty"`
	Corpus          string     `json:"corpus"`
	Epochs          int        `json:"epochs"`
	EstimatedTokens float64    `json:"estimated_tokens"`
	TrainedTokens   int        `json:"trained_tokens"`
	CostUSD         float64    `json:"cost_usd"`
	Simulated       bool       `json:"simulated"`
	Status          string     `json:"status"`
	Explanation     string     `json:"explanation,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// Registry is a JSON array file of records.
type Registry struct {
	path string
	now  func() time.Time
}

// New creates a Registry stored at path.
func New(path string) *Registry {
	return &Registry{path: path, now: time.Now}
}

// Path returns the registry file path.
func (r *Registry) Path() string { return r.path }

// Load returns all records, newest first. A missing file is an empty
// registry.
func (r *Registry) Load() ([]Record, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "registry: read %s", r.path)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []Record{}, nil
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, eris.Wrapf(err, "registry: parse %s", r.path)
	}
	return records, nil
}

// Add inserts rec at the front of the registry, assigning an ID and
// creation time when unset, and returns the stored record.
func (r *Registry) Add(rec Record) (Record, error) {
	records, err := r.Load()
	if err != nil {
		return Record{}, err
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now().UTC()
	}

	records = append([]Record{rec}, records...)
	if err := r.save(records); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Update replaces the record with rec.ID.
func (r *Registry) Update(rec Record) error {
	records, err := r.Load()
	if err != nil {
		return err
	}
	for i := range records {
		if records[i].ID == rec.ID {
			records[i] = rec
			return r.save(records)
		}
	}
	return eris.Errorf("registry: record %s not found", rec.ID)
}

// Find returns the record whose ID or job ID matches id.
func (r *Registry) Find(id string) (Record, bool, error) {
	records, err := r.Load()
	if err != nil {
		return Record{}, false, err
	}
	for _, rec := range records {
		if rec.ID == id || rec.JobID == id {
			return rec, true, nil
		}
	}
	return Record{}, false, nil
}

func (r *Registry) save(records []Record) error {
	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return eris.Wrap(err, "registry: encode")
	}
	data = append(data, '\n')

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, ".registry-*.json")
	if err != nil {
		return eris.Wrapf(err, "registry: create temp in %s", dir)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "registry: write temp")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "registry: close temp")
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return eris.Wrapf(err, "registry: replace %s", r.path)
	}
	return nil
}

package finetune

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// SimulatedTrainedTokens is the token usage every simulated job reports.
const SimulatedTrainedTokens = 10000

// Simulator is an in-memory Client that completes every job immediately
// without contacting the service.
type Simulator struct {
	mu    sync.Mutex
	files map[string]File
	jobs  map[string]Job
	now   func() time.Time
}

// NewSimulator creates an empty simulator.
func NewSimulator() *Simulator {
	return &Simulator{
		files: make(map[string]File),
		jobs:  make(map[string]Job),
		now:   time.Now,
	}
}

func (s *Simulator) UploadFile(_ context.Context, path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, eris.Wrapf(err, "finetune: read %s", path)
	}
	f := File{
		ID:       "file-sim-" + uuid.NewString(),
		Bytes:    info.Size(),
		Filename: filepath.Base(path),
		Purpose:  PurposeFineTune,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[f.ID] = f
	return &f, nil
}

func (s *Simulator) CreateJob(_ context.Context, req CreateJobRequest) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[req.TrainingFile]; !ok {
		return nil, eris.Errorf("finetune: create job: unknown training file %q", req.TrainingFile)
	}
	if req.Model == "" {
		return nil, eris.New("finetune: create job: model is required")
	}

	id := uuid.NewString()
	ts := s.now().Unix()
	job := Job{
		ID:             "ftjob-sim-" + id,
		Model:          req.Model,
		Status:         StatusSucceeded,
		TrainingFile:   req.TrainingFile,
		FineTunedModel: "ft:" + req.Model + ":simulated:" + id[:8],
		TrainedTokens:  SimulatedTrainedTokens,
		CreatedAt:      ts,
		FinishedAt:     ts,
	}
	s.jobs[job.ID] = job
	return &job, nil
}

func (s *Simulator) GetJob(_ context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, eris.Errorf("finetune: get job: unknown job %q", id)
	}
	return &job, nil
}

// ListModels returns the base models of every job created so far followed
// by their fine-tuned models.
func (s *Simulator) ListModels(context.Context) ([]Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	var models []Model
	for _, j := range s.jobs {
		for _, id := range []string{j.Model, j.FineTunedModel} {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			models = append(models, Model{ID: id, OwnedBy: "simulator", Created: j.CreatedAt})
		}
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// Package finetune talks to an OpenAI-compatible fine-tuning service: corpus
// upload, job creation, job status and model listing.
package finetune

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/finetune-cli/internal/resilience"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"

	// PurposeFineTune is the upload purpose required for training files.
	PurposeFineTune = "fine-tune"
)

// Job statuses reported by the service.
const (
	StatusValidatingFiles = "validating_files"
	StatusQueued          = "queued"
	StatusRunning         = "running"
	StatusSucceeded       = "succeeded"
	StatusFailed          = "failed"
	StatusCancelled       = "cancelled"
)

// Client defines the fine-tuning operations used by this application.
type Client interface {
	UploadFile(ctx context.Context, path string) (*File, error)
	CreateJob(ctx context.Context, req CreateJobRequest) (*Job, error)
	GetJob(ctx context.Context, id string) (*Job, error)
	ListModels(ctx context.Context) ([]Model, error)
}

// File is an uploaded training file.
type File struct {
	ID       string `json:"id"`
	Bytes    int64  `json:"bytes"`
	Filename string `json:"filename"`
	Purpose  string `json:"purpose"`
}

// Hyperparameters are the tunable settings of a job.
type Hyperparameters struct {
	NEpochs int `json:"n_epochs,omitempty"`
}

// CreateJobRequest is the request body for POST /fine_tuning/jobs.
type CreateJobRequest struct {
	TrainingFile    string          `json:"training_file"`
	Model           string          `json:"model"`
	Hyperparameters Hyperparameters `json:"hyperparameters,omitzero"`
	Suffix          string          `json:"suffix,omitempty"`
}

// JobError describes why a job failed.
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Job is a fine-tuning job.
type Job struct {
	ID             string    `json:"id"`
	Model          string    `json:"model"`
	Status         string    `json:"status"`
	TrainingFile   string    `json:"training_file"`
	FineTunedModel string    `json:"fine_tuned_model"`
	TrainedTokens  int       `json:"trained_tokens"`
	CreatedAt      int64     `json:"created_at"`
	FinishedAt     int64     `json:"finished_at"`
	Error          *JobError `json:"error,omitempty"`
}

// Terminal reports whether the job will not change status again.
func (j *Job) Terminal() bool {
	switch j.Status {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Model is one entry of GET /models.
type Model struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by"`
	Created int64  `json:"created"`
}

type modelList struct {
	Data []Model `json:"data"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit throttles requests to rps per second. Zero disables it.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

// WithRetry overrides the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(log *zap.Logger) Option {
	return func(c *httpClient) {
		c.log = log
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	log     *zap.Logger
}

// NewClient creates a fine-tuning API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.DefaultRetryConfig(),
		log:   zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) UploadFile(ctx context.Context, path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "finetune: read %s", path)
	}
	name := filepath.Base(path)

	var out File
	err = c.do(ctx, "upload", func() (*http.Request, error) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		if err := mw.WriteField("purpose", PurposeFineTune); err != nil {
			return nil, err
		}
		fw, err := mw.CreateFormFile("file", name)
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(data); err != nil {
			return nil, err
		}
		if err := mw.Close(); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files", &body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return req, nil
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) CreateJob(ctx context.Context, jr CreateJobRequest) (*Job, error) {
	payload, err := json.Marshal(jr)
	if err != nil {
		return nil, eris.Wrap(err, "finetune: marshal request")
	}

	var out Job
	err = c.do(ctx, "create job", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/fine_tuning/jobs", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) GetJob(ctx context.Context, id string) (*Job, error) {
	var out Job
	err := c.do(ctx, "get job", func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/fine_tuning/jobs/"+id, nil)
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) ListModels(ctx context.Context) ([]Model, error) {
	var out modelList
	err := c.do(ctx, "list models", func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}

// do sends the request built by newReq, retrying transient failures, and
// decodes a 2xx JSON body into out. newReq runs once per attempt.
func (c *httpClient) do(ctx context.Context, op string, newReq func() (*http.Request, error), out any) error {
	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger(c.log, "finetune", op)

	body, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "finetune: rate limit")
			}
		}

		req, err := newReq()
		if err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("finetune: %s: create request", op))
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("finetune: %s: send request", op))
		}
		defer resp.Body.Close() //nolint:errcheck

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("finetune: %s: read response", op))
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, resilience.ForStatus(
				eris.Errorf("finetune: %s: unexpected status %d: %s", op, resp.StatusCode, string(respBody)),
				resp.StatusCode,
			)
		}
		return respBody, nil
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, fmt.Sprintf("finetune: %s: unmarshal response", op))
	}
	return nil
}

package finetune

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/finetune-cli/internal/resilience"
)

const (
	defaultPollInitial = 5 * time.Second
	defaultPollCap     = time.Minute
	defaultPollTimeout = 2 * time.Hour
)

// PollOption configures polling behavior.
type PollOption func(*pollConfig)

type pollConfig struct {
	initial  time.Duration
	cap      time.Duration
	timeout  time.Duration
	onStatus func(*Job)
}

func defaultPollConfig() pollConfig {
	return pollConfig{
		initial: defaultPollInitial,
		cap:     defaultPollCap,
		timeout: defaultPollTimeout,
	}
}

// WithPollInterval overrides the initial poll interval.
func WithPollInterval(d time.Duration) PollOption {
	return func(c *pollConfig) {
		c.initial = d
	}
}

// WithPollCap overrides the maximum poll interval.
func WithPollCap(d time.Duration) PollOption {
	return func(c *pollConfig) {
		c.cap = d
	}
}

// WithPollTimeout overrides the default timeout (applied only if the parent
// context has no deadline).
func WithPollTimeout(d time.Duration) PollOption {
	return func(c *pollConfig) {
		c.timeout = d
	}
}

// WithStatusCallback is called with every non-terminal status observed.
func WithStatusCallback(fn func(*Job)) PollOption {
	return func(c *pollConfig) {
		c.onStatus = fn
	}
}

// PollJob polls GetJob until the job succeeds, fails, is cancelled, or the
// context expires. The interval doubles up to the cap. A failed or cancelled
// job is returned together with an error.
func PollJob(ctx context.Context, client Client, id string, opts ...PollOption) (*Job, error) {
	cfg := defaultPollConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	backoff := resilience.RetryConfig{
		InitialBackoff: cfg.initial,
		MaxBackoff:     cfg.cap,
		Multiplier:     2,
	}

	for attempt := 0; ; attempt++ {
		job, err := client.GetJob(ctx, id)
		if err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("finetune: poll job %s", id))
		}

		switch job.Status {
		case StatusSucceeded:
			return job, nil
		case StatusFailed:
			msg := "no reason given"
			if job.Error != nil && job.Error.Message != "" {
				msg = job.Error.Message
			}
			return job, eris.Errorf("finetune: job %s failed: %s", id, msg)
		case StatusCancelled:
			return job, eris.Errorf("finetune: job %s cancelled", id)
		}

		if cfg.onStatus != nil {
			cfg.onStatus(job)
		}

		if err := resilience.Sleep(ctx, resilience.Backoff(attempt, backoff)); err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("finetune: poll job %s timed out", id))
		}
	}
}

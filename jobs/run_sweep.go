package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/saftbridge/saftbridge/internal/jobs"
)

const (
	// TaskRunSweep closes export runs abandoned by crashed workers.
	TaskRunSweep = "saft:run_sweep"
	// DefaultSweepAge is how long a RUNNING row may sit before the
	// sweep declares its worker gone.
	DefaultSweepAge = time.Hour
)

// SweepRegistry provides the stale-run cleanup hook.
type SweepRegistry interface {
	FailStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// RunSweepJob periodically fails runs stuck in RUNNING so their
// windows free up again.
type RunSweepJob struct {
	Registry SweepRegistry
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	MaxAge   time.Duration
	clock    func() time.Time
}

// NewRunSweepJob constructs the sweep handler.
func NewRunSweepJob(registry SweepRegistry, logger *slog.Logger, metrics *jobmetrics.Metrics) *RunSweepJob {
	return &RunSweepJob{
		Registry: registry,
		Logger:   logger,
		Metrics:  metrics,
		MaxAge:   DefaultSweepAge,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// NewRunSweepTask creates the periodic sweep task.
func NewRunSweepTask() *asynq.Task {
	return asynq.NewTask(TaskRunSweep, nil, asynq.Queue(QueueDefault))
}

// Handle executes one sweep pass.
func (j *RunSweepJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Registry == nil {
		return errors.New("run sweep: dependencies not configured")
	}

	tracker := j.metrics().Track(TaskRunSweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	cutoff := j.now().Add(-j.maxAge())
	swept, err := j.Registry.FailStale(ctx, cutoff)
	if err != nil {
		resultErr = err
		j.log().Error("fail stale runs", slog.Any("error", err))
		return resultErr
	}
	if swept > 0 {
		j.log().Warn("closed abandoned runs", slog.Int64("count", swept), slog.Time("cutoff", cutoff))
	}
	return resultErr
}

func (j *RunSweepJob) maxAge() time.Duration {
	if j != nil && j.MaxAge > 0 {
		return j.MaxAge
	}
	return DefaultSweepAge
}

func (j *RunSweepJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *RunSweepJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRunSweep))
	}
	return slog.Default().With(slog.String("job", TaskRunSweep))
}

func (j *RunSweepJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *RunSweepJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}

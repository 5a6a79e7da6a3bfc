package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/saftbridge/saftbridge/internal/export"
	jobmetrics "github.com/saftbridge/saftbridge/internal/jobs"
	"github.com/saftbridge/saftbridge/internal/run"
)

const (
	// TaskExportRun executes one registered export run.
	TaskExportRun = "saft:export_run"
)

// ExportRunPayload identifies the registered run to execute.
type ExportRunPayload struct {
	RunID string `json:"run_id"`
}

// ExportRegistry provides run lookups for the job runtime.
type ExportRegistry interface {
	Get(ctx context.Context, id uuid.UUID) (run.Run, error)
}

// Exporter executes one export run end to end.
type Exporter interface {
	Run(ctx context.Context, req export.RunRequest) (*export.Result, error)
}

// ExportRunJob drives a registered run through extraction,
// consolidation and rendering.
type ExportRunJob struct {
	Registry ExportRegistry
	Exporter Exporter
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewExportRunJob constructs the job handler.
func NewExportRunJob(registry ExportRegistry, exporter Exporter, logger *slog.Logger, metrics *jobmetrics.Metrics) *ExportRunJob {
	return &ExportRunJob{
		Registry: registry,
		Exporter: exporter,
		Logger:   logger,
		Metrics:  metrics,
	}
}

// NewExportRunTask creates an Asynq task for one registered run. One
// attempt per run; registering a fresh run is the retry path.
func NewExportRunTask(runID uuid.UUID) (*asynq.Task, error) {
	body, err := json.Marshal(ExportRunPayload{RunID: runID.String()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskExportRun, body, asynq.Queue(QueueDefault), asynq.MaxRetry(0)), nil
}

// Handle executes the export run job.
func (j *ExportRunJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Registry == nil || j.Exporter == nil {
		return errors.New("export run: dependencies not configured")
	}
	var payload ExportRunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	runID, err := uuid.Parse(payload.RunID)
	if err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskExportRun)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	rec, err := j.Registry.Get(ctx, runID)
	if err != nil {
		if errors.Is(err, run.ErrNotFound) {
			j.log().Error("registered run missing", slog.String("run_id", payload.RunID))
			resultErr = fmt.Errorf("run %s: %w", payload.RunID, asynq.SkipRetry)
			return resultErr
		}
		resultErr = err
		return resultErr
	}
	if rec.Status != run.StatusPending {
		// Redelivery of an already handled run is a no-op.
		j.log().Info("run already handled",
			slog.String("run_id", payload.RunID),
			slog.String("status", string(rec.Status)))
		return resultErr
	}

	window, err := rec.Window()
	if err != nil {
		j.log().Error("run window", slog.String("run_id", payload.RunID), slog.Any("error", err))
		resultErr = fmt.Errorf("run window: %w", asynq.SkipRetry)
		return resultErr
	}

	res, err := j.Exporter.Run(ctx, export.RunRequest{RunID: rec.ID, Window: window, Policy: rec.Policy})
	if err != nil {
		resultErr = err
		j.log().Error("export run", slog.String("run_id", payload.RunID), slog.Any("error", err))
		return resultErr
	}

	j.metrics().AddLines(TaskExportRun, res.Stats.Processed, res.Stats.TotalSkipped())
	j.log().Info("export run finished",
		slog.String("run_id", payload.RunID),
		slog.String("artifact", res.ArtifactPath),
		slog.Int("lines", res.Stats.Processed),
		slog.Int("skipped", res.Stats.TotalSkipped()),
		slog.Duration("duration", res.Duration))
	return resultErr
}

func (j *ExportRunJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ExportRunJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskExportRun))
	}
	return slog.Default().With(slog.String("job", TaskExportRun))
}

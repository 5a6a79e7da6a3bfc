package jobs

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"golang.org/x/crypto/blake2b"

	jobmetrics "github.com/saftbridge/saftbridge/internal/jobs"
	"github.com/saftbridge/saftbridge/internal/run"
)

const (
	// TaskArtifactAudit re-fingerprints recorded artifacts. Audit files
	// are compliance evidence; a file that no longer matches its
	// recorded digest has been tampered with or corrupted.
	TaskArtifactAudit = "saft:artifact_audit"

	auditScanLimit = 200
)

// AuditRegistry lists the runs whose artifacts get verified.
type AuditRegistry interface {
	ListRecent(ctx context.Context, limit int) ([]run.Run, error)
}

// ArtifactAuditJob verifies that finished runs still have their
// artifacts on disk, byte for byte.
type ArtifactAuditJob struct {
	Registry AuditRegistry
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewArtifactAuditJob constructs the audit handler.
func NewArtifactAuditJob(registry AuditRegistry, logger *slog.Logger, metrics *jobmetrics.Metrics) *ArtifactAuditJob {
	return &ArtifactAuditJob{Registry: registry, Logger: logger, Metrics: metrics}
}

// NewArtifactAuditTask creates the periodic audit task.
func NewArtifactAuditTask() *asynq.Task {
	return asynq.NewTask(TaskArtifactAudit, nil, asynq.Queue(QueueDefault))
}

// Handle executes one audit pass over the most recent runs.
func (j *ArtifactAuditJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Registry == nil {
		return errors.New("artifact audit: dependencies not configured")
	}

	tracker := j.metrics().Track(TaskArtifactAudit)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	runs, err := j.Registry.ListRecent(ctx, auditScanLimit)
	if err != nil {
		resultErr = err
		return resultErr
	}

	var checked, missing, mismatched int
	for _, rec := range runs {
		if rec.Status != run.StatusSucceeded || rec.ArtifactPath == "" || rec.ArtifactDigest == "" {
			continue
		}
		digest, err := fileDigest(rec.ArtifactPath)
		if err != nil {
			if os.IsNotExist(err) {
				missing++
				j.log().Warn("artifact gone",
					slog.String("run_id", rec.ID.String()),
					slog.String("artifact", rec.ArtifactPath))
				continue
			}
			resultErr = fmt.Errorf("artifact audit: read %s: %w", rec.ArtifactPath, err)
			return resultErr
		}
		checked++
		if digest != rec.ArtifactDigest {
			mismatched++
			j.log().Error("artifact digest mismatch",
				slog.String("run_id", rec.ID.String()),
				slog.String("artifact", rec.ArtifactPath),
				slog.String("recorded", rec.ArtifactDigest),
				slog.String("actual", digest))
		}
	}

	if mismatched > 0 {
		resultErr = fmt.Errorf("artifact audit: %d artifact(s) diverge from their recorded digest", mismatched)
		return resultErr
	}
	j.log().Info("artifact audit pass",
		slog.Int("checked", checked),
		slog.Int("missing", missing))
	return resultErr
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	hasher, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func (j *ArtifactAuditJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ArtifactAuditJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskArtifactAudit))
	}
	return slog.Default().With(slog.String("job", TaskArtifactAudit))
}

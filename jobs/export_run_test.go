package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/saftbridge/saftbridge/internal/export"
	"github.com/saftbridge/saftbridge/internal/ledger"
	"github.com/saftbridge/saftbridge/internal/run"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubExportRegistry struct {
	rec run.Run
	err error
}

func (s *stubExportRegistry) Get(ctx context.Context, id uuid.UUID) (run.Run, error) {
	if s.err != nil {
		return run.Run{}, s.err
	}
	return s.rec, nil
}

type stubExporter struct {
	req    export.RunRequest
	called bool
	res    *export.Result
	err    error
}

func (s *stubExporter) Run(ctx context.Context, req export.RunRequest) (*export.Result, error) {
	s.called = true
	s.req = req
	if s.err != nil {
		return nil, s.err
	}
	if s.res == nil {
		return &export.Result{}, nil
	}
	return s.res, s.err
}

func TestExportRunHandleExecutesPendingRun(t *testing.T) {
	id := uuid.New()
	registry := &stubExportRegistry{rec: run.Run{
		ID:          id,
		Status:      run.StatusPending,
		WindowStart: "2025005",
		WindowEnd:   "2025005",
		Policy:      ledger.PolicyClosingAuthoritative,
	}}
	exporter := &stubExporter{res: &export.Result{ArtifactPath: "out/SAFT_204789123_2025_05.xml"}}
	job := NewExportRunJob(registry, exporter, discardLogger(), nil)

	task, err := NewExportRunTask(id)
	if err != nil {
		t.Fatalf("NewExportRunTask: %v", err)
	}
	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !exporter.called {
		t.Fatal("exporter never invoked")
	}
	if exporter.req.RunID != id {
		t.Fatalf("run id = %s", exporter.req.RunID)
	}
	if exporter.req.Window.Start != "2025005" || exporter.req.Window.End != "2025005" {
		t.Fatalf("window = %+v", exporter.req.Window)
	}
	if exporter.req.Policy != ledger.PolicyClosingAuthoritative {
		t.Fatalf("policy = %q", exporter.req.Policy)
	}
}

func TestExportRunHandleSkipsHandledRun(t *testing.T) {
	id := uuid.New()
	registry := &stubExportRegistry{rec: run.Run{ID: id, Status: run.StatusSucceeded, WindowStart: "2025005", WindowEnd: "2025005"}}
	exporter := &stubExporter{}
	job := NewExportRunJob(registry, exporter, discardLogger(), nil)

	task, err := NewExportRunTask(id)
	if err != nil {
		t.Fatalf("NewExportRunTask: %v", err)
	}
	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if exporter.called {
		t.Fatal("terminal run must not re-run")
	}
}

func TestExportRunHandleMissingRunSkipsRetry(t *testing.T) {
	registry := &stubExportRegistry{err: run.ErrNotFound}
	exporter := &stubExporter{}
	job := NewExportRunJob(registry, exporter, discardLogger(), nil)

	task, err := NewExportRunTask(uuid.New())
	if err != nil {
		t.Fatalf("NewExportRunTask: %v", err)
	}
	err = job.Handle(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("error = %v, want SkipRetry", err)
	}
	if exporter.called {
		t.Fatal("exporter invoked for missing run")
	}
}

func TestExportRunHandleMalformedPayload(t *testing.T) {
	job := NewExportRunJob(&stubExportRegistry{}, &stubExporter{}, discardLogger(), nil)
	task := asynq.NewTask(TaskExportRun, []byte("not json"))
	if err := job.Handle(context.Background(), task); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("error = %v, want SkipRetry", err)
	}
}

func TestExportRunHandlePropagatesFailure(t *testing.T) {
	id := uuid.New()
	registry := &stubExportRegistry{rec: run.Run{ID: id, Status: run.StatusPending, WindowStart: "2025005", WindowEnd: "2025005"}}
	cause := errors.New("source unavailable")
	exporter := &stubExporter{err: cause}
	job := NewExportRunJob(registry, exporter, discardLogger(), nil)

	task, err := NewExportRunTask(id)
	if err != nil {
		t.Fatalf("NewExportRunTask: %v", err)
	}
	err = job.Handle(context.Background(), task)
	if !errors.Is(err, cause) {
		t.Fatalf("error = %v, want exporter failure", err)
	}
	if errors.Is(err, asynq.SkipRetry) {
		t.Fatal("exporter failure must not map to SkipRetry")
	}
}

package jobs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/saftbridge/saftbridge/internal/run"
)

type stubAuditRegistry struct {
	runs []run.Run
	err  error
}

func (s *stubAuditRegistry) ListRecent(ctx context.Context, limit int) ([]run.Run, error) {
	return s.runs, s.err
}

func auditArtifact(t *testing.T, dir, name, body string) (string, string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	digest, err := fileDigest(path)
	if err != nil {
		t.Fatalf("digest artifact: %v", err)
	}
	return path, digest
}

func TestArtifactAuditPassesIntactArtifacts(t *testing.T) {
	dir := t.TempDir()
	path, digest := auditArtifact(t, dir, "SAFT_204789123_2025_05.xml", "<AuditFile/>")
	registry := &stubAuditRegistry{runs: []run.Run{
		{ID: uuid.New(), Status: run.StatusSucceeded, ArtifactPath: path, ArtifactDigest: digest},
		{ID: uuid.New(), Status: run.StatusFailed},
		{ID: uuid.New(), Status: run.StatusSucceeded, ArtifactPath: filepath.Join(dir, "rotated.xml"), ArtifactDigest: digest},
	}}

	job := NewArtifactAuditJob(registry, discardLogger(), nil)
	if err := job.Handle(context.Background(), NewArtifactAuditTask()); err != nil {
		t.Fatalf("Handle: %v", err)
	}
}

func TestArtifactAuditFlagsTampering(t *testing.T) {
	dir := t.TempDir()
	path, digest := auditArtifact(t, dir, "SAFT_204789123_2025_05.xml", "<AuditFile/>")
	if err := os.WriteFile(path, []byte("<AuditFile><Edited/></AuditFile>"), 0o644); err != nil {
		t.Fatalf("tamper artifact: %v", err)
	}

	registry := &stubAuditRegistry{runs: []run.Run{
		{ID: uuid.New(), Status: run.StatusSucceeded, ArtifactPath: path, ArtifactDigest: digest},
	}}
	job := NewArtifactAuditJob(registry, discardLogger(), nil)

	err := job.Handle(context.Background(), NewArtifactAuditTask())
	if err == nil {
		t.Fatal("expected divergence error")
	}
	if !strings.Contains(err.Error(), "1 artifact(s) diverge") {
		t.Fatalf("error = %v, want divergence count", err)
	}
}

func TestArtifactAuditWithoutDeps(t *testing.T) {
	var job *ArtifactAuditJob
	if err := job.Handle(context.Background(), NewArtifactAuditTask()); err == nil {
		t.Fatal("expected configuration error")
	}
}

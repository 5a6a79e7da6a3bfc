package export

import (
	"context"
	"encoding/xml"
	"errors"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/saftbridge/saftbridge/internal/erp"
	"github.com/saftbridge/saftbridge/internal/ledger"
	"github.com/saftbridge/saftbridge/internal/masterdata"
	"github.com/saftbridge/saftbridge/internal/run"
	"github.com/saftbridge/saftbridge/internal/saft"
)

type fakeExtractor struct {
	params  erp.ExtractParams
	called  bool
	dataset *erp.Dataset
	err     error
}

func (f *fakeExtractor) Extract(ctx context.Context, params erp.ExtractParams) (*erp.Dataset, error) {
	f.called = true
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return f.dataset, nil
}

type fakeLocks struct {
	key      string
	held     bool
	released bool
}

func (f *fakeLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	f.key = key
	if f.held {
		return nil, errors.New("another run holds the lock")
	}
	return func(context.Context) error {
		f.released = true
		return nil
	}, nil
}

type fakeRecorder struct {
	running   []uuid.UUID
	succeeded map[uuid.UUID]run.Outcome
	failed    map[uuid.UUID]string
	diags     map[uuid.UUID][]run.Diagnostic
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		succeeded: make(map[uuid.UUID]run.Outcome),
		failed:    make(map[uuid.UUID]string),
		diags:     make(map[uuid.UUID][]run.Diagnostic),
	}
}

func (f *fakeRecorder) MarkRunning(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	f.running = append(f.running, id)
	return nil
}

func (f *fakeRecorder) MarkSucceeded(ctx context.Context, id uuid.UUID, outcome run.Outcome) error {
	f.succeeded[id] = outcome
	return nil
}

func (f *fakeRecorder) MarkFailed(ctx context.Context, id uuid.UUID, cause string, finishedAt time.Time) error {
	f.failed[id] = cause
	return nil
}

func (f *fakeRecorder) ReplaceDiagnostics(ctx context.Context, runID uuid.UUID, diags []run.Diagnostic) error {
	f.diags[runID] = diags
	return nil
}

func testProfile(t *testing.T, dir string) *Profile {
	t.Helper()
	p := &Profile{
		Company: CompanyProfile{Name: "Balkan Metals AD", RegistrationNumber: "204789123"},
		Consolidation: ConsolidationProfile{
			SupplierTypes:  []string{"Subco"},
			PayablesPrefix: "401",
		},
		Output: OutputProfile{Directory: dir},
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return p
}

func fixtureDataset() *erp.Dataset {
	return &erp.Dataset{
		Company: erp.Company{ID: "comp-1", Name: "Balkan Metals AD"},
		Accounts: []masterdata.GLAccount{
			{ID: "gla-401", ReportingCode: "401100", Name: "Trade payables"},
			{ID: "gla-703", ReportingCode: "703000", Name: "Service revenue"},
		},
		Partners: []masterdata.BusinessPartner{
			{ID: "bp-c", Number: "C-1001", Name: "Клиент ЕООД", Type: "Customer"},
			{ID: "bp-s", Number: "S-2001", Name: "Steel Supply", Type: "Subco"},
		},
		Lines: []ledger.LedgerLine{
			{GLAccountID: "gla-401", PartnerID: "bp-s", SignedAmount: "-100", Period: "2025/004"},
			{GLAccountID: "gla-401", PartnerID: "bp-s", SignedAmount: "-400", Period: "2025/005"},
			{GLAccountID: "gla-703", PartnerID: "bp-s", SignedAmount: "-250", Period: "2025/005"},
			{GLAccountID: "gla-703", PartnerID: "bp-c", SignedAmount: "300", Period: "2025/005"},
			{GLAccountID: "gla-703", SignedAmount: "abc", Period: "2025/005"},
			{GLAccountID: "gla-703", SignedAmount: "50", Period: ""},
		},
		Journals: []erp.Journal{{
			ID:     "jrn-1",
			Name:   "JNL-0001",
			Date:   time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC),
			Period: "2025/005",
			Lines: []erp.JournalLine{
				{ID: "jl-1", GLAccountCode: "703000", LineType: "Credit", Value: "250"},
			},
		}},
	}
}

func mayWindow(t *testing.T) ledger.PeriodWindow {
	t.Helper()
	w, err := ledger.NewPeriodWindow(2025, 5, 2025, 5)
	if err != nil {
		t.Fatalf("NewPeriodWindow: %v", err)
	}
	return w
}

func TestRunProducesArtifactAndRecordsOutcome(t *testing.T) {
	dir := t.TempDir()
	extractor := &fakeExtractor{dataset: fixtureDataset()}
	locks := &fakeLocks{}
	recorder := newFakeRecorder()

	svc := NewService(testProfile(t, dir), extractor, locks, recorder)
	svc.WithClock(func() time.Time { return time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC) })

	runID := uuid.New()
	res, err := svc.Run(context.Background(), RunRequest{RunID: runID, Window: mayWindow(t)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantPath := dir + "/SAFT_204789123_2025_05.xml"
	if res.ArtifactPath != wantPath {
		t.Fatalf("artifact path = %q, want %q", res.ArtifactPath, wantPath)
	}
	if !regexp.MustCompile(`^[0-9a-f]{64}$`).MatchString(res.ArtifactDigest) {
		t.Fatalf("digest = %q, want 64 hex chars", res.ArtifactDigest)
	}
	if res.ExcelPath != "" {
		t.Fatalf("excel path = %q, want empty without the flag", res.ExcelPath)
	}

	raw, err := os.ReadFile(res.ArtifactPath)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	var doc saft.AuditFile
	if err := xml.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("artifact is not well formed: %v", err)
	}
	if doc.Header.Company.RegistrationNumber != "204789123" {
		t.Fatalf("merged registration = %q", doc.Header.Company.RegistrationNumber)
	}

	// Supplier balances come from the payables dimension: only the
	// 401-family postings count, the revenue posting does not.
	suppliers := doc.MasterFilesMonthly.Suppliers.Suppliers
	if len(suppliers) != 1 {
		t.Fatalf("got %d suppliers, want 1", len(suppliers))
	}
	if suppliers[0].ClosingCreditBalance == nil || *suppliers[0].ClosingCreditBalance != "500.00" {
		t.Fatalf("supplier closing credit = %v, want 500.00", suppliers[0].ClosingCreditBalance)
	}
	if suppliers[0].OpeningCreditBalance == nil || *suppliers[0].OpeningCreditBalance != "100.00" {
		t.Fatalf("supplier opening credit = %v, want 100.00", suppliers[0].OpeningCreditBalance)
	}
	customers := doc.MasterFilesMonthly.Customers.Customers
	if len(customers) != 1 {
		t.Fatalf("got %d customers, want 1", len(customers))
	}
	if customers[0].ClosingDebitBalance == nil || *customers[0].ClosingDebitBalance != "300.00" {
		t.Fatalf("customer closing debit = %v, want 300.00", customers[0].ClosingDebitBalance)
	}

	if len(recorder.running) != 1 || recorder.running[0] != runID {
		t.Fatalf("running calls = %v", recorder.running)
	}
	outcome, ok := recorder.succeeded[runID]
	if !ok {
		t.Fatal("run not marked succeeded")
	}
	if outcome.LinesProcessed != 5 || outcome.LinesSkipped != 1 {
		t.Fatalf("outcome = %+v", outcome)
	}
	if outcome.ArtifactDigest != res.ArtifactDigest {
		t.Fatal("recorded digest differs from result")
	}

	diags := recorder.diags[runID]
	if len(diags) != 2 {
		t.Fatalf("diagnostics = %+v", diags)
	}
	if diags[0].Reason != "malformed_amount" || diags[0].Count != 1 {
		t.Fatalf("first diagnostic = %+v", diags[0])
	}
	if diags[1].Reason != "missing_period" || diags[1].Count != 1 {
		t.Fatalf("second diagnostic = %+v", diags[1])
	}

	wantKey := "saft:export:balkan-metals-ad:2025005-2025005:lock"
	if locks.key != wantKey {
		t.Fatalf("lock key = %q, want %q", locks.key, wantKey)
	}
	if !locks.released {
		t.Fatal("lock never released")
	}

	if extractor.params.Company != "Balkan Metals AD" {
		t.Fatalf("extract company = %q", extractor.params.Company)
	}
	if !extractor.params.EndDate.Equal(time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("extract end date = %v", extractor.params.EndDate)
	}
}

func TestRunLockContentionFailsTheRun(t *testing.T) {
	extractor := &fakeExtractor{dataset: fixtureDataset()}
	locks := &fakeLocks{held: true}
	recorder := newFakeRecorder()

	svc := NewService(testProfile(t, t.TempDir()), extractor, locks, recorder)
	runID := uuid.New()

	_, err := svc.Run(context.Background(), RunRequest{RunID: runID, Window: mayWindow(t)})
	if err == nil {
		t.Fatal("expected lock error")
	}
	if extractor.called {
		t.Fatal("extraction must not start under a held lock")
	}
	if _, ok := recorder.failed[runID]; !ok {
		t.Fatal("run not marked failed")
	}
}

func TestRunExtractionFailureIsRecorded(t *testing.T) {
	extractor := &fakeExtractor{err: errors.New("source unavailable")}
	recorder := newFakeRecorder()

	svc := NewService(testProfile(t, t.TempDir()), extractor, &fakeLocks{}, recorder)
	runID := uuid.New()

	_, err := svc.Run(context.Background(), RunRequest{RunID: runID, Window: mayWindow(t)})
	if err == nil {
		t.Fatal("expected extraction error")
	}
	if cause := recorder.failed[runID]; cause == "" {
		t.Fatal("run not marked failed")
	}
}

func TestRunRejectsUnsetWindow(t *testing.T) {
	svc := NewService(testProfile(t, t.TempDir()), &fakeExtractor{dataset: fixtureDataset()}, nil, nil)
	if _, err := svc.Run(context.Background(), RunRequest{}); err == nil {
		t.Fatal("expected window error")
	}
}

func TestRunUnregisteredBatch(t *testing.T) {
	dir := t.TempDir()
	svc := NewService(testProfile(t, dir), &fakeExtractor{dataset: fixtureDataset()}, nil, nil)

	res, err := svc.Run(context.Background(), RunRequest{Window: mayWindow(t)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := os.Stat(res.ArtifactPath); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
}

func TestWindowDates(t *testing.T) {
	w := mayWindow(t)
	start, end := windowDates(w)
	if !start.Equal(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("start = %v", start)
	}
	if !end.Equal(time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("end = %v", end)
	}

	special, err := ledger.NewPeriodWindow(2025, 0, 2025, 100)
	if err != nil {
		t.Fatalf("NewPeriodWindow: %v", err)
	}
	start, end = windowDates(special)
	if start.Month() != time.January || end.Month() != time.December || end.Day() != 31 {
		t.Fatalf("special window dates = %v .. %v", start, end)
	}
}

package export

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/saftbridge/saftbridge/internal/erp"
	"github.com/saftbridge/saftbridge/internal/ledger"
	"github.com/saftbridge/saftbridge/internal/masterdata"
	"github.com/saftbridge/saftbridge/internal/run"
	"github.com/saftbridge/saftbridge/internal/saft"
)

// payablesDimension is the class-filtered partner axis supplier
// balances come from when a payables prefix is configured.
const payablesDimension ledger.Dimension = "payables_partner"

// ExtractorPort pulls one dataset from the source system.
type ExtractorPort interface {
	Extract(ctx context.Context, params erp.ExtractParams) (*erp.Dataset, error)
}

// LockPort serializes runs of the same company and window. Acquire
// returns the release for the held lock or an error when another run
// holds it.
type LockPort interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// RecorderPort persists run lifecycle and diagnostics. A nil recorder
// executes unregistered one-shot batches.
type RecorderPort interface {
	MarkRunning(ctx context.Context, id uuid.UUID, startedAt time.Time) error
	MarkSucceeded(ctx context.Context, id uuid.UUID, outcome run.Outcome) error
	MarkFailed(ctx context.Context, id uuid.UUID, cause string, finishedAt time.Time) error
	ReplaceDiagnostics(ctx context.Context, runID uuid.UUID, diags []run.Diagnostic) error
}

// RunRequest bounds one export run.
type RunRequest struct {
	// RunID references the registry row; uuid.Nil runs unregistered.
	RunID  uuid.UUID
	Window ledger.PeriodWindow
	// Policy overrides the profile default when set.
	Policy ledger.NormalizationPolicy
	// Excel forces the workbook alongside the profile setting.
	Excel bool
}

// Result is what one run produced.
type Result struct {
	RunID          uuid.UUID
	ArtifactPath   string
	ArtifactDigest string
	ExcelPath      string
	Stats          ledger.RunStats
	Accounts       int
	Customers      int
	Suppliers      int
	Journals       int
	Duration       time.Duration
}

// Service runs the report pipeline for one profile.
type Service struct {
	profile   *Profile
	extractor ExtractorPort
	locks     LockPort
	recorder  RecorderPort
	builder   *saft.Builder
	logger    *slog.Logger
	lockTTL   time.Duration
	now       func() time.Time
}

// NewService builds a service over a validated profile. Locks and
// recorder may be nil for unregistered one-shot batches.
func NewService(profile *Profile, extractor ExtractorPort, locks LockPort, recorder RecorderPort) *Service {
	return &Service{
		profile:   profile,
		extractor: extractor,
		locks:     locks,
		recorder:  recorder,
		builder:   saft.NewBuilder(profile.builderConfig()),
		logger:    slog.Default(),
		lockTTL:   30 * time.Minute,
		now:       time.Now,
	}
}

// WithClock overrides the clock for deterministic tests.
func (s *Service) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithLogger overrides the default logger.
func (s *Service) WithLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// WithLockTTL overrides how long the run lock is held at most.
func (s *Service) WithLockTTL(ttl time.Duration) {
	if ttl > 0 {
		s.lockTTL = ttl
	}
}

// Run executes the full pipeline: lock, extract, consolidate,
// normalize, render, fingerprint, record. Line-level data problems
// surface as diagnostics; any step-level failure aborts the run.
func (s *Service) Run(ctx context.Context, req RunRequest) (*Result, error) {
	if s == nil || s.profile == nil || s.extractor == nil {
		return nil, fmt.Errorf("export: service not initialised")
	}
	if req.Window.Start == "" || req.Window.End == "" {
		return nil, fmt.Errorf("export: run window not set")
	}
	policy := req.Policy
	if policy == "" {
		policy = s.profile.Policy()
	}
	started := s.now()

	if s.locks != nil {
		release, err := s.locks.Acquire(ctx, s.lockKey(req.Window), s.lockTTL)
		if err != nil {
			err = fmt.Errorf("export: acquire run lock: %w", err)
			s.markFailed(ctx, req.RunID, err)
			return nil, err
		}
		defer func() {
			if err := release(context.Background()); err != nil {
				s.logger.Warn("release run lock", "error", err)
			}
		}()
	}

	if s.recorder != nil && req.RunID != uuid.Nil {
		if err := s.recorder.MarkRunning(ctx, req.RunID, started.UTC()); err != nil {
			return nil, fmt.Errorf("export: mark run running: %w", err)
		}
	}

	res, err := s.execute(ctx, req, policy, started)
	if err != nil {
		s.markFailed(ctx, req.RunID, err)
		return nil, err
	}
	return res, nil
}

func (s *Service) execute(ctx context.Context, req RunRequest, policy ledger.NormalizationPolicy, started time.Time) (*Result, error) {
	startDate, endDate := windowDates(req.Window)
	ds, err := s.extractor.Extract(ctx, erp.ExtractParams{
		Company:              s.profile.Company.Name,
		StartDate:            startDate,
		EndDate:              endDate,
		HomeCurrency:         s.profile.Extraction.HomeCurrency,
		ExcludedPartnerTypes: s.profile.Extraction.ExcludedTypes,
	})
	if err != nil {
		return nil, fmt.Errorf("export: extract dataset: %w", err)
	}

	codes := masterdata.CodesByID(ds.Accounts)
	specs := []ledger.GroupingSpec{ledger.GLAccountSpec(), ledger.PartnerSpec()}
	prefix := s.profile.Consolidation.PayablesPrefix
	if prefix != "" {
		specs = append(specs, ledger.ClassFilterSpec(payablesDimension, codes, prefix))
	}
	acc := ledger.NewAccumulator(req.Window, specs...)
	acc.AddAll(ds.Lines)
	stats := acc.Stats()

	accountBalances := ledger.NormalizeAll(acc.Balances(ledger.DimensionGLAccount), policy)
	partnerBalances := ledger.NormalizeAll(acc.Balances(ledger.DimensionPartner), policy)

	customers, suppliers := s.profile.Classifier().Split(ds.Partners)
	if prefix != "" {
		payables := ledger.NormalizeAll(acc.Balances(payablesDimension), policy)
		// Suppliers report only their payables-family postings.
		for _, p := range suppliers {
			partnerBalances[p.ID] = payables[p.ID]
		}
	}

	generated := s.now().UTC()
	doc := s.builder.Build(saft.Input{
		Company:         mergeCompany(ds.Company, s.profile.Company),
		Window:          req.Window,
		GeneratedAt:     generated,
		FileKind:        s.profile.Report.FileKind,
		Accounts:        ds.Accounts,
		Customers:       customers,
		Suppliers:       suppliers,
		AccountBalances: accountBalances,
		PartnerBalances: partnerBalances,
		Journals:        ds.Journals,
	})

	path := s.artifactPath(req.Window)
	digest, err := writeArtifact(path, doc)
	if err != nil {
		return nil, err
	}

	res := &Result{
		RunID:          req.RunID,
		ArtifactPath:   path,
		ArtifactDigest: digest,
		Stats:          stats,
		Accounts:       len(ds.Accounts),
		Customers:      len(customers),
		Suppliers:      len(suppliers),
		Journals:       len(ds.Journals),
	}

	if req.Excel || s.profile.Output.Excel {
		xlsxPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".xlsx"
		err := WriteWorkbook(xlsxPath, Workbook{
			Dataset:         ds,
			Window:          req.Window,
			GeneratedAt:     generated,
			Customers:       customers,
			Suppliers:       suppliers,
			AccountBalances: accountBalances,
			PartnerBalances: partnerBalances,
			Stats:           stats,
		})
		if err != nil {
			return nil, err
		}
		res.ExcelPath = xlsxPath
	}

	if s.recorder != nil && req.RunID != uuid.Nil {
		outcome := run.Outcome{
			ArtifactPath:   path,
			ArtifactDigest: digest,
			LinesProcessed: stats.Processed,
			LinesSkipped:   stats.TotalSkipped(),
			FinishedAt:     s.now().UTC(),
		}
		if err := s.recorder.MarkSucceeded(ctx, req.RunID, outcome); err != nil {
			return nil, fmt.Errorf("export: record outcome: %w", err)
		}
		if err := s.recorder.ReplaceDiagnostics(ctx, req.RunID, diagnosticsFrom(req.RunID, stats)); err != nil {
			return nil, fmt.Errorf("export: record diagnostics: %w", err)
		}
	}

	res.Duration = s.now().Sub(started)
	s.logger.Info("export run complete",
		"company", s.profile.Company.Name,
		"window", string(req.Window.Start)+"-"+string(req.Window.End),
		"lines", stats.Processed,
		"skipped", stats.TotalSkipped(),
		"accounts", res.Accounts,
		"customers", res.Customers,
		"suppliers", res.Suppliers,
		"artifact", path,
	)
	return res, nil
}

func (s *Service) markFailed(ctx context.Context, id uuid.UUID, cause error) {
	if s.recorder == nil || id == uuid.Nil {
		return
	}
	if err := s.recorder.MarkFailed(ctx, id, cause.Error(), s.now().UTC()); err != nil {
		s.logger.Error("mark run failed", "run_id", id, "error", err)
	}
}

func (s *Service) lockKey(w ledger.PeriodWindow) string {
	return fmt.Sprintf("saft:export:%s:%s-%s:lock", slugify(s.profile.Company.Name), w.Start, w.End)
}

func (s *Service) artifactPath(w ledger.PeriodWindow) string {
	name := strings.NewReplacer(
		"{company}", s.profile.companyID(),
		"{year}", strconv.Itoa(w.Start.Year()),
		"{month}", fmt.Sprintf("%02d", w.Start.Number()),
	).Replace(s.profile.Output.FilenamePattern)
	return filepath.Join(s.profile.Output.Directory, name)
}

// writeArtifact renders the document to path while hashing the exact
// bytes written, so the recorded digest always matches the file.
func writeArtifact(path string, doc *saft.AuditFile) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("export: create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("export: create artifact: %w", err)
	}
	hasher, err := blake2b.New256(nil)
	if err != nil {
		f.Close()
		return "", fmt.Errorf("export: init digest: %w", err)
	}
	if err := saft.Write(io.MultiWriter(f, hasher), doc); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("export: close artifact: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func diagnosticsFrom(id uuid.UUID, stats ledger.RunStats) []run.Diagnostic {
	diags := make([]run.Diagnostic, 0, len(stats.Skipped)+1)
	for reason, count := range stats.Skipped {
		diags = append(diags, run.Diagnostic{RunID: id, Reason: string(reason), Count: count})
	}
	if stats.MalformedAmounts > 0 {
		diags = append(diags, run.Diagnostic{RunID: id, Reason: "malformed_amount", Count: stats.MalformedAmounts})
	}
	sort.Slice(diags, func(i, j int) bool { return diags[i].Reason < diags[j].Reason })
	return diags
}

// mergeCompany fills gaps in the extracted company record from the
// profile; extracted values win.
func mergeCompany(co erp.Company, p CompanyProfile) erp.Company {
	merge := func(dst *string, fallback string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = fallback
		}
	}
	merge(&co.Name, p.Name)
	merge(&co.NameCyrillic, p.NameCyrillic)
	merge(&co.RegistrationNumber, p.RegistrationNumber)
	merge(&co.VATNumber, p.VATNumber)
	merge(&co.IBAN, p.IBAN)
	merge(&co.Street, p.Street)
	merge(&co.City, p.City)
	merge(&co.PostalCode, p.PostalCode)
	merge(&co.Region, p.Region)
	merge(&co.Country, p.Country)
	merge(&co.Phone, p.Phone)
	merge(&co.Fax, p.Fax)
	merge(&co.Email, p.Email)
	merge(&co.Website, p.Website)
	return co
}

// windowDates translates the period window into the calendar bounds
// the extraction queries take. The start date only scopes journals;
// transaction lines always cover the full history through the end so
// opening balances can form.
func windowDates(w ledger.PeriodWindow) (time.Time, time.Time) {
	return periodStartDate(w.Start), periodEndDate(w.End)
}

func periodStartDate(k ledger.PeriodKey) time.Time {
	return time.Date(k.Year(), time.Month(clampMonth(k.Number())), 1, 0, 0, 0, 0, time.UTC)
}

func periodEndDate(k ledger.PeriodKey) time.Time {
	return periodStartDate(k).AddDate(0, 1, -1)
}

// clampMonth maps the special period numbers onto calendar months:
// the opening period to January, year-end adjustments to December.
func clampMonth(n int) int {
	switch {
	case n < 1:
		return 1
	case n > 12:
		return 12
	}
	return n
}

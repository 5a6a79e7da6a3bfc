package main

import (
	"fmt"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/saftbridge/saftbridge/internal/app"
	"github.com/saftbridge/saftbridge/internal/erp"
	"github.com/saftbridge/saftbridge/internal/export"
	"github.com/saftbridge/saftbridge/internal/ledger"
)

var (
	exportFrom   string
	exportTo     string
	exportOut    string
	exportPolicy string
	exportExcel  bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Run one export synchronously and print the summary",
	Long: `Runs the full pipeline against the finance cloud without the run
registry or the queue: extract, consolidate, render, fingerprint.
ERP connection settings come from the environment (ERP_BASE_URL and
friends), everything else from the company profile.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "window start, YYYY-MM or YYYY/PPP (required)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "window end, defaults to the start period")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output directory override")
	exportCmd.Flags().StringVar(&exportPolicy, "policy", "", "normalization policy override")
	exportCmd.Flags().BoolVar(&exportExcel, "excel", false, "also write the review workbook")
	_ = exportCmd.MarkFlagRequired("from")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	start, err := parsePeriodFlag(exportFrom)
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	end := start
	if exportTo != "" {
		if end, err = parsePeriodFlag(exportTo); err != nil {
			return fmt.Errorf("--to: %w", err)
		}
	}
	window, err := ledger.WindowFromKeys(start, end)
	if err != nil {
		return err
	}
	var policy ledger.NormalizationPolicy
	if exportPolicy != "" {
		if policy, err = ledger.ParseNormalizationPolicy(exportPolicy); err != nil {
			return err
		}
	}

	profile, err := export.LoadProfile(resolveProfilePath(cfg))
	if err != nil {
		return err
	}
	if exportOut != "" {
		profile.Output.Directory = exportOut
	}

	client, err := erp.NewClient(erp.Config{
		BaseURL:      cfg.ERPBaseURL,
		TokenURL:     cfg.ERPTokenURL,
		ClientID:     cfg.ERPClientID,
		ClientSecret: cfg.ERPClientSecret,
		PollInterval: cfg.ERPPollInterval,
		JobTimeout:   cfg.ERPJobTimeout,
		Charset:      cfg.SourceCharset,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	svc := export.NewService(profile, client, nil, nil)
	svc.WithLogger(logger)

	res, err := svc.Run(ctx, export.RunRequest{Window: window, Policy: policy, Excel: exportExcel})
	if err != nil {
		return err
	}
	printRunSummary(cmd, res)
	return nil
}

// parsePeriodFlag accepts "2025-05", "2025/005" and the packed
// "2025005" forms.
func parsePeriodFlag(s string) (ledger.PeriodKey, error) {
	s = strings.TrimSpace(s)
	if sep := strings.IndexAny(s, "-/"); sep > 0 {
		year, err := strconv.Atoi(s[:sep])
		if err != nil {
			return "", fmt.Errorf("bad year in %q", s)
		}
		period, err := strconv.Atoi(s[sep+1:])
		if err != nil {
			return "", fmt.Errorf("bad period in %q", s)
		}
		return ledger.NewPeriodKey(year, period)
	}
	return ledger.ParsePeriodKey(s)
}

func printRunSummary(cmd *cobra.Command, res *export.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Artifact:  %s\n", res.ArtifactPath)
	fmt.Fprintf(out, "Digest:    %s\n", res.ArtifactDigest)
	if res.ExcelPath != "" {
		fmt.Fprintf(out, "Workbook:  %s\n", res.ExcelPath)
	}
	fmt.Fprintf(out, "Accounts:  %d\n", res.Accounts)
	fmt.Fprintf(out, "Customers: %d\n", res.Customers)
	fmt.Fprintf(out, "Suppliers: %d\n", res.Suppliers)
	fmt.Fprintf(out, "Journals:  %d\n", res.Journals)
	fmt.Fprintf(out, "Lines:     %d processed, %d skipped\n", res.Stats.Processed, res.Stats.TotalSkipped())
	reasons := make([]string, 0, len(res.Stats.Skipped))
	for reason := range res.Stats.Skipped {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		fmt.Fprintf(out, "  %s: %d\n", reason, res.Stats.Skipped[ledger.SkipReason(reason)])
	}
	if res.Stats.MalformedAmounts > 0 {
		fmt.Fprintf(out, "  malformed_amount: %d (posted as zero)\n", res.Stats.MalformedAmounts)
	}
	fmt.Fprintf(out, "Duration:  %s\n", res.Duration.Round(time.Millisecond))
}

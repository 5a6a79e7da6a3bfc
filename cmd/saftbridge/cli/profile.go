// Package cli implements the operational command workflows behind the
// saftbridge binary. Commands take explicit writers and return exit
// codes so they stay testable without a process boundary.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/saftbridge/saftbridge/internal/export"
)

// ProfileValidateOptions defines available flags for profile validate.
type ProfileValidateOptions struct {
	Path       string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ProfileSummary describes the JSON response for profile validate.
type ProfileSummary struct {
	OK                 bool     `json:"ok"`
	Company            string   `json:"company"`
	RegistrationNumber string   `json:"registration_number,omitempty"`
	Policy             string   `json:"policy"`
	FileKind           string   `json:"file_kind"`
	SupplierTypes      []string `json:"supplier_types,omitempty"`
	PayablesPrefix     string   `json:"payables_prefix,omitempty"`
	OutputDirectory    string   `json:"output_directory"`
	FilenamePattern    string   `json:"filename_pattern"`
	Excel              bool     `json:"excel"`
}

// ValidateProfileCommand loads a profile and reports what it resolves
// to. Exit code 1 means a bad invocation, 10 a rejected profile.
func ValidateProfileCommand(opts ProfileValidateOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if strings.TrimSpace(opts.Path) == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "profile validate: a profile path is required")
		return 1
	}
	p, err := export.LoadProfile(opts.Path)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "profile validate: %v\n", err)
		return 10
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(buildProfileSummary(p)); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "profile validate: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	renderProfileHuman(opts.Stdout, opts.Path, p)
	return 0
}

func buildProfileSummary(p *export.Profile) ProfileSummary {
	return ProfileSummary{
		OK:                 true,
		Company:            p.Company.Name,
		RegistrationNumber: p.Company.RegistrationNumber,
		Policy:             string(p.Policy()),
		FileKind:           p.Report.FileKind,
		SupplierTypes:      p.Consolidation.SupplierTypes,
		PayablesPrefix:     p.Consolidation.PayablesPrefix,
		OutputDirectory:    p.Output.Directory,
		FilenamePattern:    p.Output.FilenamePattern,
		Excel:              p.Output.Excel,
	}
}

func renderProfileHuman(out io.Writer, path string, p *export.Profile) {
	_, _ = fmt.Fprintf(out, "Profile %s is valid.\n", path)
	_, _ = fmt.Fprintf(out, "Company:   %s", p.Company.Name)
	if p.Company.RegistrationNumber != "" {
		_, _ = fmt.Fprintf(out, " (UIC %s)", p.Company.RegistrationNumber)
	}
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintf(out, "Policy:    %s\n", p.Policy())
	_, _ = fmt.Fprintf(out, "File kind: %s\n", p.Report.FileKind)
	if len(p.Consolidation.SupplierTypes) > 0 {
		_, _ = fmt.Fprintf(out, "Suppliers: types %s\n", strings.Join(p.Consolidation.SupplierTypes, ", "))
	}
	if p.Consolidation.PayablesPrefix != "" {
		_, _ = fmt.Fprintf(out, "Payables:  account family %s*\n", p.Consolidation.PayablesPrefix)
	}
	_, _ = fmt.Fprintf(out, "Output:    %s/%s", p.Output.Directory, p.Output.FilenamePattern)
	if p.Output.Excel {
		_, _ = fmt.Fprint(out, " (+workbook)")
	}
	_, _ = fmt.Fprintln(out)
}

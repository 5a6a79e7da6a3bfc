// Package export orchestrates one report run end to end: dataset
// extraction, balance consolidation, audit-file rendering and the
// bookkeeping around it.
package export

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/saftbridge/saftbridge/internal/ledger"
	"github.com/saftbridge/saftbridge/internal/masterdata"
	"github.com/saftbridge/saftbridge/internal/saft"
)

// Profile describes one reporting company: how to find it in the ERP,
// what the audit-file header should say when the extracted record is
// sparse, how partners classify and where artifacts land.
type Profile struct {
	Company       CompanyProfile       `yaml:"company"`
	Report        ReportProfile        `yaml:"report"`
	Consolidation ConsolidationProfile `yaml:"consolidation"`
	Extraction    ExtractionProfile    `yaml:"extraction"`
	Output        OutputProfile        `yaml:"output"`

	policy ledger.NormalizationPolicy
}

// CompanyProfile identifies the reporting entity. Name scopes the
// extraction; the remaining fields fill header gaps left by the ERP
// company record.
type CompanyProfile struct {
	Name               string `yaml:"name"`
	NameCyrillic       string `yaml:"name_cyrillic"`
	RegistrationNumber string `yaml:"registration_number"`
	VATNumber          string `yaml:"vat_number"`
	IBAN               string `yaml:"iban"`
	Street             string `yaml:"street"`
	City               string `yaml:"city"`
	PostalCode         string `yaml:"postal_code"`
	Region             string `yaml:"region"`
	Country            string `yaml:"country"`
	Phone              string `yaml:"phone"`
	Fax                string `yaml:"fax"`
	Email              string `yaml:"email"`
	Website            string `yaml:"website"`
}

// ReportProfile carries the software identification and the static
// header values of the rendered file.
type ReportProfile struct {
	SoftwareCompany     string `yaml:"software_company"`
	SoftwareID          string `yaml:"software_id"`
	SoftwareVersion     string `yaml:"software_version"`
	AccountCreationDate string `yaml:"account_creation_date"`
	// FileKind is the header comment: M monthly, A annual, D on
	// demand.
	FileKind           string `yaml:"file_kind"`
	TaxAccountingBasis string `yaml:"tax_accounting_basis"`
}

// ConsolidationProfile tunes the balance pass.
type ConsolidationProfile struct {
	Policy        string   `yaml:"normalization_policy"`
	SupplierTypes []string `yaml:"supplier_types"`
	// PayablesPrefix restricts supplier balances to postings against
	// accounts of this chart family. Empty uses the partner's whole
	// posting history.
	PayablesPrefix string `yaml:"payables_prefix"`
}

// ExtractionProfile tunes the source queries.
type ExtractionProfile struct {
	HomeCurrency  string   `yaml:"home_currency"`
	ExcludedTypes []string `yaml:"excluded_partner_types"`
}

// OutputProfile decides where artifacts land and how they are named.
// The filename pattern knows {company}, {year} and {month}.
type OutputProfile struct {
	Directory       string `yaml:"directory"`
	FilenamePattern string `yaml:"filename_pattern"`
	Excel           bool   `yaml:"excel"`
}

// DefaultFilenamePattern names artifacts the way the revenue agency
// portal expects uploads.
const DefaultFilenamePattern = "SAFT_{company}_{year}_{month}.xml"

// LoadProfile reads and validates a YAML profile.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("export: read profile: %w", err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("export: parse profile %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("export: invalid profile %s: %w", path, err)
	}
	return &p, nil
}

// Validate applies defaults and rejects profiles the pipeline cannot
// run with. It must pass before the profile is handed to a service.
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.Company.Name) == "" {
		return fmt.Errorf("company.name is required")
	}

	if p.Consolidation.Policy == "" {
		p.Consolidation.Policy = string(ledger.PolicyIndependentSign)
	}
	policy, err := ledger.ParseNormalizationPolicy(p.Consolidation.Policy)
	if err != nil {
		return fmt.Errorf("consolidation.normalization_policy: %w", err)
	}
	p.policy = policy

	if p.Report.FileKind == "" {
		p.Report.FileKind = "M"
	}
	switch p.Report.FileKind {
	case "M", "A", "D":
	default:
		return fmt.Errorf("report.file_kind must be M, A or D, got %q", p.Report.FileKind)
	}

	if p.Output.Directory == "" {
		p.Output.Directory = "out"
	}
	if p.Output.FilenamePattern == "" {
		p.Output.FilenamePattern = DefaultFilenamePattern
	}
	return nil
}

// Policy returns the normalization policy resolved by Validate.
func (p *Profile) Policy() ledger.NormalizationPolicy {
	if p.policy == "" {
		return ledger.PolicyIndependentSign
	}
	return p.policy
}

// Classifier builds the partner classifier for this profile.
func (p *Profile) Classifier() masterdata.Classifier {
	return masterdata.NewClassifier(p.Consolidation.SupplierTypes)
}

func (p *Profile) builderConfig() saft.Config {
	return saft.Config{
		SoftwareCompany:     p.Report.SoftwareCompany,
		SoftwareID:          p.Report.SoftwareID,
		SoftwareVersion:     p.Report.SoftwareVersion,
		AccountCreationDate: p.Report.AccountCreationDate,
		TaxAccountingBasis:  p.Report.TaxAccountingBasis,
	}
}

// companyID is the identifier used in artifact names: the registered
// number when known, a slug of the company name otherwise.
func (p *Profile) companyID() string {
	if p.Company.RegistrationNumber != "" {
		return p.Company.RegistrationNumber
	}
	return slugify(p.Company.Name)
}

func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_' || r == '.':
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

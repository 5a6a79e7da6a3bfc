package erp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/saftbridge/saftbridge/internal/ledger"
	"github.com/saftbridge/saftbridge/internal/masterdata"
)

// Dataset is everything one reporting run extracts from the ERP.
type Dataset struct {
	Company  Company
	Accounts []masterdata.GLAccount
	Partners []masterdata.BusinessPartner
	// Lines covers the full posting history up to the window end in
	// home currency; opening balances need every prior period.
	Lines []ledger.LedgerLine
	// Journals covers only the reporting window.
	Journals []Journal
}

// Company is the reporting entity block for the audit-file header.
type Company struct {
	ID                 string
	Name               string
	NameCyrillic       string
	Street             string
	StreetCyrillic     string
	City               string
	CityCyrillic       string
	PostalCode         string
	Region             string
	Country            string
	Phone              string
	Fax                string
	Email              string
	Website            string
	VATNumber          string
	TaxNumber          string
	RegistrationNumber string
	IBAN               string
}

// Journal is one posted batch of ledger postings inside the window.
type Journal struct {
	ID        string
	Name      string
	Type      string
	Status    string
	Reference string
	Date      time.Time
	Period    string
	Lines     []JournalLine
}

// JournalLine is one posting row of a journal. Value keeps the raw
// signed text, debit positive.
type JournalLine struct {
	ID            string
	JournalID     string
	GLAccountID   string
	GLAccountCode string
	LineType      string
	Description   string
	Value         string
}

// ExtractParams bound one extraction run.
type ExtractParams struct {
	// Company narrows extraction to one reporting entity by name.
	// Empty extracts tenant-wide, matching a single-entity org.
	Company   string
	StartDate time.Time
	EndDate   time.Time
	// HomeCurrency filters transaction lines; defaults to BGN.
	HomeCurrency string
	// ExcludedPartnerTypes drops lead-like partner records at the
	// source; defaults to Prospect and Scaleup. Untyped partner rows
	// are always dropped.
	ExcludedPartnerTypes []string
}

const companyByNameQuery = `
SELECT Id, Name, NameCyrillic, Street, StreetCyrillic, City,
       CityCyrillic, PostalCode, Region, Country, Phone, Fax,
       ContactEmail, Website, VATRegistrationNumber,
       TaxIdentificationNumber, RegistrationNumber,
       BankAccount.IBANNumber
FROM Company
WHERE Name = '%s'
LIMIT 1`

const journalQuery = `
SELECT Id, Name, JournalDate, Type, Status, Reference, Period.Name
FROM Journal
WHERE JournalDate >= %s AND JournalDate <= %s
  AND Status = 'Posted'%s`

const journalLineQuery = `
SELECT Id, JournalId, GeneralLedgerAccountId,
       GeneralLedgerAccount.ReportingCode, LineType, Value,
       LineDescription
FROM JournalLineItem
WHERE Journal.JournalDate >= %s AND Journal.JournalDate <= %s
  AND Journal.Status = 'Posted'%s`

const transactionLineQuery = `
SELECT Id, GeneralLedgerAccountId, AccountId, LineType, HomeValue,
       HomeDebits, HomeCredits, Transaction.TransactionDate,
       Transaction.Period.Name, HomeCurrency.Name
FROM TransactionLineItem
WHERE Transaction.TransactionDate <= %s
  AND HomeCurrency.Name = '%s'%s`

const glAccountsByIDQuery = `
SELECT Id, Name, ReportingCode, Type
FROM GeneralLedgerAccount
WHERE Id IN (%s)`

const glAccountsFallbackQuery = `
SELECT Id, Name, ReportingCode, Type
FROM GeneralLedgerAccount
WHERE ReportingCode != null`

const partnerQuery = `
SELECT Id, Name, AccountNumber, Type, TaxIdentificationNumber,
       Phone, Fax, InvoiceEmail, Website, BillingStreet, BillingCity,
       BillingPostalCode, BillingCountry
FROM BusinessPartnerAccount
WHERE Type != ''%s`

// Extract pulls every section needed for one reporting run. The
// company record resolves first because its ID scopes the remaining
// queries; the three independent section chains then run in parallel.
func (c *Client) Extract(ctx context.Context, params ExtractParams) (*Dataset, error) {
	if params.HomeCurrency == "" {
		params.HomeCurrency = "BGN"
	}
	if params.ExcludedPartnerTypes == nil {
		params.ExcludedPartnerTypes = []string{"Prospect", "Scaleup"}
	}

	ds := &Dataset{}

	if params.Company != "" {
		rec, err := c.QueryOne(ctx, fmt.Sprintf(companyByNameQuery, soqlEscape(params.Company)))
		if err != nil {
			return nil, err
		}
		if rec == nil {
			c.logger.Warn("company not found, extracting without company scope", "company", params.Company)
		} else {
			ds.Company = companyFromRecord(rec)
		}
	}

	startStr := params.StartDate.Format(time.DateOnly)
	endStr := params.EndDate.Format(time.DateOnly)
	companyID := ds.Company.ID

	g, gctx := errgroup.WithContext(ctx)

	// Transaction lines feed the balance pass; the chart of accounts
	// is then narrowed to the GL accounts those lines actually touch.
	g.Go(func() error {
		q := fmt.Sprintf(transactionLineQuery, endStr, soqlEscape(params.HomeCurrency),
			scopeClause("Transaction.OwnerCompanyId", companyID))
		records, err := c.BulkQuery(gctx, q)
		if err != nil {
			return err
		}

		lines := make([]ledger.LedgerLine, 0, len(records))
		used := make(map[string]struct{})
		for _, rec := range records {
			line := lineFromRecord(rec)
			lines = append(lines, line)
			if line.GLAccountID != "" {
				used[line.GLAccountID] = struct{}{}
			}
		}
		ds.Lines = lines

		accounts, err := c.fetchGLAccounts(gctx, used)
		if err != nil {
			return err
		}
		ds.Accounts = accounts
		return nil
	})

	g.Go(func() error {
		q := fmt.Sprintf(partnerQuery, excludeTypesClause(params.ExcludedPartnerTypes))
		records, err := c.Query(gctx, q)
		if err != nil {
			return err
		}
		partners := make([]masterdata.BusinessPartner, 0, len(records))
		for _, rec := range records {
			partners = append(partners, partnerFromRecord(rec))
		}
		ds.Partners = partners
		return nil
	})

	g.Go(func() error {
		journals, err := c.fetchJournals(gctx, startStr, endStr, companyID)
		if err != nil {
			return err
		}
		ds.Journals = journals
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.logger.Info("extraction complete",
		"company", params.Company,
		"lines", len(ds.Lines),
		"accounts", len(ds.Accounts),
		"partners", len(ds.Partners),
		"journals", len(ds.Journals))
	return ds, nil
}

func (c *Client) fetchGLAccounts(ctx context.Context, used map[string]struct{}) ([]masterdata.GLAccount, error) {
	q := glAccountsFallbackQuery
	if len(used) > 0 {
		ids := make([]string, 0, len(used))
		for id := range used {
			ids = append(ids, soqlEscape(id))
		}
		sort.Strings(ids)
		q = fmt.Sprintf(glAccountsByIDQuery, "'"+strings.Join(ids, "','")+"'")
	}

	records, err := c.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	accounts := make([]masterdata.GLAccount, 0, len(records))
	for _, rec := range records {
		accounts = append(accounts, accountFromRecord(rec))
	}
	masterdata.SortAccounts(accounts)
	return accounts, nil
}

func (c *Client) fetchJournals(ctx context.Context, startStr, endStr, companyID string) ([]Journal, error) {
	jrecords, err := c.Query(ctx, fmt.Sprintf(journalQuery, startStr, endStr,
		scopeClause("OwnerCompanyId", companyID)))
	if err != nil {
		return nil, err
	}
	lrecords, err := c.Query(ctx, fmt.Sprintf(journalLineQuery, startStr, endStr,
		scopeClause("Journal.OwnerCompanyId", companyID)))
	if err != nil {
		return nil, err
	}

	journals := make([]Journal, 0, len(jrecords))
	index := make(map[string]int, len(jrecords))
	for _, rec := range jrecords {
		j := journalFromRecord(rec)
		index[j.ID] = len(journals)
		journals = append(journals, j)
	}
	for _, rec := range lrecords {
		line := journalLineFromRecord(rec)
		if i, ok := index[line.JournalID]; ok {
			journals[i].Lines = append(journals[i].Lines, line)
		}
	}

	sort.Slice(journals, func(i, j int) bool {
		if !journals[i].Date.Equal(journals[j].Date) {
			return journals[i].Date.Before(journals[j].Date)
		}
		return journals[i].Name < journals[j].Name
	})
	return journals, nil
}

// scopeClause renders an optional AND filter on field; empty id means
// no company scoping.
func scopeClause(field, id string) string {
	if id == "" {
		return ""
	}
	return fmt.Sprintf("\n  AND %s = '%s'", field, soqlEscape(id))
}

func excludeTypesClause(types []string) string {
	quoted := make([]string, 0, len(types))
	for _, t := range types {
		if strings.TrimSpace(t) == "" {
			continue
		}
		quoted = append(quoted, "'"+soqlEscape(t)+"'")
	}
	if len(quoted) == 0 {
		return ""
	}
	return fmt.Sprintf("\n  AND Type NOT IN (%s)", strings.Join(quoted, ", "))
}

func soqlEscape(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, "'", `\'`)
}

func lineFromRecord(rec Record) ledger.LedgerLine {
	date, _ := time.Parse(time.DateOnly, rec.Get("Transaction.TransactionDate"))
	return ledger.LedgerLine{
		GLAccountID:     rec.Get("GeneralLedgerAccountId"),
		PartnerID:       rec.Get("AccountId"),
		SignedAmount:    rec.Get("HomeValue"),
		Debit:           rec.Get("HomeDebits"),
		Credit:          rec.Get("HomeCredits"),
		Period:          rec.Get("Transaction.Period.Name"),
		TransactionDate: date,
	}
}

func accountFromRecord(rec Record) masterdata.GLAccount {
	return masterdata.GLAccount{
		ID:            rec.Get("Id"),
		ReportingCode: rec.Get("ReportingCode"),
		Name:          rec.Get("Name"),
		Type:          rec.Get("Type"),
	}
}

func partnerFromRecord(rec Record) masterdata.BusinessPartner {
	return masterdata.BusinessPartner{
		ID:         rec.Get("Id"),
		Number:     rec.Get("AccountNumber"),
		Name:       rec.Get("Name"),
		TaxID:      rec.Get("TaxIdentificationNumber"),
		Type:       rec.Get("Type"),
		Phone:      rec.Get("Phone"),
		Fax:        rec.Get("Fax"),
		Email:      rec.Get("InvoiceEmail"),
		Website:    rec.Get("Website"),
		Street:     rec.Get("BillingStreet"),
		City:       rec.Get("BillingCity"),
		PostalCode: rec.Get("BillingPostalCode"),
		Country:    rec.Get("BillingCountry"),
	}
}

func companyFromRecord(rec Record) Company {
	return Company{
		ID:                 rec.Get("Id"),
		Name:               rec.Get("Name"),
		NameCyrillic:       rec.Get("NameCyrillic"),
		Street:             rec.Get("Street"),
		StreetCyrillic:     rec.Get("StreetCyrillic"),
		City:               rec.Get("City"),
		CityCyrillic:       rec.Get("CityCyrillic"),
		PostalCode:         rec.Get("PostalCode"),
		Region:             rec.Get("Region"),
		Country:            rec.Get("Country"),
		Phone:              rec.Get("Phone"),
		Fax:                rec.Get("Fax"),
		Email:              rec.Get("ContactEmail"),
		Website:            rec.Get("Website"),
		VATNumber:          rec.Get("VATRegistrationNumber"),
		TaxNumber:          rec.Get("TaxIdentificationNumber"),
		RegistrationNumber: rec.Get("RegistrationNumber"),
		IBAN:               rec.Get("BankAccount.IBANNumber"),
	}
}

func journalFromRecord(rec Record) Journal {
	date, _ := time.Parse(time.DateOnly, rec.Get("JournalDate"))
	return Journal{
		ID:        rec.Get("Id"),
		Name:      rec.Get("Name"),
		Type:      rec.Get("Type"),
		Status:    rec.Get("Status"),
		Reference: rec.Get("Reference"),
		Date:      date,
		Period:    rec.Get("Period.Name"),
	}
}

func journalLineFromRecord(rec Record) JournalLine {
	return JournalLine{
		ID:            rec.Get("Id"),
		JournalID:     rec.Get("JournalId"),
		GLAccountID:   rec.Get("GeneralLedgerAccountId"),
		GLAccountCode: rec.Get("GeneralLedgerAccount.ReportingCode"),
		LineType:      rec.Get("LineType"),
		Description:   rec.Get("LineDescription"),
		Value:         rec.Get("Value"),
	}
}

package saft

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/saftbridge/saftbridge/internal/erp"
	"github.com/saftbridge/saftbridge/internal/ledger"
	"github.com/saftbridge/saftbridge/internal/masterdata"
)

// Config identifies the producing software inside the audit file and
// fills schema-mandated values the ERP does not track.
type Config struct {
	SoftwareCompany string
	SoftwareID      string
	SoftwareVersion string
	// AccountCreationDate fills the mandatory per-account element;
	// the ERP chart of accounts has no creation dates.
	AccountCreationDate string
	// LineCurrency is the currency code on journal line amounts.
	LineCurrency       string
	TaxAccountingBasis string
}

type Builder struct {
	cfg Config
}

func NewBuilder(cfg Config) *Builder {
	if cfg.SoftwareCompany == "" {
		cfg.SoftwareCompany = "Saftbridge"
	}
	if cfg.SoftwareID == "" {
		cfg.SoftwareID = "saftbridge"
	}
	if cfg.SoftwareVersion == "" {
		cfg.SoftwareVersion = "dev"
	}
	if cfg.AccountCreationDate == "" {
		cfg.AccountCreationDate = "2020-01-01"
	}
	if cfg.LineCurrency == "" {
		cfg.LineCurrency = "BGN"
	}
	if cfg.TaxAccountingBasis == "" {
		cfg.TaxAccountingBasis = "A"
	}
	return &Builder{cfg: cfg}
}

// Input is one report's worth of consolidated data. Balance maps key
// by the source entity ID, matching the consolidation dimensions.
type Input struct {
	Company     erp.Company
	Window      ledger.PeriodWindow
	GeneratedAt time.Time
	// FileKind is the header comment: M monthly, A annual, D on
	// demand. Defaults to M.
	FileKind        string
	Accounts        []masterdata.GLAccount
	Customers       []masterdata.BusinessPartner
	Suppliers       []masterdata.BusinessPartner
	AccountBalances map[string]ledger.Balance
	PartnerBalances map[string]ledger.Balance
	Journals        []erp.Journal
}

// Build assembles the complete audit file document. Row order follows
// the input slices, so callers control master-file ordering.
func (b *Builder) Build(in Input) *AuditFile {
	generated := in.GeneratedAt
	if generated.IsZero() {
		generated = time.Now().UTC()
	}
	kind := in.FileKind
	if kind == "" {
		kind = "M"
	}

	return &AuditFile{
		XMLNS:  Namespace,
		Header: b.buildHeader(in, generated, kind),
		MasterFilesMonthly: MasterFilesMonthly{
			GeneralLedgerAccounts: GeneralLedgerAccounts{Accounts: b.buildAccounts(in)},
			Customers:             Customers{Customers: b.buildCustomers(in)},
			Suppliers:             Suppliers{Suppliers: b.buildSuppliers(in)},
			TaxTable:              defaultTaxTable(),
			UOMTable:              defaultUOMTable(),
		},
		GeneralLedgerEntries: b.buildEntries(in.Journals),
	}
}

func (b *Builder) buildHeader(in Input, generated time.Time, kind string) Header {
	co := in.Company
	name := firstNonEmpty(co.NameCyrillic, co.Name)
	registration := firstNonEmpty(co.RegistrationNumber, co.TaxNumber)
	taxNumber := firstNonEmpty(co.VATNumber, co.TaxNumber)

	company := HeaderCompany{
		RegistrationNumber: registration,
		Name:               name,
		Address: Address{
			StreetName:  firstNonEmpty(co.StreetCyrillic, co.Street),
			City:        firstNonEmpty(co.CityCyrillic, co.City),
			PostalCode:  co.PostalCode,
			Region:      co.Region,
			Country:     firstNonEmpty(co.Country, "BG"),
			AddressType: "StreetAddress",
		},
		Contact: Contact{
			Telephone: co.Phone,
			Fax:       co.Fax,
			Email:     co.Email,
			Website:   co.Website,
		},
		BankAccount: BankAccount{IBANNumber: co.IBAN},
	}
	if taxNumber != "" {
		company.TaxRegistration = &TaxRegistration{
			TaxRegistrationNumber: taxNumber,
			TaxType:               "100010",
			TaxNumber:             taxNumber,
		}
	}

	return Header{
		AuditFileVersion:     "1.0",
		AuditFileCountry:     "BG",
		AuditFileDateCreated: generated.Format(time.RFC3339),
		SoftwareCompanyName:  b.cfg.SoftwareCompany,
		SoftwareID:           b.cfg.SoftwareID,
		SoftwareVersion:      b.cfg.SoftwareVersion,
		Company:              company,
		Ownership: Ownership{
			IsPartOfGroup:               "1",
			UltimateOwnerNameCyrillicBG: name,
			UltimateOwnerUICBG:          registration,
		},
		// The schema restricts DefaultCurrencyCode to EUR.
		DefaultCurrencyCode: "EUR",
		SelectionCriteria: SelectionCriteria{
			PeriodStart:     strconv.Itoa(in.Window.Start.Number()),
			PeriodStartYear: strconv.Itoa(in.Window.Start.Year()),
			PeriodEnd:       strconv.Itoa(in.Window.End.Number()),
			PeriodEndYear:   strconv.Itoa(in.Window.End.Year()),
		},
		HeaderComment:      kind,
		TaxAccountingBasis: b.cfg.TaxAccountingBasis,
		TaxEntity:          "Company",
	}
}

func (b *Builder) buildAccounts(in Input) []Account {
	accounts := make([]Account, 0, len(in.Accounts))
	for _, acc := range in.Accounts {
		id := acc.ReportingID()
		accounts = append(accounts, Account{
			AccountID:           id,
			AccountDescription:  acc.Name,
			TaxpayerAccountID:   id,
			AccountType:         "Bifunctional",
			AccountCreationDate: b.cfg.AccountCreationDate,
			BalancePair:         balancePair(in.AccountBalances[acc.ID]),
		})
	}
	return accounts
}

func (b *Builder) buildCustomers(in Input) []Customer {
	customers := make([]Customer, 0, len(in.Customers))
	for _, p := range in.Customers {
		customers = append(customers, Customer{
			CompanyStructure: partnerStructure(p),
			CustomerID:       p.ReportingID(),
			AccountID:        p.Number,
			BalancePair:      balancePair(in.PartnerBalances[p.ID]),
		})
	}
	return customers
}

func (b *Builder) buildSuppliers(in Input) []Supplier {
	suppliers := make([]Supplier, 0, len(in.Suppliers))
	for _, p := range in.Suppliers {
		suppliers = append(suppliers, Supplier{
			CompanyStructure: partnerStructure(p),
			SupplierID:       p.ReportingID(),
			AccountID:        p.Number,
			BalancePair:      balancePair(in.PartnerBalances[p.ID]),
		})
	}
	return suppliers
}

func partnerStructure(p masterdata.BusinessPartner) CompanyStructure {
	cs := CompanyStructure{
		RegistrationNumber: p.TaxID,
		Address: Address{
			StreetName:  p.Street,
			City:        p.City,
			PostalCode:  p.PostalCode,
			Country:     firstNonEmpty(p.Country, "BG"),
			AddressType: "StreetAddress",
		},
		Contact: Contact{
			Telephone: p.Phone,
			Fax:       p.Fax,
			Email:     p.Email,
			Website:   p.Website,
		},
	}
	if hasNonASCII(p.Name) {
		cs.Name = &p.Name
	} else {
		cs.NameLatin = &p.Name
	}
	return cs
}

// balancePair projects a normalized balance onto the single side pair
// the schema allows per row: the closing side wins, a zero closing
// renders the debit pair.
func balancePair(bal ledger.Balance) BalancePair {
	if bal.ClosingCredit.IsPositive() {
		return BalancePair{
			OpeningCreditBalance: amountString(bal.OpeningCredit),
			ClosingCreditBalance: amountString(bal.ClosingCredit),
		}
	}
	return BalancePair{
		OpeningDebitBalance: amountString(bal.OpeningDebit),
		ClosingDebitBalance: amountString(bal.ClosingDebit),
	}
}

func (b *Builder) buildEntries(journals []erp.Journal) GeneralLedgerEntries {
	var entries []JournalEntry
	totalDebit := decimal.Zero
	totalCredit := decimal.Zero

	txnNo := 0
	for _, j := range journals {
		// Journals without lines carry no postings to report.
		if len(j.Lines) == 0 {
			continue
		}
		txnNo++
		txnID := fmt.Sprintf("T%08d", txnNo)

		period, periodYear := splitPeriod(j.Period)
		txn := Transaction{
			TransactionID:   txnID,
			Period:          period,
			PeriodYear:      periodYear,
			TransactionDate: dateString(j.Date),
			SourceID:        "0",
			TransactionType: firstNonEmpty(j.Type, "Normal"),
			Description:     j.Reference,
			BatchID:         "0",
			SystemEntryDate: dateString(j.Date),
			GLPostingDate:   dateString(j.Date),
			CustomerID:      "0",
			SupplierID:      "0",
			SystemID:        "0",
		}

		for i, line := range j.Lines {
			value := parseDecimal(line.Value)
			var debit, credit decimal.Decimal
			switch line.LineType {
			case "Debit":
				debit = value
			case "Credit":
				credit = value
			}
			totalDebit = totalDebit.Add(debit)
			totalCredit = totalCredit.Add(credit)

			accountID := firstNonEmpty(line.GLAccountCode, line.GLAccountID)
			tl := TransactionLine{
				RecordID:          fmt.Sprintf("%s-L%04d", txnID, i+1),
				AccountID:         accountID,
				TaxpayerAccountID: accountID,
				CustomerID:        "0",
				SupplierID:        "0",
				Description:       line.Description,
				TaxInformation:    zeroTaxInformation(b.cfg.LineCurrency),
			}
			// The schema wants exactly one of DebitAmount and
			// CreditAmount; zero-value lines render a zero debit.
			if credit.IsPositive() && !debit.IsPositive() {
				tl.CreditAmount = currencyAmount(credit, b.cfg.LineCurrency)
			} else {
				tl.DebitAmount = currencyAmount(debit, b.cfg.LineCurrency)
			}
			txn.Lines = append(txn.Lines, tl)
		}

		entries = append(entries, JournalEntry{
			JournalID:   "GL",
			Description: firstNonEmpty(j.Reference, "General Ledger"),
			Type:        "GLEntry",
			Transaction: txn,
		})
	}

	return GeneralLedgerEntries{
		NumberOfEntries: strconv.Itoa(len(entries)),
		TotalDebit:      totalDebit.StringFixed(2),
		TotalCredit:     totalCredit.StringFixed(2),
		Journals:        entries,
	}
}

// defaultTaxTable carries the static standard VAT rate entry; rate
// lookup against the ERP is out of scope for the balance report.
func defaultTaxTable() TaxTable {
	return TaxTable{Entries: []TaxTableEntry{{
		TaxType:       "ДДС",
		TaxCode:       "STD",
		TaxPercentage: "20.00",
		Description:   "Стандартна ставка на ДДС",
	}}}
}

func defaultUOMTable() UOMTable {
	return UOMTable{Entries: []UOMTableEntry{{
		UnitOfMeasure: "HUR",
		Description:   "Часове",
	}}}
}

func currencyAmount(v decimal.Decimal, currency string) *CurrencyAmount {
	s := v.StringFixed(2)
	return &CurrencyAmount{
		Amount:         s,
		CurrencyCode:   currency,
		CurrencyAmount: s,
		ExchangeRate:   "1.0000",
	}
}

func zeroTaxInformation(currency string) TaxInformation {
	return TaxInformation{
		TaxPercentage: "0",
		TaxBase:       "0.00",
		TaxAmount: CurrencyAmount{
			Amount:         "0.00",
			CurrencyCode:   currency,
			CurrencyAmount: "0.00",
			ExchangeRate:   "1.0000",
		},
	}
}

// splitPeriod renders a period tag as month number plus year; tags
// the kernel cannot parse pass through verbatim.
func splitPeriod(tag string) (string, string) {
	key, err := ledger.ParsePeriodKey(tag)
	if err != nil {
		return tag, ""
	}
	return strconv.Itoa(key.Number()), strconv.Itoa(key.Year())
}

func amountString(v decimal.Decimal) *string {
	s := v.StringFixed(2)
	return &s
}

func parseDecimal(raw string) decimal.Decimal {
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero
	}
	return v
}

func dateString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func hasNonASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return true
		}
	}
	return false
}

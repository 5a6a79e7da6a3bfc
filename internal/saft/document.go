// Package saft renders the monthly SAF-T audit file mandated by the
// Bulgarian revenue agency from consolidated balances, master data
// and journal entries.
package saft

import "encoding/xml"

// Namespace is the Bulgarian SAF-T declaration namespace.
const Namespace = "mf:nra:dgti:dxxxx:declaration:v1"

// AuditFile is the document root. Section order follows the schema
// sequence: header, monthly master files, ledger entries, monthly
// source documents.
type AuditFile struct {
	XMLName xml.Name `xml:"AuditFile"`
	XMLNS   string   `xml:"xmlns,attr"`

	Header                 Header                 `xml:"Header"`
	MasterFilesMonthly     MasterFilesMonthly     `xml:"MasterFilesMonthly"`
	GeneralLedgerEntries   GeneralLedgerEntries   `xml:"GeneralLedgerEntries"`
	SourceDocumentsMonthly SourceDocumentsMonthly `xml:"SourceDocumentsMonthly"`
}

type Header struct {
	AuditFileVersion     string            `xml:"AuditFileVersion"`
	AuditFileCountry     string            `xml:"AuditFileCountry"`
	AuditFileDateCreated string            `xml:"AuditFileDateCreated"`
	SoftwareCompanyName  string            `xml:"SoftwareCompanyName"`
	SoftwareID           string            `xml:"SoftwareID"`
	SoftwareVersion      string            `xml:"SoftwareVersion"`
	Company              HeaderCompany     `xml:"Company"`
	Ownership            Ownership         `xml:"Ownership"`
	DefaultCurrencyCode  string            `xml:"DefaultCurrencyCode"`
	SelectionCriteria    SelectionCriteria `xml:"SelectionCriteria"`
	// HeaderComment marks the file kind: M monthly, A annual, D on
	// demand.
	HeaderComment      string `xml:"HeaderComment"`
	TaxAccountingBasis string `xml:"TaxAccountingBasis"`
	TaxEntity          string `xml:"TaxEntity"`
}

type HeaderCompany struct {
	RegistrationNumber string           `xml:"RegistrationNumber"`
	Name               string           `xml:"Name"`
	Address            Address          `xml:"Address"`
	Contact            Contact          `xml:"Contact"`
	TaxRegistration    *TaxRegistration `xml:"TaxRegistration,omitempty"`
	BankAccount        BankAccount      `xml:"BankAccount"`
}

type Address struct {
	StreetName              string `xml:"StreetName"`
	Number                  string `xml:"Number"`
	AdditionalAddressDetail string `xml:"AdditionalAddressDetail"`
	Building                string `xml:"Building"`
	City                    string `xml:"City"`
	PostalCode              string `xml:"PostalCode"`
	Region                  string `xml:"Region"`
	Country                 string `xml:"Country"`
	AddressType             string `xml:"AddressType"`
}

type Contact struct {
	Telephone string `xml:"Telephone"`
	Fax       string `xml:"Fax"`
	Email     string `xml:"Email"`
	Website   string `xml:"Website"`
}

type TaxRegistration struct {
	TaxRegistrationNumber string `xml:"TaxRegistrationNumber"`
	TaxType               string `xml:"TaxType"`
	TaxNumber             string `xml:"TaxNumber"`
}

type BankAccount struct {
	IBANNumber string `xml:"IBANNumber"`
}

type Ownership struct {
	// IsPartOfGroup: 1 standalone, 2 parent, 3 subsidiary, 4 branch,
	// 5 other.
	IsPartOfGroup               string `xml:"IsPartOfGroup"`
	UltimateOwnerNameCyrillicBG string `xml:"UltimateOwnerNameCyrillicBG"`
	UltimateOwnerUICBG          string `xml:"UltimateOwnerUICBG"`
}

// SelectionCriteria carries the reporting window as month numbers and
// years rather than dates.
type SelectionCriteria struct {
	PeriodStart     string `xml:"PeriodStart"`
	PeriodStartYear string `xml:"PeriodStartYear"`
	PeriodEnd       string `xml:"PeriodEnd"`
	PeriodEndYear   string `xml:"PeriodEndYear"`
}

type MasterFilesMonthly struct {
	GeneralLedgerAccounts GeneralLedgerAccounts `xml:"GeneralLedgerAccounts"`
	Customers             Customers             `xml:"Customers"`
	Suppliers             Suppliers             `xml:"Suppliers"`
	TaxTable              TaxTable              `xml:"TaxTable"`
	UOMTable              UOMTable              `xml:"UOMTable"`
	Products              Products              `xml:"Products"`
}

type GeneralLedgerAccounts struct {
	Accounts []Account `xml:"Account"`
}

type Customers struct {
	Customers []Customer `xml:"Customer"`
}

type Suppliers struct {
	Suppliers []Supplier `xml:"Supplier"`
}

// BalancePair renders exactly one side of an opening/closing balance
// pair; the schema forbids mixing debit and credit elements on one
// row.
type BalancePair struct {
	OpeningDebitBalance  *string `xml:"OpeningDebitBalance,omitempty"`
	OpeningCreditBalance *string `xml:"OpeningCreditBalance,omitempty"`
	ClosingDebitBalance  *string `xml:"ClosingDebitBalance,omitempty"`
	ClosingCreditBalance *string `xml:"ClosingCreditBalance,omitempty"`
}

type Account struct {
	AccountID           string `xml:"AccountID"`
	AccountDescription  string `xml:"AccountDescription"`
	TaxpayerAccountID   string `xml:"TaxpayerAccountID"`
	AccountType         string `xml:"AccountType"`
	AccountCreationDate string `xml:"AccountCreationDate"`
	BalancePair
}

// PartyName renders a partner name as Name for Cyrillic text and
// NameLatin otherwise.
type PartyName struct {
	Name      *string `xml:"Name,omitempty"`
	NameLatin *string `xml:"NameLatin,omitempty"`
}

type CompanyStructure struct {
	RegistrationNumber string `xml:"RegistrationNumber"`
	PartyName
	Address Address `xml:"Address"`
	Contact Contact `xml:"Contact"`
}

type Customer struct {
	CompanyStructure CompanyStructure `xml:"CompanyStructure"`
	CustomerID       string           `xml:"CustomerID"`
	AccountID        string           `xml:"AccountID"`
	BalancePair
}

type Supplier struct {
	CompanyStructure CompanyStructure `xml:"CompanyStructure"`
	SupplierID       string           `xml:"SupplierID"`
	AccountID        string           `xml:"AccountID"`
	BalancePair
}

type TaxTable struct {
	Entries []TaxTableEntry `xml:"TaxTableEntry"`
}

type TaxTableEntry struct {
	TaxType       string `xml:"TaxType"`
	TaxCode       string `xml:"TaxCode"`
	TaxPercentage string `xml:"TaxPercentage"`
	Description   string `xml:"Description,omitempty"`
}

type UOMTable struct {
	Entries []UOMTableEntry `xml:"UOMTableEntry"`
}

type UOMTableEntry struct {
	UnitOfMeasure string `xml:"UnitOfMeasure"`
	Description   string `xml:"Description"`
}

// Products stays empty: product master data is not part of the
// balance report.
type Products struct{}

type GeneralLedgerEntries struct {
	NumberOfEntries string         `xml:"NumberOfEntries"`
	TotalDebit      string         `xml:"TotalDebit"`
	TotalCredit     string         `xml:"TotalCredit"`
	Journals        []JournalEntry `xml:"Journal"`
}

type JournalEntry struct {
	JournalID   string      `xml:"JournalID"`
	Description string      `xml:"Description"`
	Type        string      `xml:"Type"`
	Transaction Transaction `xml:"Transaction"`
}

type Transaction struct {
	TransactionID   string            `xml:"TransactionID"`
	Period          string            `xml:"Period"`
	PeriodYear      string            `xml:"PeriodYear"`
	TransactionDate string            `xml:"TransactionDate"`
	SourceID        string            `xml:"SourceID"`
	TransactionType string            `xml:"TransactionType"`
	Description     string            `xml:"Description"`
	BatchID         string            `xml:"BatchID"`
	SystemEntryDate string            `xml:"SystemEntryDate"`
	GLPostingDate   string            `xml:"GLPostingDate"`
	CustomerID      string            `xml:"CustomerID"`
	SupplierID      string            `xml:"SupplierID"`
	SystemID        string            `xml:"SystemID"`
	Lines           []TransactionLine `xml:"TransactionLine"`
}

type TransactionLine struct {
	RecordID          string          `xml:"RecordID"`
	AccountID         string          `xml:"AccountID"`
	TaxpayerAccountID string          `xml:"TaxpayerAccountID"`
	ValueDate         string          `xml:"ValueDate,omitempty"`
	SourceDocumentID  string          `xml:"SourceDocumentID,omitempty"`
	CustomerID        string          `xml:"CustomerID"`
	SupplierID        string          `xml:"SupplierID"`
	Description       string          `xml:"Description,omitempty"`
	DebitAmount       *CurrencyAmount `xml:"DebitAmount,omitempty"`
	CreditAmount      *CurrencyAmount `xml:"CreditAmount,omitempty"`
	TaxInformation    TaxInformation  `xml:"TaxInformation"`
}

type CurrencyAmount struct {
	Amount         string `xml:"Amount"`
	CurrencyCode   string `xml:"CurrencyCode"`
	CurrencyAmount string `xml:"CurrencyAmount"`
	ExchangeRate   string `xml:"ExchangeRate,omitempty"`
}

type TaxInformation struct {
	TaxType              string         `xml:"TaxType"`
	TaxCode              string         `xml:"TaxCode"`
	TaxPercentage        string         `xml:"TaxPercentage"`
	TaxBase              string         `xml:"TaxBase"`
	TaxBaseDescription   string         `xml:"TaxBaseDescription"`
	TaxAmount            CurrencyAmount `xml:"TaxAmount"`
	TaxExemptionReason   string         `xml:"TaxExemptionReason"`
	TaxDeclarationPeriod string         `xml:"TaxDeclarationPeriod"`
}

// SourceDocumentsMonthly stays empty: invoice and payment document
// transformation is out of scope for the balance report.
type SourceDocumentsMonthly struct{}

package masterdata

import (
	"sort"
	"strings"
)

// GLAccount is one chart-of-accounts entity as delivered by the source
// system.
type GLAccount struct {
	ID            string
	ReportingCode string
	Name          string
	NameLatin     string
	Type          string
}

// ReportingID returns the identifier used on report rows: the
// reporting code when assigned, the account name otherwise.
func (a GLAccount) ReportingID() string {
	if a.ReportingCode != "" {
		return a.ReportingCode
	}
	return a.Name
}

// CodesByID maps account ids to their chart codes, the lookup the
// account-class filter needs to confine sub-ledger balances to one
// account family.
func CodesByID(accounts []GLAccount) map[string]string {
	codes := make(map[string]string, len(accounts))
	for _, account := range accounts {
		if account.ID == "" {
			continue
		}
		codes[account.ID] = account.ReportingID()
	}
	return codes
}

// SortAccounts orders accounts by reporting identifier for stable
// report rendering.
func SortAccounts(accounts []GLAccount) {
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].ReportingID() < accounts[j].ReportingID()
	})
}

// BusinessPartner is a customer/supplier sub-ledger entity.
type BusinessPartner struct {
	ID         string
	Number     string
	Name       string
	NameLatin  string
	TaxID      string
	Type       string
	Phone      string
	Fax        string
	Email      string
	Website    string
	Street     string
	City       string
	PostalCode string
	Country    string
}

// ReportingID returns the identifier used on report rows: the account
// number when assigned, the source id otherwise.
func (p BusinessPartner) ReportingID() string {
	if p.Number != "" {
		return p.Number
	}
	return p.ID
}

// PartnerRole names the reporting side a partner belongs to.
type PartnerRole string

const (
	RoleCustomer PartnerRole = "CUSTOMER"
	RoleSupplier PartnerRole = "SUPPLIER"
)

// DefaultSupplierTypes lists the partner types treated as suppliers
// when a profile does not override the set.
var DefaultSupplierTypes = []string{"Subco", "Partner"}

// Classifier splits business partners into customers and suppliers.
// Partners whose type appears in the supplier set report as suppliers;
// everyone else reports as a customer. Matching ignores case and
// surrounding whitespace.
type Classifier struct {
	supplierTypes map[string]struct{}
}

// NewClassifier builds a classifier for the given supplier type set.
// An empty set falls back to DefaultSupplierTypes.
func NewClassifier(supplierTypes []string) Classifier {
	if len(supplierTypes) == 0 {
		supplierTypes = DefaultSupplierTypes
	}
	set := make(map[string]struct{}, len(supplierTypes))
	for _, t := range supplierTypes {
		set[normalizeType(t)] = struct{}{}
	}
	return Classifier{supplierTypes: set}
}

// Role reports which side of the report a partner belongs to.
func (c Classifier) Role(partner BusinessPartner) PartnerRole {
	if _, ok := c.supplierTypes[normalizeType(partner.Type)]; ok {
		return RoleSupplier
	}
	return RoleCustomer
}

// Split partitions partners into customers and suppliers, each sorted
// by reporting identifier.
func (c Classifier) Split(partners []BusinessPartner) (customers, suppliers []BusinessPartner) {
	for _, partner := range partners {
		if c.Role(partner) == RoleSupplier {
			suppliers = append(suppliers, partner)
		} else {
			customers = append(customers, partner)
		}
	}
	sortPartners(customers)
	sortPartners(suppliers)
	return customers, suppliers
}

func sortPartners(partners []BusinessPartner) {
	sort.Slice(partners, func(i, j int) bool {
		return partners[i].ReportingID() < partners[j].ReportingID()
	})
}

func normalizeType(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

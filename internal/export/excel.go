package export

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/saftbridge/saftbridge/internal/erp"
	"github.com/saftbridge/saftbridge/internal/ledger"
	"github.com/saftbridge/saftbridge/internal/masterdata"
)

// Workbook bundles everything the spreadsheet export renders: the raw
// extracted sections plus the computed balances.
type Workbook struct {
	Dataset         *erp.Dataset
	Window          ledger.PeriodWindow
	GeneratedAt     time.Time
	Customers       []masterdata.BusinessPartner
	Suppliers       []masterdata.BusinessPartner
	AccountBalances map[string]ledger.Balance
	PartnerBalances map[string]ledger.Balance
	Stats           ledger.RunStats
}

// WriteWorkbook writes the review spreadsheet: one sheet per extracted
// section plus the computed balance sheets auditors reconcile against
// the XML.
func WriteWorkbook(path string, wb Workbook) error {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("export: workbook style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", "Summary"); err != nil {
		return fmt.Errorf("export: rename summary sheet: %w", err)
	}
	if err := fillSheet(f, bold, "Summary", []string{"Field", "Value"}, summaryRows(wb)); err != nil {
		return err
	}

	if err := writeSheet(f, bold, "GL Accounts", []string{"ID", "Reporting Code", "Name", "Type"}, accountRows(wb.Dataset.Accounts)); err != nil {
		return err
	}
	if err := writeSheet(f, bold, "GL Balances", balanceHeader("Account", "Name"), accountBalanceRows(wb)); err != nil {
		return err
	}
	if err := writeSheet(f, bold, "Customers", partnerHeader(), partnerRows(wb.Customers)); err != nil {
		return err
	}
	if err := writeSheet(f, bold, "Suppliers", partnerHeader(), partnerRows(wb.Suppliers)); err != nil {
		return err
	}
	if err := writeSheet(f, bold, "Partner Balances", balanceHeader("Role", "Number", "Name"), partnerBalanceRows(wb)); err != nil {
		return err
	}
	if err := writeSheet(f, bold, "Journals", []string{"Name", "Date", "Period", "Type", "Status", "Reference", "Lines"}, journalRows(wb.Dataset.Journals)); err != nil {
		return err
	}
	if err := writeSheet(f, bold, "Journal Lines", []string{"Journal", "Account", "Line Type", "Value", "Description"}, journalLineRows(wb.Dataset.Journals)); err != nil {
		return err
	}
	if err := writeLinesSheet(f, bold, wb.Dataset.Lines); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("export: save workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, style int, name string, header []string, rows [][]any) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("export: add sheet %s: %w", name, err)
	}
	return fillSheet(f, style, name, header, rows)
}

func fillSheet(f *excelize.File, style int, name string, header []string, rows [][]any) error {
	head := make([]any, len(header))
	widths := make([]int, len(header))
	for i, h := range header {
		head[i] = h
		widths[i] = utf8.RuneCountInString(h)
	}
	if err := f.SetSheetRow(name, "A1", &head); err != nil {
		return fmt.Errorf("export: sheet %s header: %w", name, err)
	}
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("export: sheet %s: %w", name, err)
		}
		if err := f.SetSheetRow(name, cell, &rows[i]); err != nil {
			return fmt.Errorf("export: sheet %s row %d: %w", name, i+2, err)
		}
		for j, v := range rows[i] {
			if j < len(widths) {
				if n := utf8.RuneCountInString(fmt.Sprint(v)); n > widths[j] {
					widths[j] = n
				}
			}
		}
	}

	last, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return fmt.Errorf("export: sheet %s: %w", name, err)
	}
	if err := f.SetCellStyle(name, "A1", last+"1", style); err != nil {
		return fmt.Errorf("export: sheet %s header style: %w", name, err)
	}
	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("export: sheet %s: %w", name, err)
		}
		if err := f.SetColWidth(name, col, col, columnWidth(w)); err != nil {
			return fmt.Errorf("export: sheet %s column width: %w", name, err)
		}
	}
	return nil
}

// writeLinesSheet streams the transaction lines; the section routinely
// carries hundreds of thousands of rows.
func writeLinesSheet(f *excelize.File, style int, lines []ledger.LedgerLine) error {
	const name = "Transaction Lines"
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("export: add sheet %s: %w", name, err)
	}
	sw, err := f.NewStreamWriter(name)
	if err != nil {
		return fmt.Errorf("export: stream sheet %s: %w", name, err)
	}
	header := []any{
		excelize.Cell{StyleID: style, Value: "GL Account"},
		excelize.Cell{StyleID: style, Value: "Partner"},
		excelize.Cell{StyleID: style, Value: "Period"},
		excelize.Cell{StyleID: style, Value: "Date"},
		excelize.Cell{StyleID: style, Value: "Signed Amount"},
		excelize.Cell{StyleID: style, Value: "Debit"},
		excelize.Cell{StyleID: style, Value: "Credit"},
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("export: sheet %s header: %w", name, err)
	}
	for i, line := range lines {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("export: sheet %s: %w", name, err)
		}
		date := ""
		if !line.TransactionDate.IsZero() {
			date = line.TransactionDate.Format(time.DateOnly)
		}
		row := []any{line.GLAccountID, line.PartnerID, line.Period, date, line.SignedAmount, line.Debit, line.Credit}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("export: sheet %s row %d: %w", name, i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("export: flush sheet %s: %w", name, err)
	}
	return nil
}

func columnWidth(chars int) float64 {
	w := float64(chars) + 2
	if w < 10 {
		w = 10
	}
	if w > 60 {
		w = 60
	}
	return w
}

func summaryRows(wb Workbook) [][]any {
	return [][]any{
		{"Generated At", wb.GeneratedAt.Format(time.RFC3339)},
		{"Period Start", wb.Window.Start.Label()},
		{"Period End", wb.Window.End.Label()},
		{"Company", wb.Dataset.Company.Name},
		{"Lines Processed", wb.Stats.Processed},
		{"Lines Skipped", wb.Stats.TotalSkipped()},
		{"Malformed Amounts", wb.Stats.MalformedAmounts},
		{"GL Accounts", len(wb.Dataset.Accounts)},
		{"Customers", len(wb.Customers)},
		{"Suppliers", len(wb.Suppliers)},
		{"Journals", len(wb.Dataset.Journals)},
		{"Transaction Lines", len(wb.Dataset.Lines)},
	}
}

func balanceHeader(lead ...string) []string {
	return append(lead, "Opening Debit", "Opening Credit", "Closing Debit", "Closing Credit")
}

func balanceCells(bal ledger.Balance) []any {
	return []any{
		bal.OpeningDebit.StringFixed(2),
		bal.OpeningCredit.StringFixed(2),
		bal.ClosingDebit.StringFixed(2),
		bal.ClosingCredit.StringFixed(2),
	}
}

func accountRows(accounts []masterdata.GLAccount) [][]any {
	rows := make([][]any, 0, len(accounts))
	for _, a := range accounts {
		rows = append(rows, []any{a.ID, a.ReportingCode, a.Name, a.Type})
	}
	return rows
}

func accountBalanceRows(wb Workbook) [][]any {
	rows := make([][]any, 0, len(wb.Dataset.Accounts))
	for _, a := range wb.Dataset.Accounts {
		row := []any{a.ReportingID(), a.Name}
		rows = append(rows, append(row, balanceCells(wb.AccountBalances[a.ID])...))
	}
	return rows
}

func partnerHeader() []string {
	return []string{"Number", "Name", "Tax ID", "Type", "City", "Country"}
}

func partnerRows(partners []masterdata.BusinessPartner) [][]any {
	rows := make([][]any, 0, len(partners))
	for _, p := range partners {
		rows = append(rows, []any{p.ReportingID(), p.Name, p.TaxID, p.Type, p.City, p.Country})
	}
	return rows
}

func partnerBalanceRows(wb Workbook) [][]any {
	rows := make([][]any, 0, len(wb.Customers)+len(wb.Suppliers))
	add := func(role masterdata.PartnerRole, partners []masterdata.BusinessPartner) {
		for _, p := range partners {
			row := []any{string(role), p.ReportingID(), p.Name}
			rows = append(rows, append(row, balanceCells(wb.PartnerBalances[p.ID])...))
		}
	}
	add(masterdata.RoleCustomer, wb.Customers)
	add(masterdata.RoleSupplier, wb.Suppliers)
	return rows
}

func journalRows(journals []erp.Journal) [][]any {
	rows := make([][]any, 0, len(journals))
	for _, j := range journals {
		date := ""
		if !j.Date.IsZero() {
			date = j.Date.Format(time.DateOnly)
		}
		rows = append(rows, []any{j.Name, date, j.Period, j.Type, j.Status, j.Reference, len(j.Lines)})
	}
	return rows
}

func journalLineRows(journals []erp.Journal) [][]any {
	var rows [][]any
	for _, j := range journals {
		for _, line := range j.Lines {
			account := line.GLAccountCode
			if account == "" {
				account = line.GLAccountID
			}
			rows = append(rows, []any{j.Name, account, line.LineType, line.Value, line.Description})
		}
	}
	return rows
}

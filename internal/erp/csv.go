package erp

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// newCharsetReader wraps r with a decoder for the named source
// charset. Bulk CSV payloads from Bulgarian tenants commonly arrive
// as windows-1251.
func newCharsetReader(charset string, r io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", "utf-8", "utf8":
		return r, nil
	case "windows-1251", "cp1251":
		return transform.NewReader(r, charmap.Windows1251.NewDecoder()), nil
	default:
		return nil, fmt.Errorf("erp: unsupported source charset %q", charset)
	}
}

// readRecords parses one CSV result page into Records. The first row
// names the columns; relationship columns keep their dotted form.
func readRecords(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	// Ragged rows surface as empty columns; numeric gaps are counted
	// later by the balance pass rather than killing the download.
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("erp: read csv header: %w", err)
	}
	columns := make([]string, len(header))
	copy(columns, header)

	var records []Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("erp: read csv row: %w", err)
		}

		rec := make(Record, len(columns))
		for i, name := range columns {
			if i < len(row) {
				rec[name] = row[i]
			}
		}
		records = append(records, rec)
	}
}

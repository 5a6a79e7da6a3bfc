// Package erp talks to the finance-cloud ERP that owns the ledger.
// It authenticates with client credentials, runs bulk query jobs for
// the large transaction-line extraction and paginated REST queries
// for reference collections, and maps result rows onto typed domain
// structs exactly once at ingestion.
package erp

import (
	"errors"
	"sort"
	"strconv"
)

var (
	ErrUnauthorized = errors.New("erp: unauthorized")
	ErrJobFailed    = errors.New("erp: bulk job failed")
	ErrJobAborted   = errors.New("erp: bulk job aborted")
	ErrJobTimeout   = errors.New("erp: bulk job timed out")
)

// Record is one extracted row. Relationship fields are flattened into
// dotted keys ("Transaction.Period.Name"), matching the column names
// bulk CSV results already use.
type Record map[string]string

// Get returns the value for key, or "" when the column is absent.
func (r Record) Get(key string) string { return r[key] }

// Keys returns the column names in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// flattenInto copies src into dst, descending into nested objects with
// a dotted prefix. The "attributes" metadata object the REST API
// attaches to every record is dropped.
func flattenInto(dst Record, prefix string, src map[string]any) {
	for key, value := range src {
		if key == "attributes" {
			continue
		}
		name := key
		if prefix != "" {
			name = prefix + "." + key
		}
		switch v := value.(type) {
		case nil:
			dst[name] = ""
		case string:
			dst[name] = v
		case bool:
			dst[name] = strconv.FormatBool(v)
		case float64:
			dst[name] = strconv.FormatFloat(v, 'f', -1, 64)
		case map[string]any:
			flattenInto(dst, name, v)
		default:
			// Arrays and anything exotic have no column form; skip.
		}
	}
}

func recordFromObject(src map[string]any) Record {
	rec := make(Record, len(src))
	flattenInto(rec, "", src)
	return rec
}

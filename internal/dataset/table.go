// Package dataset provides read-only, load-once access to the imported
// interaction table.
package dataset

import (
	"sort"

	"github.com/kalambet/offerjourney/internal/journey"
	"github.com/kalambet/offerjourney/internal/storage"
)

// Table is an immutable index of interaction records by customer key.
// It is safe for concurrent use.
type Table struct {
	keys    []int64
	byKey   map[int64][]storage.InteractionRecord
	numRows int
}

// NewTable indexes records. Rows of each customer are ordered by date;
// equal dates keep their input order.
func NewTable(records []storage.InteractionRecord) *Table {
	t := &Table{byKey: make(map[int64][]storage.InteractionRecord), numRows: len(records)}
	for _, r := range records {
		if _, ok := t.byKey[r.LoanID]; !ok {
			t.keys = append(t.keys, r.LoanID)
		}
		t.byKey[r.LoanID] = append(t.byKey[r.LoanID], r)
	}
	sort.Slice(t.keys, func(i, j int) bool { return t.keys[i] < t.keys[j] })
	for _, rows := range t.byKey {
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].SessionDate.Before(rows[j].SessionDate)
		})
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int { return t.numRows }

// CustomerKeys returns every customer key in ascending order.
func (t *Table) CustomerKeys() []int64 {
	out := make([]int64, len(t.keys))
	copy(out, t.keys)
	return out
}

// History returns the customer's interaction rows. Unknown keys yield nil.
func (t *Table) History(key int64) []journey.InteractionRow {
	rows := t.byKey[key]
	if len(rows) == 0 {
		return nil
	}
	out := make([]journey.InteractionRow, len(rows))
	for i, r := range rows {
		out[i] = journey.InteractionRow{
			Date:      r.SessionDate,
			Offer:     r.Offer.String,
			Channel:   r.Service.String,
			Converted: r.Converted,
		}
	}
	return out
}

// Customer returns the profile from the customer's earliest row, or the
// default profile for unknown keys.
func (t *Table) Customer(key int64) Customer {
	rows := t.byKey[key]
	if len(rows) == 0 {
		return DefaultCustomer(key)
	}
	return customerFrom(rows[0])
}

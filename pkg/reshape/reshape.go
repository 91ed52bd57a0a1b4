// Package reshape converts observation sequences between long (tidy) and
// wide (one column per indicator) tabular layouts.
package reshape

import (
	"github.com/jpazvd/wb-api-repo/pkg/normalize"
)

// Table is an ordered sequence of uniform-schema rows, the hand-off format
// for output writers. Cell values are string, float64 or nil.
type Table struct {
	Columns []string
	Rows    [][]any
}

// WideRow is one row of a wide table: a (country, date) key plus one value
// per indicator column.
type WideRow struct {
	CountryCode string
	CountryName string
	Date        string
	Values      map[string]*float64
}

// WideTable keys rows by (country, date) with one column per indicator.
type WideTable struct {
	// Indicators lists the value columns in first-seen input order.
	Indicators []string
	// Rows are ordered by first appearance of their (country, date) key.
	Rows []WideRow
}

// Long renders observations as a long-format table, one row per
// (country, indicator, date) triple. Duplicates pass through unchanged.
func Long(obs []normalize.Observation) Table {
	t := Table{Columns: normalize.ObservationColumns}
	t.Rows = make([][]any, 0, len(obs))
	for _, o := range obs {
		t.Rows = append(t.Rows, []any{o.CountryCode, o.CountryName, o.Indicator, o.Date, cell(o.Value)})
	}
	return t
}

// ToWide pivots observations into wide form. Row order is the first-seen
// order of (country, date) keys and column order the first-seen order of
// indicator codes; neither is sorted. A (country, date) key missing an
// indicator gets nil for that column. When duplicate
// (country, indicator, date) triples occur, the later observation wins.
func ToWide(obs []normalize.Observation) WideTable {
	var w WideTable
	seenInd := make(map[string]struct{})
	rowIndex := make(map[[2]string]int)

	for _, o := range obs {
		if _, ok := seenInd[o.Indicator]; !ok {
			seenInd[o.Indicator] = struct{}{}
			w.Indicators = append(w.Indicators, o.Indicator)
		}

		key := [2]string{o.CountryCode, o.Date}
		idx, ok := rowIndex[key]
		if !ok {
			idx = len(w.Rows)
			rowIndex[key] = idx
			w.Rows = append(w.Rows, WideRow{
				CountryCode: o.CountryCode,
				CountryName: o.CountryName,
				Date:        o.Date,
				Values:      make(map[string]*float64),
			})
		}
		w.Rows[idx].Values[o.Indicator] = o.Value
	}
	return w
}

// ToLong unpivots a wide table back into observations, one per
// (country, date, indicator) cell including nil-valued cells for indicators
// the key never reported. For duplicate-free input this round-trips with
// ToWide up to ordering.
func ToLong(w WideTable) []normalize.Observation {
	obs := make([]normalize.Observation, 0, len(w.Rows)*len(w.Indicators))
	for _, row := range w.Rows {
		for _, ind := range w.Indicators {
			obs = append(obs, normalize.Observation{
				CountryCode: row.CountryCode,
				CountryName: row.CountryName,
				Indicator:   ind,
				Date:        row.Date,
				Value:       row.Values[ind],
			})
		}
	}
	return obs
}

// Table renders the wide table for output writers.
func (w WideTable) Table() Table {
	columns := append([]string{"countryiso3code", "country", "date"}, w.Indicators...)
	rows := make([][]any, 0, len(w.Rows))
	for _, r := range w.Rows {
		row := make([]any, 0, len(columns))
		row = append(row, r.CountryCode, r.CountryName, r.Date)
		for _, ind := range w.Indicators {
			row = append(row, cell(r.Values[ind]))
		}
		rows = append(rows, row)
	}
	return Table{Columns: columns, Rows: rows}
}

func cell(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

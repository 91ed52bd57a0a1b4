// Package normalize flattens raw API records into flat, fixed-schema rows.
//
// The API nests reference fields one level deep, e.g. a country record
// carries {"region": {"id": "LCN", "value": "Latin America..."}}. Each
// resource type (country, indicator, observation) has an explicit flattening
// rule set rather than a generic recursive flattener, so row shape is
// statically known. Nested objects flatten to <parent>_id / <parent> value
// columns; absent or null nests produce nil for every expected sub-field,
// never a missing key. Flattening is pure and total: odd-shaped leaves
// normalize to nil instead of failing, and flattening an already-flat record
// is a no-op.
package normalize

import (
	"strconv"
	"strings"
)

// Row maps canonical field names to scalars (string, float64, bool or nil).
type Row map[string]any

// CountryColumns is the column order of flattened country metadata rows.
var CountryColumns = []string{
	"id", "iso2Code", "name",
	"region_id", "region",
	"adminregion_id", "adminregion",
	"incomeLevel_id", "incomeLevel",
	"lendingType_id", "lendingType",
	"capitalCity", "longitude", "latitude",
}

// IndicatorColumns is the column order of flattened indicator metadata rows.
var IndicatorColumns = []string{
	"id", "name", "unit",
	"source_id", "source",
	"source_note", "source_organization",
	"topics", "topic_ids",
}

// Country flattens one raw country record.
func Country(rec map[string]any) Row {
	return Row{
		"id":             scalar(rec["id"]),
		"iso2Code":       scalar(rec["iso2Code"]),
		"name":           scalar(rec["name"]),
		"region_id":      pick(rec, "region_id", "region", "id"),
		"region":         pick(rec, "region", "region", "value"),
		"adminregion_id": pick(rec, "adminregion_id", "adminregion", "id"),
		"adminregion":    pick(rec, "adminregion", "adminregion", "value"),
		"incomeLevel_id": pick(rec, "incomeLevel_id", "incomeLevel", "id"),
		"incomeLevel":    pick(rec, "incomeLevel", "incomeLevel", "value"),
		"lendingType_id": pick(rec, "lendingType_id", "lendingType", "id"),
		"lendingType":    pick(rec, "lendingType", "lendingType", "value"),
		"capitalCity":    scalar(rec["capitalCity"]),
		"longitude":      scalar(rec["longitude"]),
		"latitude":       scalar(rec["latitude"]),
	}
}

// Indicator flattens one raw indicator metadata record. Topic lists join
// into single ";"-delimited fields: the normalizer never changes row
// cardinality.
func Indicator(rec map[string]any) Row {
	topics, topicIDs := topicLists(rec["topics"])
	row := Row{
		"id":                  scalar(rec["id"]),
		"name":                scalar(rec["name"]),
		"unit":                scalar(rec["unit"]),
		"source_id":           pick(rec, "source_id", "source", "id"),
		"source":              pick(rec, "source", "source", "value"),
		"source_note":         scalar(rec["sourceNote"]),
		"source_organization": scalar(rec["sourceOrganization"]),
		"topics":              topics,
		"topic_ids":           topicIDs,
	}
	// Already-flat records carry these under their canonical names.
	for _, key := range []string{"source_note", "source_organization", "topic_ids"} {
		if v := scalar(rec[key]); v != nil {
			row[key] = v
		}
	}
	return row
}

// Observation is the flat form of one data point. Value nil means a missing
// observation; nulls are preserved so the date axis stays consistent when
// reshaping.
type Observation struct {
	CountryCode string
	CountryName string
	Indicator   string
	Date        string
	Value       *float64
}

// ObservationColumns is the column order of long-format observation rows.
var ObservationColumns = []string{"countryiso3code", "country", "indicator", "date", "value"}

// ObservationFrom flattens one raw data record. The fallback indicator code
// is used when the record itself does not carry one.
func ObservationFrom(rec map[string]any, fallbackIndicator string) Observation {
	indicator := str(pick(rec, "", "indicator", "id"))
	if indicator == "" {
		indicator = fallbackIndicator
	}
	return Observation{
		CountryCode: str(scalar(rec["countryiso3code"])),
		CountryName: str(pick(rec, "", "country", "value")),
		Indicator:   indicator,
		Date:        str(scalar(rec["date"])),
		Value:       numPtr(rec["value"]),
	}
}

// scalar passes scalars through and maps structured values to nil.
func scalar(v any) any {
	switch v.(type) {
	case map[string]any, []any:
		return nil
	default:
		return v
	}
}

// pick resolves a flattened column: an already-flat record wins, otherwise
// the sub-field is extracted from the nested object. A scalar in the nested
// position stands for its own value sub-field.
func pick(rec map[string]any, flatKey, parent, sub string) any {
	if flatKey != "" && flatKey != parent {
		if v, ok := rec[flatKey]; ok {
			if s := scalar(v); s != nil {
				return s
			}
		}
	}
	v, ok := rec[parent]
	if !ok || v == nil {
		return nil
	}
	if m, ok := v.(map[string]any); ok {
		return scalar(m[sub])
	}
	if sub == "value" {
		return scalar(v)
	}
	return nil
}

// topicLists joins a topic array into delimited value and id strings. A
// plain string passes through as the value list.
func topicLists(v any) (any, any) {
	switch t := v.(type) {
	case []any:
		var values, ids []string
		for _, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if s := strings.TrimSpace(str(m["value"])); s != "" {
				values = append(values, s)
			}
			if s := strings.TrimSpace(str(m["id"])); s != "" {
				ids = append(ids, s)
			}
		}
		return strings.Join(values, ";"), strings.Join(ids, ";")
	case string:
		return t, ""
	default:
		return "", ""
	}
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func numPtr(v any) *float64 {
	switch t := v.(type) {
	case float64:
		f := t
		return &f
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return &f
		}
		return nil
	default:
		return nil
	}
}

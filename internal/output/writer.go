// Package output serializes tables to CSV or YAML. The output format is
// inferred from the file extension; unknown extensions default to CSV.
package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jpazvd/wb-api-repo/pkg/reshape"
)

// Write writes the table to path, choosing the format by extension.
func Write(path string, t reshape.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}

	lower := strings.ToLower(path)
	var writeErr error
	if strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") {
		writeErr = WriteYAML(f, t)
	} else {
		writeErr = WriteCSV(f, t)
	}

	// Close can surface a deferred flush failure (full disk); losing it
	// would report success for an incomplete file.
	if err := f.Close(); err != nil && writeErr == nil {
		writeErr = fmt.Errorf("close output file: %w", err)
	}
	return writeErr
}

// WriteCSV writes the table as CSV with a header row. Nil cells render as
// empty fields.
func WriteCSV(w io.Writer, t reshape.Table) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	for _, row := range t.Rows {
		record := make([]string, 0, len(row))
		for _, cell := range row {
			record = append(record, formatCell(cell))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteYAML writes the table as a list of records, preserving column order
// within each record.
func WriteYAML(w io.Writer, t reshape.Table) error {
	doc := &yaml.Node{Kind: yaml.SequenceNode}
	for _, row := range t.Rows {
		rec := &yaml.Node{Kind: yaml.MappingNode}
		for i, col := range t.Columns {
			var value yaml.Node
			var cell any
			if i < len(row) {
				cell = row[i]
			}
			if err := value.Encode(cell); err != nil {
				return fmt.Errorf("encode cell %q: %w", col, err)
			}
			key := yaml.Node{Kind: yaml.ScalarNode, Value: col}
			rec.Content = append(rec.Content, &key, &value)
		}
		doc.Content = append(doc.Content, rec)
	}

	enc := yaml.NewEncoder(w)
	if err := enc.Encode(doc); err != nil {
		enc.Close()
		return err
	}
	// The encoder buffers; the write happens on Close.
	return enc.Close()
}

// Preview writes the first n rows as CSV, the fallback when no output path
// is given.
func Preview(w io.Writer, t reshape.Table, n int) error {
	head := t
	if len(head.Rows) > n {
		head.Rows = head.Rows[:n]
	}
	return WriteCSV(w, head)
}

func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

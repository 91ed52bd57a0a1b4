package output

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jpazvd/wb-api-repo/pkg/reshape"
)

func sampleTable() reshape.Table {
	return reshape.Table{
		Columns: []string{"countryiso3code", "country", "date", "SP.POP.TOTL"},
		Rows: [][]any{
			{"BRA", "Brazil", "2020", 213196304.0},
			{"BRA", "Brazil", "2021", nil},
			{"IND", "India, Rep.", "2020", 1396387127.0},
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleTable()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	require.Equal(t, "countryiso3code,country,date,SP.POP.TOTL", lines[0])
	require.Equal(t, "BRA,Brazil,2020,213196304", lines[1])
	require.Equal(t, "BRA,Brazil,2021,", lines[2], "nil cells render empty")
	require.Equal(t, `IND,"India, Rep.",2020,1396387127`, lines[3], "embedded commas quoted")
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf, sampleTable()))

	out := buf.String()
	require.Contains(t, out, "countryiso3code: BRA")
	require.Contains(t, out, "SP.POP.TOTL: null")
	require.Contains(t, out, "country: India, Rep.")

	// Column order preserved within each record.
	require.Less(t,
		strings.Index(out, "countryiso3code: BRA"),
		strings.Index(out, "date: \"2020\""))
}

func TestPreview_TruncatesRows(t *testing.T) {
	table := reshape.Table{Columns: []string{"n"}}
	for i := 0; i < 50; i++ {
		table.Rows = append(table.Rows, []any{float64(i)})
	}

	var buf bytes.Buffer
	require.NoError(t, Preview(&buf, table, 20))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 21, "header plus 20 rows")
	require.Len(t, table.Rows, 50, "preview must not mutate the table")
}

func TestWrite_FormatByExtension(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "out.csv")
	require.NoError(t, Write(csvPath, sampleTable()))
	raw, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(raw), "countryiso3code,"))

	yamlPath := filepath.Join(dir, "out.yaml")
	require.NoError(t, Write(yamlPath, sampleTable()))
	raw, err = os.ReadFile(yamlPath)
	require.NoError(t, err)
	require.Contains(t, string(raw), "countryiso3code: BRA")

	// Unknown extensions default to CSV.
	plainPath := filepath.Join(dir, "out.dat")
	require.NoError(t, Write(plainPath, sampleTable()))
	raw, err = os.ReadFile(plainPath)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(raw), "countryiso3code,"))
}

func TestWrite_ReportsFlushFailure(t *testing.T) {
	// Both writers buffer, so a full disk only surfaces when the buffers
	// flush at close time. /dev/full fails every write with ENOSPC.
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("requires /dev/full")
	}
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "out.yaml")
	require.NoError(t, os.Symlink("/dev/full", yamlPath))
	require.Error(t, Write(yamlPath, sampleTable()))

	csvPath := filepath.Join(dir, "out.csv")
	require.NoError(t, os.Symlink("/dev/full", csvPath))
	require.Error(t, Write(csvPath, sampleTable()))
}

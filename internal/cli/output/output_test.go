package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Format
		wantErr bool
	}{
		{name: "table", input: "table", want: FormatTable},
		{name: "empty defaults to table", input: "", want: FormatTable},
		{name: "JSON uppercase", input: "JSON", want: FormatJSON},
		{name: "yml alias", input: "yml", want: FormatYAML},
		{name: "whitespace trimmed", input: "  yaml  ", want: FormatYAML},
		{name: "invalid format", input: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type tenantRows struct {
	ids   []string
	roots []string
	sizes []string
}

func (r tenantRows) Headers() []string { return []string{"ID", "Root", "Disk Used"} }

func (r tenantRows) Rows() [][]string {
	rows := make([][]string, len(r.ids))
	for i := range r.ids {
		rows[i] = []string{r.ids[i], r.roots[i], r.sizes[i]}
	}
	return rows
}

func (r tenantRows) Data() any { return r.ids }

func (r tenantRows) Alignments() []int { return []int{AlignLeft, AlignLeft, AlignRight} }

func (r tenantRows) EmptyMessage() string { return "No tenants." }

func TestPrint(t *testing.T) {
	rows := tenantRows{
		ids:   []string{"srv-1", "srv-2"},
		roots: []string{"/srv/data/1", "/srv/data/2"},
		sizes: []string{"1.0 GiB", "12 MiB"},
	}

	t.Run("Table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Print(&buf, FormatTable, rows))
		assert.Contains(t, buf.String(), "ID")
		assert.Contains(t, buf.String(), "/srv/data")
	})

	t.Run("JSONUsesData", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Print(&buf, FormatJSON, rows))
		assert.JSONEq(t, `["srv-1","srv-2"]`, buf.String())
	})

	t.Run("YAMLUsesData", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Print(&buf, FormatYAML, rows))
		assert.Equal(t, "- srv-1\n- srv-2\n", buf.String())
	})

	t.Run("TableFallsBackToJSON", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Print(&buf, FormatTable, map[string]int{"a": 1}))
		assert.JSONEq(t, `{"a":1}`, buf.String())
	})

	t.Run("TableRightAlignsSizes", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Print(&buf, FormatTable, rows))
		lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
		require.Len(t, lines, 3)
		first := strings.TrimRight(lines[1], " ")
		second := strings.TrimRight(lines[2], " ")
		assert.True(t, strings.HasSuffix(first, "1.0 GiB"))
		assert.True(t, strings.HasSuffix(second, "12 MiB"))
		assert.Equal(t, len(first), len(second), "right-aligned cells end in the same column")
	})

	t.Run("EmptyTablePrintsMessage", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Print(&buf, FormatTable, tenantRows{}))
		assert.Equal(t, "No tenants.\n", buf.String())
	})

	t.Run("UnknownFormat", func(t *testing.T) {
		assert.Error(t, Print(&bytes.Buffer{}, Format("xml"), rows))
	})
}

func TestSimpleTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SimpleTable(&buf, [][2]string{{"Port", "2022"}, {"Tenants", "3"}}))
	assert.Contains(t, buf.String(), "Port")
	assert.Contains(t, buf.String(), "2022")
}

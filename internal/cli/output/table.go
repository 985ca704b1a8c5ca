package output

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
)

// TableRenderer is implemented by types that render as a table.
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
}

// Column alignments accepted from ColumnAligner.
const (
	AlignLeft  = tablewriter.ALIGN_LEFT
	AlignRight = tablewriter.ALIGN_RIGHT
)

// ColumnAligner lets a TableRenderer right-align numeric columns such as
// sizes and uids. Missing entries default to AlignLeft.
type ColumnAligner interface {
	Alignments() []int
}

// EmptyMessager supplies the line printed instead of a header-only table.
type EmptyMessager interface {
	EmptyMessage() string
}

func newTable(w io.Writer, separator string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator(separator)
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}

// PrintTable writes data as a borderless table.
func PrintTable(w io.Writer, data TableRenderer) error {
	rows := data.Rows()
	if len(rows) == 0 {
		if m, ok := data.(EmptyMessager); ok {
			_, err := fmt.Fprintln(w, m.EmptyMessage())
			return err
		}
	}

	headers := data.Headers()
	table := newTable(w, "")
	table.SetAutoFormatHeaders(true)
	table.SetHeader(headers)

	if a, ok := data.(ColumnAligner); ok {
		aligns := make([]int, len(headers))
		for i := range aligns {
			aligns[i] = AlignLeft
		}
		copy(aligns, a.Alignments())
		table.SetColumnAlignment(aligns)
	}

	table.AppendBulk(rows)
	table.Render()
	return nil
}

// SimpleTable prints key: value pairs, keys left as given.
func SimpleTable(w io.Writer, pairs [][2]string) error {
	table := newTable(w, ":")
	table.SetAutoFormatHeaders(false)
	for _, pair := range pairs {
		table.Append([]string{pair[0], pair[1]})
	}
	table.Render()
	return nil
}

package cmd

import (
	"io"
	"strings"
	"text/tabwriter"

	"immun/internal/dashboard"
)

// renderView prints a dashboard screen: title, feedback line and the record
// table. Link cells show their target so it can be copied.
func renderView(w io.Writer, v dashboard.View) {
	printf(w, "%s\n", v.Title)
	switch {
	case v.Feedback.IsError():
		printf(w, "Error: %s\n", v.Feedback.Message)
	case v.Feedback.IsSuccess():
		printf(w, "%s\n", v.Feedback.Message)
	}
	printf(w, "\n")
	if v.Table.Empty() {
		printf(w, "No records.\n")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := make([]string, 0, len(v.Table.Columns)+1)
	header = append(header, "ID")
	for _, col := range v.Table.Columns {
		header = append(header, string(col))
	}
	printf(tw, "%s\n", strings.Join(header, "\t"))
	for _, row := range v.Table.Rows {
		cells := make([]string, 0, len(row.Cells)+1)
		cells = append(cells, row.RecordID.String())
		for _, cell := range row.Cells {
			if cell.Href != "" {
				cells = append(cells, cell.Href)
				continue
			}
			cells = append(cells, cell.Text)
		}
		printf(tw, "%s\n", strings.Join(cells, "\t"))
	}
	_ = tw.Flush()
}

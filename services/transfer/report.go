package transfer

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

// RenderSummary prints the end-of-run report: counts per category, the
// children that could not be matched, and every per-item error.
func RenderSummary(w io.Writer, s Summary) {
	uploadedLabel := "uploaded"
	if s.DryRun || s.ReadOnly {
		uploadedLabel = "would upload"
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"category", "count"})
	t.AppendRows([]table.Row{
		{"total activities", s.Total},
		{uploadedLabel, s.Uploaded},
		{"duplicates skipped", s.Duplicates},
		{"unsupported skipped", s.Unsupported},
		{"unmatched children", len(s.Unmatched)},
		{"failed", s.Failed},
	})
	t.Render()

	if len(s.Unmatched) > 0 {
		u := table.NewWriter()
		u.SetStyle(table.StyleRounded)
		u.SetOutputMirror(w)
		u.AppendHeader(table.Row{"unmatched child", "reason", "closest destination child"})
		for _, um := range s.Unmatched {
			u.AppendRow(table.Row{
				um.Student.FirstName + " " + um.Student.LastName,
				um.Reason,
				um.Suggestion,
			})
		}
		u.Render()
	}

	for _, e := range s.Errors {
		fmt.Fprintf(
			w, "error: student=%s activity=%s kind=%s: %s\n",
			e.StudentID, e.ActivityID, e.Kind, e.Err,
		)
	}
}

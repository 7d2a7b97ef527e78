package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// table aligns rows on the command's output.
type table struct {
	w *tabwriter.Writer
}

func newTable(cmd *cobra.Command) *table {
	return &table{w: tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)}
}

func (t *table) row(cells ...any) {
	s := make([]string, len(cells))
	for i, c := range cells {
		switch v := c.(type) {
		case float64:
			s[i] = fmt.Sprintf("%.4f", v)
		default:
			s[i] = fmt.Sprint(v)
		}
	}
	fmt.Fprintln(t.w, strings.Join(s, "\t"))
}

func (t *table) flush() error {
	return t.w.Flush()
}

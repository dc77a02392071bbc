// Package ui renders command output: aligned tables for humans, JSON for
// scripts.
package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
)

// WriteTable writes rows as an aligned table with an underlined header.
func WriteTable(w io.Writer, header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(header, "\t"))

	underline := make([]string, len(header))
	for i, h := range header {
		underline[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(underline, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Money formats a rate or amount with two decimal places. A nil value means
// "not on file" and renders as a dash.
func Money(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.StringFixed(2)
}

// Hours formats a duration in seconds as decimal hours.
func Hours(seconds int64) string {
	return decimal.NewFromInt(seconds).Div(decimal.NewFromInt(3600)).StringFixed(2)
}

// FormatID renders a numeric identifier for table cells.
func FormatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// YesNo renders a boolean for table cells.
func YesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

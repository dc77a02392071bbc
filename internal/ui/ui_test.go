package ui

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestWriteTableAlignsColumns(t *testing.T) {
	var buf strings.Builder
	err := WriteTable(&buf,
		[]string{"ID", "NAME"},
		[][]string{
			{"1", "Ada Byron"},
			{"1234567", "Grace"},
		})
	if err != nil {
		t.Fatalf("WriteTable() error = %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "ID") || !strings.Contains(lines[0], "NAME") {
		t.Errorf("header = %q", lines[0])
	}
	// All names start in the same column.
	nameCol := strings.Index(lines[2], "Ada")
	if nameCol == -1 || strings.Index(lines[3], "Grace") != nameCol {
		t.Errorf("columns not aligned:\n%s", buf.String())
	}
}

func TestMoney(t *testing.T) {
	if got := Money(nil); got != "-" {
		t.Errorf("Money(nil) = %q, want -", got)
	}
	d := decimal.RequireFromString("125.5")
	if got := Money(&d); got != "125.50" {
		t.Errorf("Money(125.5) = %q, want 125.50", got)
	}
}

func TestHours(t *testing.T) {
	tests := []struct {
		seconds int64
		want    string
	}{
		{3600, "1.00"},
		{5400, "1.50"},
		{1200, "0.33"},
		{0, "0.00"},
	}
	for _, tt := range tests {
		if got := Hours(tt.seconds); got != tt.want {
			t.Errorf("Hours(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestWriteJSON(t *testing.T) {
	var buf strings.Builder
	if err := WriteJSON(&buf, map[string]int{"n": 1}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if !strings.Contains(buf.String(), `"n": 1`) {
		t.Errorf("output = %q", buf.String())
	}
}

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jizpi/arm-ledger/internal/stats"
	"github.com/jizpi/arm-ledger/internal/view"
	"github.com/jizpi/arm-ledger/internal/visit"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		max      int
		expected string
	}{
		{"short", "Ilmiy zal", 20, "Ilmiy zal"},
		{"exact", "abcde", 5, "abcde"},
		{"long", "Bo'limlarda shaxsiy va jamoaviy ish", 12, "Bo'limlar..."},
		{"multibyte", "Şahrisabz filiali", 8, "Şahri..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncate(tt.in, tt.max); got != tt.expected {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.expected)
			}
		})
	}
}

func TestPrintRecordTable(t *testing.T) {
	var buf bytes.Buffer
	recs := []visit.Record{
		{ID: "A1", FirstName: "Ali", LastName: "Valiyev", Group: "211", Department: "Energetika",
			Resource: "Ilmiy zal", Class: visit.Internal, VisitDate: "01.03.2025", Sequence: 1},
		{ID: "A2", GroupSize: 12, Group: "305", Department: "Qurilish",
			Resource: "O'quv zali", Class: visit.External, VisitDate: "01.03.2025", Sequence: 2},
	}
	if err := printRecordTable(&buf, recs); err != nil {
		t.Fatalf("print: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"DATE", "Ali Valiyev", "Team: 12 people", "Ichki", "Tashqi", "A2"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestPrintPageEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := printPage(&buf, &view.Page{Page: 1, TotalPages: 1}); err != nil {
		t.Fatalf("print: %v", err)
	}
	if buf.String() != "No visits found.\n" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestPrintHistogram(t *testing.T) {
	var buf bytes.Buffer
	printHistogram(&buf, []stats.DayCount{
		{Date: "27.02", Count: 0},
		{Date: "28.02", Count: 1},
		{Date: "01.03", Count: 60},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	if lines[0] != "  27.02  0" {
		t.Errorf("zero day = %q", lines[0])
	}
	if lines[1] != "  28.02 # 1" {
		t.Errorf("small day should still get one mark: %q", lines[1])
	}
	if want := "  01.03 " + strings.Repeat("#", histogramWidth) + " 60"; lines[2] != want {
		t.Errorf("peak day = %q, want %q", lines[2], want)
	}
}

func TestPrintStats(t *testing.T) {
	var buf bytes.Buffer
	printStats(&buf, stats.Statistics{
		Today:           "01.03.2025",
		TodayCount:      6,
		Growth:          -75,
		InternalPercent: 17,
		ExternalPercent: 83,
		MaxDay:          stats.DayCount{Date: "01.03.2025", Count: 6},
		Resources:       []stats.Share{{Name: "Ilmiy zal", Count: 6, Percent: 100}},
		MonthlyTop: []stats.MonthTop{{Month: "2025-03", Top: []stats.Ranked{
			{Rank: 1, Department: "Qurilish", Count: 5},
		}}},
	})

	out := buf.String()
	for _, want := range []string{"Today (01.03.2025):   6", "Growth:       -75%", "Busiest day:  01.03.2025 (6)", "1. Qurilish (5)"} {
		if !strings.Contains(out, want) {
			t.Errorf("stats missing %q:\n%s", want, out)
		}
	}
}

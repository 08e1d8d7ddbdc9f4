package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/jizpi/arm-ledger/internal/stats"
	"github.com/jizpi/arm-ledger/internal/view"
	"github.com/jizpi/arm-ledger/internal/visit"
)

// printJSON marshals v as indented JSON and writes it to w.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printRecordSummary prints a single record in text format.
func printRecordSummary(w io.Writer, r *visit.Record) {
	fmt.Fprintf(w, "Visit %s\n", r.ID)
	fmt.Fprintf(w, "  No:         %d\n", r.Sequence)
	fmt.Fprintf(w, "  Date:       %s\n", r.VisitDate)
	fmt.Fprintf(w, "  Visitor:    %s\n", r.DisplayName())
	fmt.Fprintf(w, "  Group:      %s\n", r.Group)
	fmt.Fprintf(w, "  Department: %s\n", r.Department)
	fmt.Fprintf(w, "  Resource:   %s\n", r.Resource)
	fmt.Fprintf(w, "  Class:      %s\n", r.Class.Label())
	if r.CreatedAt != nil {
		fmt.Fprintf(w, "  Created:    %s\n", r.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	if r.UpdatedAt != nil {
		fmt.Fprintf(w, "  Updated:    %s\n", r.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	}
}

// printRecordTable prints records as a formatted table.
func printRecordTable(w io.Writer, recs []visit.Record) error {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No visits found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "DATE\tNO\tVISITOR\tGROUP\tDEPARTMENT\tRESOURCE\tCLASS\tID"); err != nil {
		return fmt.Errorf("writing table header: %w", err)
	}
	if _, err := fmt.Fprintln(tw, "----\t--\t-------\t-----\t----------\t--------\t-----\t--"); err != nil {
		return fmt.Errorf("writing table separator: %w", err)
	}

	for i := range recs {
		r := &recs[i]
		if _, err := fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.VisitDate, r.Sequence, truncate(r.DisplayName(), 30), truncate(r.Group, 12),
			truncate(r.Department, 30), truncate(r.Resource, 28), r.Class.Label(), r.ID); err != nil {
			return fmt.Errorf("writing table row: %w", err)
		}
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flushing table: %w", err)
	}
	return nil
}

// printPage prints one page of the visit list with its position.
func printPage(w io.Writer, p *view.Page) error {
	if err := printRecordTable(w, p.Records); err != nil {
		return err
	}
	if p.TotalCount > 0 {
		fmt.Fprintf(w, "\nPage %d of %d, %d visits\n", p.Page, p.TotalPages, p.TotalCount)
	}
	return nil
}

// printStats prints the dashboard figures in text format.
func printStats(w io.Writer, s stats.Statistics) {
	fmt.Fprintf(w, "Today (%s):   %d\n", s.Today, s.TodayCount)
	fmt.Fprintf(w, "This month:   %d\n", s.MonthCount)
	fmt.Fprintf(w, "Last month:   %d\n", s.LastMonthCount)
	fmt.Fprintf(w, "Growth:       %+d%%\n", s.Growth)
	fmt.Fprintf(w, "Internal:     %d%%\n", s.InternalPercent)
	fmt.Fprintf(w, "External:     %d%%\n", s.ExternalPercent)
	fmt.Fprintf(w, "Records:      %d (%d visitors)\n", s.TotalRecords, s.TotalWeight)
	if s.MaxDay.Count > 0 {
		fmt.Fprintf(w, "Busiest day:  %s (%d)\n", s.MaxDay.Date, s.MaxDay.Count)
	}

	fmt.Fprintln(w, "\nResources:")
	for _, r := range s.Resources {
		fmt.Fprintf(w, "  %-38s %5d  %3d%%\n", r.Name, r.Count, r.Percent)
	}

	if len(s.Departments) > 0 {
		fmt.Fprintln(w, "\nDepartments:")
		for _, d := range s.Departments {
			fmt.Fprintf(w, "  %-38s %5d  %3d%%\n", truncate(d.Name, 38), d.Count, d.Percent)
		}
	}

	if len(s.Histogram) > 0 {
		fmt.Fprintln(w, "\nLast days:")
		printHistogram(w, s.Histogram)
	}

	if len(s.MonthlyTop) > 0 {
		fmt.Fprintln(w, "\nTop departments by month:")
		for _, m := range s.MonthlyTop {
			fmt.Fprintf(w, "  %s\n", m.Month)
			for _, r := range m.Top {
				fmt.Fprintf(w, "    %d. %s (%d)\n", r.Rank, r.Department, r.Count)
			}
		}
	}
}

const histogramWidth = 30

// printHistogram draws one bar per day scaled to the busiest day.
func printHistogram(w io.Writer, days []stats.DayCount) {
	peak := 0
	for _, d := range days {
		if d.Count > peak {
			peak = d.Count
		}
	}
	for _, d := range days {
		n := 0
		if peak > 0 {
			n = d.Count * histogramWidth / peak
		}
		if d.Count > 0 && n == 0 {
			n = 1
		}
		fmt.Fprintf(w, "  %s %s %d\n", d.Date, strings.Repeat("#", n), d.Count)
	}
}

// truncate shortens a string to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

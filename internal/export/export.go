// Package export writes the filtered ledger and its statistics to an
// Excel workbook.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/jizpi/arm-ledger/internal/stats"
	"github.com/jizpi/arm-ledger/internal/visit"
)

// Sheet names in the workbook.
const (
	VisitorsSheet = "Foydalanuvchilar"
	StatsSheet    = "Statistika"
)

// Row is one flattened ledger line.
type Row struct {
	Index       int    `json:"index"`
	Date        string `json:"date"`
	Sequence    int    `json:"sequence_number"`
	DisplayName string `json:"display_name"`
	Group       string `json:"group"`
	Department  string `json:"department"`
	Resource    string `json:"resource"`
	Class       string `json:"visitor_class"`
}

// Header is the visitors sheet header, in column order.
var Header = []string{"№", "Sana", "Tartib", "F.I.Sh", "Guruh", "Fakultet", "Resurs", "Turi"}

var columnWidths = []float64{6, 12, 8, 28, 14, 30, 30, 10}

// Rows flattens records in their given order, numbering from 1.
func Rows(records []visit.Record) []Row {
	out := make([]Row, len(records))
	for i := range records {
		r := &records[i]
		out[i] = Row{
			Index:       i + 1,
			Date:        r.VisitDate,
			Sequence:    r.Sequence,
			DisplayName: r.DisplayName(),
			Group:       r.Group,
			Department:  r.Department,
			Resource:    r.Resource,
			Class:       r.Class.Label(),
		}
	}
	return out
}

func (r Row) values() []any {
	return []any{r.Index, r.Date, r.Sequence, r.DisplayName, r.Group, r.Department, r.Resource, r.Class}
}

// FileName returns ARM_hisobot_<resource|hammasi>_<dd-mm-yyyy>.xlsx.
func FileName(resource string, now time.Time, loc *time.Location) string {
	if resource == "" {
		resource = "hammasi"
	}
	date := strings.ReplaceAll(visit.FormatDate(now, loc), ".", "-")
	return fmt.Sprintf("ARM_hisobot_%s_%s.xlsx", resource, date)
}

// Build creates the workbook. The caller must Close it.
func Build(rows []Row, s stats.Statistics) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(VisitorsSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("creating sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, fmt.Errorf("removing default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("creating header style: %w", err)
	}

	if err := writeVisitors(f, rows, headerStyle); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeStats(f, s, headerStyle); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// WriteXLSX builds the workbook and writes it to w.
func WriteXLSX(w io.Writer, rows []Row, s stats.Statistics) error {
	f, err := Build(rows, s)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func writeVisitors(f *excelize.File, rows []Row, headerStyle int) error {
	if err := f.SetSheetRow(VisitorsSheet, "A1", &Header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(Header), 1)
	if err != nil {
		return fmt.Errorf("converting coordinates: %w", err)
	}
	if err := f.SetCellStyle(VisitorsSheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}

	for i, width := range columnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("converting column number: %w", err)
		}
		if err := f.SetColWidth(VisitorsSheet, col, col, width); err != nil {
			return fmt.Errorf("setting column width: %w", err)
		}
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("converting coordinates: %w", err)
		}
		vals := r.values()
		if err := f.SetSheetRow(VisitorsSheet, cell, &vals); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	return nil
}

func writeStats(f *excelize.File, s stats.Statistics, headerStyle int) error {
	if _, err := f.NewSheet(StatsSheet); err != nil {
		return fmt.Errorf("creating sheet: %w", err)
	}

	var lines [][]any
	add := func(v ...any) { lines = append(lines, v) }

	add("Ko'rsatkich", "Qiymat")
	add("Bugun", s.TodayCount)
	add("Shu oy", s.MonthCount)
	add("O'tgan oy", s.LastMonthCount)
	add("O'sish, %", s.Growth)
	add("Jami yozuvlar", s.TotalRecords)
	add("Jami tashriflar", s.TotalWeight)
	add("Ichki, %", s.InternalPercent)
	add("Tashqi, %", s.ExternalPercent)
	add("Eng faol kun", s.MaxDay.Date, s.MaxDay.Count)
	add()
	add("Resurs", "Soni", "%")
	for _, r := range s.Resources {
		add(r.Name, r.Count, r.Percent)
	}
	add()
	add("Fakultet", "Soni", "%")
	for _, d := range s.Departments {
		add(d.Name, d.Count, d.Percent)
	}
	add()
	add("Oy", "O'rin", "Fakultet", "Soni")
	for _, m := range s.MonthlyTop {
		for _, r := range m.Top {
			add(m.Month, r.Rank, r.Department, r.Count)
		}
	}

	for i, line := range lines {
		if len(line) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("converting coordinates: %w", err)
		}
		if err := f.SetSheetRow(StatsSheet, cell, &line); err != nil {
			return fmt.Errorf("writing statistics row %d: %w", i+1, err)
		}
	}

	if err := f.SetCellStyle(StatsSheet, "A1", "B1", headerStyle); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}
	return f.SetColWidth(StatsSheet, "A", "C", 30)
}

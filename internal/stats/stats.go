// Package stats derives dashboard statistics from the full visit record set.
//
// Compute is a pure function and is re-run from scratch on every change.
// Every aggregate sums record weight, so a team of five counts as five
// visits everywhere.
package stats

import (
	"math"
	"sort"
	"time"

	"github.com/jizpi/arm-ledger/internal/visit"
)

// UnknownMonth is the MonthlyTop bucket for records without a creation time.
const UnknownMonth = "unknown"

// DefaultHistogramDays is the histogram length when Options.Days is unset.
const DefaultHistogramDays = 7

// Options controls the parts of Compute that depend on configuration.
type Options struct {
	// Catalog lists the resources always reported, in display order.
	Catalog []string
	// Days is the histogram length ending today.
	Days int
	// Location decides calendar days and months.
	Location *time.Location
}

// Share is a weighted count and its rounded share of the total.
type Share struct {
	Name    string `json:"name"`
	Count   int    `json:"count"`
	Percent int    `json:"percent"`
}

// DayCount is one date and its weighted visit count.
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Ranked is one department's place in a month.
type Ranked struct {
	Rank       int    `json:"rank"`
	Department string `json:"department"`
	Count      int    `json:"count"`
}

// MonthTop holds the top three departments of one month.
type MonthTop struct {
	Month string   `json:"month"`
	Top   []Ranked `json:"top"`
}

// Statistics is one immutable snapshot of the derived counters.
type Statistics struct {
	Today           string         `json:"today"`
	DailyVisits     map[string]int `json:"daily_visits"`
	Days            []string       `json:"days"`
	TodayCount      int            `json:"today_count"`
	MonthCount      int            `json:"month_count"`
	LastMonthCount  int            `json:"last_month_count"`
	Growth          int            `json:"growth"`
	Resources       []Share        `json:"resources"`
	Departments     []Share        `json:"departments"`
	InternalPercent int            `json:"internal_percent"`
	ExternalPercent int            `json:"external_percent"`
	MaxDay          DayCount       `json:"max_day"`
	MonthlyTop      []MonthTop     `json:"monthly_top"`
	Histogram       []DayCount     `json:"histogram"`
	TotalRecords    int            `json:"total_records"`
	TotalWeight     int            `json:"total_weight"`
}

// Resource returns the share for a resource name.
func (s *Statistics) Resource(name string) (Share, bool) {
	return find(s.Resources, name)
}

// Department returns the share for a department name.
func (s *Statistics) Department(name string) (Share, bool) {
	return find(s.Departments, name)
}

func find(shares []Share, name string) (Share, bool) {
	for _, sh := range shares {
		if sh.Name == name {
			return sh, true
		}
	}
	return Share{}, false
}

// Empty returns the statistics of an empty record set.
func Empty(now time.Time, opts Options) Statistics {
	return Compute(nil, now, opts)
}

// Compute derives a Statistics snapshot from records. It never fails;
// malformed dates and missing timestamps fall back to defaults.
func Compute(records []visit.Record, now time.Time, opts Options) Statistics {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	days := opts.Days
	if days <= 0 {
		days = DefaultHistogramDays
	}
	now = now.In(loc)
	today := visit.FormatDate(now, loc)

	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	startOfTomorrow := startOfToday.AddDate(0, 0, 1)
	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	startOfLastMonth := startOfMonth.AddDate(0, -1, 0)

	s := Statistics{
		Today:        today,
		DailyVisits:  map[string]int{},
		Days:         []string{},
		TotalRecords: len(records),
	}

	resources := newTally()
	for _, name := range opts.Catalog {
		resources.seed(name)
	}
	departments := newTally()
	months := map[string]*tally{}
	var monthKeys []string

	var createdToday, internal, external int
	for i := range records {
		r := &records[i]
		w := r.Weight()
		s.TotalWeight += w

		if len(r.VisitDate) == len(visit.DateLayout) {
			if _, ok := s.DailyVisits[r.VisitDate]; !ok {
				s.Days = append(s.Days, r.VisitDate)
			}
			s.DailyVisits[r.VisitDate] += w
		}

		resources.add(r.Resource, w)

		dept := r.Department
		if dept == "" {
			dept = visit.UnknownDepartment
		}
		departments.add(dept, w)

		if r.Class == visit.External {
			external += w
		} else {
			internal += w
		}

		month := UnknownMonth
		if r.CreatedAt != nil {
			at := r.CreatedAt.In(loc)
			month = at.Format("2006-01")
			if !at.Before(startOfToday) && at.Before(startOfTomorrow) {
				createdToday += w
			}
			if !at.Before(startOfMonth) && at.Before(now) {
				s.MonthCount += w
			} else if !at.Before(startOfLastMonth) && at.Before(startOfMonth) {
				s.LastMonthCount += w
			}
		}
		mt, ok := months[month]
		if !ok {
			mt = newTally()
			months[month] = mt
			monthKeys = append(monthKeys, month)
		}
		mt.add(dept, w)
	}

	s.TodayCount = s.DailyVisits[today]
	if s.TodayCount == 0 {
		s.TodayCount = createdToday
	}

	if s.LastMonthCount > 0 {
		s.Growth = round(float64(s.MonthCount-s.LastMonthCount) / float64(s.LastMonthCount) * 100)
	}

	s.Resources = resources.shares(s.TotalWeight)
	s.Departments = departments.shares(s.TotalWeight)
	s.InternalPercent = percent(internal, s.TotalWeight)
	s.ExternalPercent = percent(external, s.TotalWeight)

	s.MaxDay = DayCount{Date: "-"}
	for _, d := range s.Days {
		if c := s.DailyVisits[d]; c > s.MaxDay.Count {
			s.MaxDay = DayCount{Date: d, Count: c}
		}
	}

	sort.Strings(monthKeys)
	s.MonthlyTop = make([]MonthTop, 0, len(monthKeys))
	for _, m := range monthKeys {
		s.MonthlyTop = append(s.MonthlyTop, MonthTop{Month: m, Top: months[m].top(3)})
	}

	s.Histogram = make([]DayCount, days)
	for i := 0; i < days; i++ {
		d := visit.FormatDate(startOfToday.AddDate(0, 0, i-days+1), loc)
		s.Histogram[i] = DayCount{Date: d, Count: s.DailyVisits[d]}
	}

	return s
}

// tally is a weight map that remembers first-seen key order.
type tally struct {
	keys   []string
	counts map[string]int
}

func newTally() *tally {
	return &tally{counts: map[string]int{}}
}

func (t *tally) seed(key string) {
	if _, ok := t.counts[key]; !ok {
		t.keys = append(t.keys, key)
		t.counts[key] = 0
	}
}

func (t *tally) add(key string, w int) {
	t.seed(key)
	t.counts[key] += w
}

func (t *tally) shares(total int) []Share {
	out := make([]Share, 0, len(t.keys))
	for _, k := range t.keys {
		c := t.counts[k]
		out = append(out, Share{Name: k, Count: c, Percent: percent(c, total)})
	}
	return out
}

// top returns the n heaviest keys; ties keep first-seen order.
func (t *tally) top(n int) []Ranked {
	keys := append([]string(nil), t.keys...)
	sort.SliceStable(keys, func(i, j int) bool {
		return t.counts[keys[i]] > t.counts[keys[j]]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	out := make([]Ranked, len(keys))
	for i, k := range keys {
		out[i] = Ranked{Rank: i + 1, Department: k, Count: t.counts[k]}
	}
	return out
}

func percent(count, total int) int {
	if total == 0 {
		return 0
	}
	return round(float64(count) / float64(total) * 100)
}

// round rounds halves up, so -2.5 becomes -2.
func round(x float64) int {
	return int(math.Floor(x + 0.5))
}

// Package view turns the record set into the paginated ledger list.
//
// Apply runs filter, sort and paginate in that order. It is a pure function
// of its inputs: the record slice is never modified and the same Query on
// the same records always yields the same Page.
package view

import (
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/jizpi/arm-ledger/internal/visit"
)

// PageSize is the number of rows per ledger page.
const PageSize = 20

// SortKey names a sortable record field.
type SortKey string

const (
	ByCreatedAt  SortKey = "created_at"
	BySequence   SortKey = "sequence_number"
	ByGroupSize  SortKey = "group_size"
	ByVisitDate  SortKey = "visit_date"
	ByFirstName  SortKey = "first_name"
	ByLastName   SortKey = "last_name"
	ByGroup      SortKey = "group"
	ByDepartment SortKey = "department"
	ByResource   SortKey = "resource"
	ByClass      SortKey = "visitor_class"
)

var sortKeys = map[SortKey]bool{
	ByCreatedAt: true, BySequence: true, ByGroupSize: true, ByVisitDate: true,
	ByFirstName: true, ByLastName: true, ByGroup: true, ByDepartment: true,
	ByResource: true, ByClass: true,
}

// Valid reports whether k is a known sort key.
func (k SortKey) Valid() bool {
	return sortKeys[k]
}

// Direction is ascending or descending.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Filter holds the active list filters. Empty fields are inactive.
type Filter struct {
	Text       string `json:"q,omitempty"`
	Date       string `json:"date,omitempty"` // yyyy-mm-dd or dd.mm.yyyy
	Resource   string `json:"resource,omitempty"`
	Department string `json:"department,omitempty"`
}

// Active reports whether any predicate is set.
func (f Filter) Active() bool {
	return f != Filter{}
}

// Sort is the single active sort.
type Sort struct {
	Key SortKey   `json:"key"`
	Dir Direction `json:"dir"`
}

// Query is the full list state. It is a value: every change returns a new Query.
type Query struct {
	Filter Filter `json:"filter"`
	Sort   Sort   `json:"sort"`
	Page   int    `json:"page"`
}

// DefaultQuery lists newest records first on page one.
func DefaultQuery() Query {
	return Query{Sort: Sort{Key: ByCreatedAt, Dir: Desc}, Page: 1}
}

// WithFilter replaces the filter. A changed filter sends the list back to page one.
func (q Query) WithFilter(f Filter) Query {
	if f != q.Filter {
		q.Page = 1
	}
	q.Filter = f
	return q
}

// WithText changes only the search text.
func (q Query) WithText(text string) Query {
	f := q.Filter
	f.Text = text
	return q.WithFilter(f)
}

// Toggle flips the direction when key is already active; a new key starts descending.
// The page is kept.
func (q Query) Toggle(key SortKey) Query {
	if q.Sort.Key == key {
		if q.Sort.Dir == Desc {
			q.Sort.Dir = Asc
		} else {
			q.Sort.Dir = Desc
		}
		return q
	}
	q.Sort = Sort{Key: key, Dir: Desc}
	return q
}

// WithPage moves to page n. Out of range pages are clamped by Apply.
func (q Query) WithPage(n int) Query {
	q.Page = n
	return q
}

// Page is one page of the filtered and sorted list.
type Page struct {
	Records    []visit.Record `json:"records"`
	Page       int            `json:"page"`
	TotalPages int            `json:"total_pages"`
	TotalCount int            `json:"total_count"`
}

// Apply filters, sorts and paginates records.
func Apply(records []visit.Record, q Query) Page {
	rows := Filtered(records, q)

	total := len(rows)
	pages := (total + PageSize - 1) / PageSize
	if pages < 1 {
		pages = 1
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}

	start := (page - 1) * PageSize
	end := start + PageSize
	if end > total {
		end = total
	}
	out := make([]visit.Record, end-start)
	copy(out, rows[start:end])

	return Page{Records: out, Page: page, TotalPages: pages, TotalCount: total}
}

// Filtered returns every matching record in sort order, without paging.
func Filtered(records []visit.Record, q Query) []visit.Record {
	m := newMatcher(q.Filter)
	rows := make([]visit.Record, 0, len(records))
	for i := range records {
		if m.match(&records[i]) {
			rows = append(rows, records[i])
		}
	}
	sortRecords(rows, q.Sort)
	return rows
}

type matcher struct {
	f       Filter
	fold    cases.Caser
	text    string
	date    string
	badDate bool
}

func newMatcher(f Filter) *matcher {
	m := &matcher{f: f, fold: cases.Fold()}
	m.text = m.fold.String(strings.TrimSpace(f.Text))
	if d := strings.TrimSpace(f.Date); d != "" {
		date, ok := NormalizeDate(d)
		m.date = date
		m.badDate = !ok
	}
	return m
}

func (m *matcher) match(r *visit.Record) bool {
	if m.badDate {
		return false
	}
	if m.date != "" && r.VisitDate != m.date {
		return false
	}
	if m.f.Resource != "" && r.Resource != m.f.Resource {
		return false
	}
	if m.f.Department != "" && r.Department != m.f.Department {
		return false
	}
	if m.text != "" {
		hay := m.fold.String(r.FirstName + " " + r.LastName + " " + r.Group + " " + r.Department)
		if !strings.Contains(hay, m.text) {
			return false
		}
	}
	return true
}

// NormalizeDate converts a yyyy-mm-dd or dd.mm.yyyy filter date into the
// stored dd.mm.yyyy form.
func NormalizeDate(s string) (string, bool) {
	for _, layout := range []string{"2006-01-02", visit.DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(visit.DateLayout), true
		}
	}
	return "", false
}

func sortRecords(rows []visit.Record, s Sort) {
	key := s.Key
	if !key.Valid() {
		key = ByCreatedAt
	}
	desc := s.Dir != Asc

	var cmp func(a, b *visit.Record) int
	switch key {
	case ByCreatedAt:
		cmp = func(a, b *visit.Record) int { return compareInt64(createdNanos(a), createdNanos(b)) }
	case BySequence:
		cmp = func(a, b *visit.Record) int { return compareInt64(int64(a.Sequence), int64(b.Sequence)) }
	case ByGroupSize:
		cmp = func(a, b *visit.Record) int { return compareInt64(int64(a.GroupSize), int64(b.GroupSize)) }
	default:
		col := collate.New(language.Uzbek, collate.Numeric)
		field := stringField(key)
		cmp = func(a, b *visit.Record) int { return col.CompareString(field(a), field(b)) }
	}

	sort.SliceStable(rows, func(i, j int) bool {
		c := cmp(&rows[i], &rows[j])
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func stringField(key SortKey) func(*visit.Record) string {
	switch key {
	case ByVisitDate:
		return func(r *visit.Record) string { return r.VisitDate }
	case ByFirstName:
		return func(r *visit.Record) string { return r.FirstName }
	case ByLastName:
		return func(r *visit.Record) string { return r.LastName }
	case ByGroup:
		return func(r *visit.Record) string { return r.Group }
	case ByDepartment:
		return func(r *visit.Record) string { return r.Department }
	case ByResource:
		return func(r *visit.Record) string { return r.Resource }
	default:
		return func(r *visit.Record) string { return string(r.Class) }
	}
}

// createdNanos treats a missing timestamp as the smallest possible value.
func createdNanos(r *visit.Record) int64 {
	if r.CreatedAt == nil {
		return math.MinInt64
	}
	return r.CreatedAt.UnixNano()
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

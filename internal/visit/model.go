// Package visit provides the check-in record model and data access.
package visit

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the locale date format used for visit dates (dd.mm.yyyy).
const DateLayout = "02.01.2006"

// UnknownDepartment labels records that carry no department.
const UnknownDepartment = "Noma'lum"

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("visit not found")

// Class distinguishes internal visitors (students, staff) from external ones.
type Class string

const (
	Internal Class = "internal"
	External Class = "external"
)

// ParseClass normalizes a visitor class, accepting the legacy "ichki"/"tashqi" values.
// An empty string means internal.
func ParseClass(s string) (Class, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "internal", "ichki":
		return Internal, nil
	case "external", "tashqi":
		return External, nil
	default:
		return "", fmt.Errorf("invalid visitor class: %q", s)
	}
}

// Label returns a human-readable label for the class.
func (c Class) Label() string {
	switch c {
	case Internal:
		return "Ichki"
	case External:
		return "Tashqi"
	default:
		return string(c)
	}
}

// DefaultResources is the resource catalog shown in filters and statistics.
var DefaultResources = []string{
	"Direktor qabuli",
	"Ilmiy zal",
	"Elektron axborot bo'limi",
	"O'quv zali",
	"ARM fondidan kitob olish",
	"Kitob hadya etish",
	"Bo'limlarda shaxsiy va jamoaviy ish",
}

// Record is a single check-in at the resource center.
type Record struct {
	ID         string     `json:"id"`
	FirstName  string     `json:"first_name"`
	LastName   string     `json:"last_name"`
	GroupSize  int        `json:"group_size,omitempty"`
	Group      string     `json:"group"`
	Department string     `json:"department"`
	Resource   string     `json:"resource"`
	Class      Class      `json:"visitor_class"`
	VisitDate  string     `json:"visit_date"` // dd.mm.yyyy
	Sequence   int        `json:"sequence_number"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// IsGroup reports whether the record stands for a team rather than one person.
func (r *Record) IsGroup() bool {
	return r.GroupSize > 1
}

// Weight is the head-count the record contributes to every counter.
func (r *Record) Weight() int {
	if r.GroupSize > 1 {
		return r.GroupSize
	}
	return 1
}

// DisplayName returns "Team: N people" for groups and "First Last" otherwise.
func (r *Record) DisplayName() string {
	if r.IsGroup() {
		return fmt.Sprintf("Team: %d people", r.GroupSize)
	}
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

// FormatDate renders t as a visit date in the given location.
func FormatDate(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(DateLayout)
}

// ParseDate parses a dd.mm.yyyy visit date.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(DateLayout, s, loc)
}

// ValidDate reports whether s is a well-formed visit date.
func ValidDate(s string) bool {
	if len(s) != len(DateLayout) {
		return false
	}
	_, err := ParseDate(s, time.UTC)
	return err == nil
}

// ComposeDepartment joins a unit and an optional sub-unit as "unit - sub-unit".
func ComposeDepartment(unit, subUnit string) string {
	unit = strings.TrimSpace(unit)
	subUnit = strings.TrimSpace(subUnit)
	if subUnit == "" {
		return unit
	}
	if unit == "" {
		return subUnit
	}
	return unit + " - " + subUnit
}

package ledger

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jizpi/arm-ledger/internal/visit"
)

// ValidationError carries one message per rejected field, keyed by JSON name.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// CreateRequest is a new check-in as submitted at the desk.
// A GroupSize of 2 or more records a team; names are then ignored.
type CreateRequest struct {
	FirstName  string `json:"first_name" validate:"max=100"`
	LastName   string `json:"last_name" validate:"max=100"`
	GroupSize  int    `json:"group_size" validate:"gte=0,lte=1000"`
	Group      string `json:"group" validate:"required,max=100"`
	Department string `json:"department" validate:"required,max=200"`
	SubUnit    string `json:"sub_unit,omitempty" validate:"max=200"`
	Resource   string `json:"resource" validate:"required,max=200"`
	Class      string `json:"visitor_class" validate:"omitempty,oneof=internal external ichki tashqi"`
}

// UpdateRequest changes a subset of a record's fields. Nil fields are left alone.
type UpdateRequest struct {
	FirstName  *string `json:"first_name,omitempty"`
	LastName   *string `json:"last_name,omitempty"`
	GroupSize  *int    `json:"group_size,omitempty"`
	Group      *string `json:"group,omitempty"`
	Department *string `json:"department,omitempty"`
	Resource   *string `json:"resource,omitempty"`
	Class      *string `json:"visitor_class,omitempty"`
	VisitDate  *string `json:"visit_date,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(individualOrGroup, CreateRequest{})
	return v
}

// individualOrGroup enforces that individuals carry both names.
func individualOrGroup(sl validator.StructLevel) {
	req := sl.Current().Interface().(CreateRequest)
	if req.GroupSize > 1 {
		return
	}
	if req.FirstName == "" {
		sl.ReportError(req.FirstName, "first_name", "FirstName", "required_individual", "")
	}
	if req.LastName == "" {
		sl.ReportError(req.LastName, "last_name", "LastName", "required_individual", "")
	}
}

func (r CreateRequest) normalize() CreateRequest {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Group = strings.TrimSpace(r.Group)
	r.Department = strings.TrimSpace(r.Department)
	r.SubUnit = strings.TrimSpace(r.SubUnit)
	r.Resource = strings.TrimSpace(r.Resource)
	r.Class = strings.ToLower(strings.TrimSpace(r.Class))
	return r
}

// record builds the storable part of the request. Groups drop the names.
func (r CreateRequest) record() *visit.Record {
	class, _ := visit.ParseClass(r.Class)
	rec := &visit.Record{
		FirstName:  r.FirstName,
		LastName:   r.LastName,
		GroupSize:  r.GroupSize,
		Group:      r.Group,
		Department: visit.ComposeDepartment(r.Department, r.SubUnit),
		Resource:   r.Resource,
		Class:      class,
	}
	normalizeBranch(rec)
	return rec
}

// normalizeBranch puts a record into exactly one of the two legal shapes.
func normalizeBranch(rec *visit.Record) {
	if rec.IsGroup() {
		rec.FirstName = ""
		rec.LastName = ""
		return
	}
	rec.GroupSize = 0
}

func (u UpdateRequest) apply(rec visit.Record) visit.Record {
	if u.FirstName != nil {
		rec.FirstName = strings.TrimSpace(*u.FirstName)
	}
	if u.LastName != nil {
		rec.LastName = strings.TrimSpace(*u.LastName)
	}
	if u.GroupSize != nil {
		rec.GroupSize = *u.GroupSize
	}
	if u.Group != nil {
		rec.Group = strings.TrimSpace(*u.Group)
	}
	if u.Department != nil {
		rec.Department = strings.TrimSpace(*u.Department)
	}
	if u.Resource != nil {
		rec.Resource = strings.TrimSpace(*u.Resource)
	}
	if u.Class != nil {
		rec.Class = visit.Class(strings.ToLower(strings.TrimSpace(*u.Class)))
	}
	if u.VisitDate != nil {
		rec.VisitDate = strings.TrimSpace(*u.VisitDate)
	}
	return rec
}

func validateCreate(req CreateRequest) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("validating request: %w", err)
	}

	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fe.Field()] = message(fe)
	}
	return &ValidationError{Fields: fields}
}

// validateRecord re-checks a merged record against the create rules.
func validateRecord(rec visit.Record, checkDate bool) error {
	req := CreateRequest{
		FirstName:  rec.FirstName,
		LastName:   rec.LastName,
		GroupSize:  rec.GroupSize,
		Group:      rec.Group,
		Department: rec.Department,
		Resource:   rec.Resource,
		Class:      string(rec.Class),
	}
	err := validateCreate(req)
	if checkDate && !visit.ValidDate(rec.VisitDate) {
		ve, ok := err.(*ValidationError)
		if !ok {
			if err != nil {
				return err
			}
			ve = &ValidationError{Fields: map[string]string{}}
		}
		ve.Fields["visit_date"] = "visit_date must be dd.mm.yyyy"
		return ve
	}
	return err
}

func message(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "required_individual":
		return name + " is required for an individual visitor"
	case "oneof":
		return name + " must be one of: " + fe.Param()
	case "max":
		return name + " must be at most " + fe.Param() + " characters"
	case "gte":
		return name + " must be at least " + fe.Param()
	case "lte":
		return name + " must be at most " + fe.Param()
	default:
		return name + " is invalid"
	}
}

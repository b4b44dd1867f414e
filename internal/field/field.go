// Package field implements the field type catalog: per-kind validation
// rules, default values, and the mapping between logical values and the
// storage cell kept in models.FieldValue.
//
// Logical values are what clients send and receive:
//
//	checkbox  bool
//	date      "YYYY-MM-DD" in the actor's timezone
//	decimal   canonical decimal text, e.g. "12.5"
//	duration  "H:MM" (total hours, minutes)
//	issue     issue id (uint)
//	list      list item id (uint)
//	number    int64
//	string    string (at most StringMaxLength runes)
//	text      string (at most TextMaxLength runes)
//
// Rules are built by a pure function of the field, its parameters and an
// Env carrying the reference time; nothing is attached to the field itself.
package field

import (
	"fmt"
	"time"

	"github.com/zulandar/docket/internal/models"
	"gorm.io/gorm"
)

// Type ceilings.
const (
	NumberMin       = -1000000000
	NumberMax       = 1000000000
	DecimalMin      = "-9999999999.9999999999"
	DecimalMax      = "9999999999.9999999999"
	DurationMin     = 0
	DurationMax     = 999999*60 + 59
	StringMaxLength = 40
	TextMaxLength   = 10000
)

// Message keys of violations. Translation happens outside this package.
const (
	MsgRequired     = "field.required"
	MsgUnexpected   = "field.unexpected"
	MsgMissing      = "field.missing"
	MsgInvalid      = "value.invalid"
	MsgMin          = "value.min"
	MsgMax          = "value.max"
	MsgTooLong      = "value.too_long"
	MsgChoice       = "value.choice"
	MsgUnknownIssue = "value.unknown_issue"
)

// Violation is one failed constraint of one field.
type Violation struct {
	FieldID uint
	Key     string
	Args    []any
}

func violation(key string, args ...any) *Violation {
	return &Violation{Key: key, Args: args}
}

// Env is the context a rule is evaluated in.
type Env struct {
	// Now is the reference time for relative date bounds and defaults.
	Now time.Time
	// Location is the acting user's timezone. Nil means UTC.
	Location *time.Location
	// IssueVisible reports whether the actor may reference an issue.
	// Nil means no issue may be referenced.
	IssueVisible func(id uint) bool
}

func (e Env) location() *time.Location {
	if e.Location == nil {
		return time.UTC
	}
	return e.Location
}

// today returns local midnight of Now in the actor's timezone.
func (e Env) today() time.Time {
	now := e.Now.In(e.location())
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, e.location())
}

// Rule validates and normalizes one logical value.
type Rule struct {
	FieldID  uint
	Required bool
	check    func(v any) (any, *Violation)
}

// Validate returns the normalized value accepted by Facade.Store, or the
// violation. Blank input (nil or "") is accepted as nil unless required.
func (r Rule) Validate(v any) (any, *Violation) {
	var (
		out  any
		fail *Violation
	)
	if !isBlank(v) && r.check != nil {
		out, fail = r.check(v)
	}
	if fail == nil && out == nil && r.Required {
		fail = violation(MsgRequired)
	}
	if fail != nil {
		fail.FieldID = r.FieldID
		return nil, fail
	}
	return out, nil
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// Facade is the validation and storage strategy of one field kind.
type Facade interface {
	// Field returns the field the facade was built for.
	Field() *models.Field
	// Rule builds the constraint set of the field.
	Rule(env Env) Rule
	// Default returns the logical default value, or nil.
	Default(env Env) any
	// Store converts a value normalized by Rule into a storage cell,
	// interning it when the kind requires.
	Store(tx *gorm.DB, v any) (*int64, error)
	// Read converts a storage cell back into a logical value.
	Read(tx *gorm.DB, cell *int64, env Env) (any, error)
}

// For returns the facade matching the field's type. Malformed parameters
// are reported here so that a broken definition never reaches validation.
func For(f *models.Field) (Facade, error) {
	switch f.Type {
	case models.FieldCheckbox:
		return newCheckbox(f), nil
	case models.FieldDate:
		return newDate(f)
	case models.FieldDecimal:
		return newDecimal(f)
	case models.FieldDuration:
		return newDuration(f)
	case models.FieldIssue:
		return newIssueRef(f), nil
	case models.FieldList:
		return newList(f)
	case models.FieldNumber:
		return newNumber(f)
	case models.FieldString:
		return newTextual(f, StringMaxLength)
	case models.FieldText:
		return newTextual(f, TextMaxLength)
	default:
		return nil, fmt.Errorf("field: %q has unknown type %q", f.Name, f.Type)
	}
}

// MustFor is For for definitions already validated at load time.
func MustFor(f *models.Field) Facade {
	facade, err := For(f)
	if err != nil {
		panic(err)
	}
	return facade
}

func cell(v int64) *int64 {
	return &v
}

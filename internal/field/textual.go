package field

import (
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/zulandar/docket/internal/intern"
	"github.com/zulandar/docket/internal/models"
	"gorm.io/gorm"
)

var backref = regexp.MustCompile(`\\(\d)`)

// textual serves both string and text fields. The value is first rewritten
// by the search/replace pair, then bounded by length, then matched in full
// against the check pattern.
type textual struct {
	f       *models.Field
	limit   int
	check   *regexp.Regexp
	search  *regexp.Regexp
	replace string
}

func newTextual(f *models.Field, ceiling int) (*textual, error) {
	t := &textual{f: f, limit: ceiling}
	if f.MaxLength != nil && *f.MaxLength > 0 && *f.MaxLength < ceiling {
		t.limit = *f.MaxLength
	}
	if f.PCRECheck != nil && *f.PCRECheck != "" {
		re, err := regexp.Compile(`^(?:` + *f.PCRECheck + `)$`)
		if err != nil {
			return nil, fmt.Errorf("field: %q check pattern: %w", f.Name, err)
		}
		t.check = re
	}
	if f.PCRESearch != nil && *f.PCRESearch != "" {
		re, err := regexp.Compile(*f.PCRESearch)
		if err != nil {
			return nil, fmt.Errorf("field: %q search pattern: %w", f.Name, err)
		}
		t.search = re
		if f.PCREReplace != nil {
			t.replace = backref.ReplaceAllString(*f.PCREReplace, `$${$1}`)
		}
	}
	if f.DefaultValue != nil && utf8.RuneCountInString(*f.DefaultValue) > t.limit {
		return nil, fmt.Errorf("field: %q default exceeds %d characters", f.Name, t.limit)
	}
	return t, nil
}

func (t *textual) Field() *models.Field { return t.f }

func (t *textual) Rule(Env) Rule {
	return Rule{
		FieldID:  t.f.ID,
		Required: t.f.IsRequired,
		check: func(v any) (any, *Violation) {
			s, ok := v.(string)
			if !ok {
				return nil, violation(MsgInvalid)
			}
			if t.search != nil {
				s = t.search.ReplaceAllString(s, t.replace)
			}
			if utf8.RuneCountInString(s) > t.limit {
				return nil, violation(MsgTooLong, t.limit)
			}
			if t.check != nil && !t.check.MatchString(s) {
				return nil, violation(MsgInvalid)
			}
			if s == "" {
				return nil, nil
			}
			return s, nil
		},
	}
}

func (t *textual) Default(Env) any {
	if t.f.DefaultValue == nil || *t.f.DefaultValue == "" {
		return nil
	}
	return *t.f.DefaultValue
}

func (t *textual) Store(tx *gorm.DB, v any) (*int64, error) {
	if v == nil {
		return nil, nil
	}
	store := intern.String
	if t.f.Type == models.FieldText {
		store = intern.Text
	}
	id, err := store(tx, v.(string))
	if err != nil {
		return nil, err
	}
	return cell(int64(id)), nil
}

func (t *textual) Read(tx *gorm.DB, stored *int64, _ Env) (any, error) {
	if stored == nil {
		return nil, nil
	}
	if t.f.Type == models.FieldText {
		return intern.LookupText(tx, uint(*stored))
	}
	return intern.LookupString(tx, uint(*stored))
}

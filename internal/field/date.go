package field

import (
	"fmt"
	"time"

	"github.com/zulandar/docket/internal/models"
	"gorm.io/gorm"
)

// DateLayout is the logical representation of a date value.
const DateLayout = "2006-01-02"

// Date bounds and defaults are day offsets relative to the current date in
// the actor's timezone. Stored values are the epoch second of local
// midnight of the chosen day.
type date struct {
	f        *models.Field
	min, max *int64
	def      *int64
}

func newDate(f *models.Field) (*date, error) {
	d := &date{f: f}
	var err error
	if d.min, err = parseOptionalInt(f.MinValue); err != nil {
		return nil, fmt.Errorf("field: %q minimum offset: %w", f.Name, err)
	}
	if d.max, err = parseOptionalInt(f.MaxValue); err != nil {
		return nil, fmt.Errorf("field: %q maximum offset: %w", f.Name, err)
	}
	if d.def, err = parseOptionalInt(f.DefaultValue); err != nil {
		return nil, fmt.Errorf("field: %q default offset: %w", f.Name, err)
	}
	for _, v := range []*int64{d.min, d.max, d.def} {
		if v != nil && (*v < -1<<31 || *v > 1<<31-1) {
			return nil, fmt.Errorf("field: %q offset %d out of range", f.Name, *v)
		}
	}
	return d, nil
}

func (d *date) Field() *models.Field { return d.f }

func (d *date) Rule(env Env) Rule {
	today := env.today()
	return Rule{
		FieldID:  d.f.ID,
		Required: d.f.IsRequired,
		check: func(v any) (any, *Violation) {
			s, ok := asString(v)
			if !ok {
				return nil, violation(MsgInvalid)
			}
			t, err := time.ParseInLocation(DateLayout, s, env.location())
			if err != nil {
				return nil, violation(MsgInvalid)
			}
			if d.min != nil {
				if bound := today.AddDate(0, 0, int(*d.min)); t.Before(bound) {
					return nil, violation(MsgMin, bound.Format(DateLayout))
				}
			}
			if d.max != nil {
				if bound := today.AddDate(0, 0, int(*d.max)); t.After(bound) {
					return nil, violation(MsgMax, bound.Format(DateLayout))
				}
			}
			return t, nil
		},
	}
}

func (d *date) Default(env Env) any {
	if d.def == nil {
		return nil
	}
	return env.today().AddDate(0, 0, int(*d.def)).Format(DateLayout)
}

func (d *date) Store(_ *gorm.DB, v any) (*int64, error) {
	if v == nil {
		return nil, nil
	}
	return cell(v.(time.Time).Unix()), nil
}

func (d *date) Read(_ *gorm.DB, stored *int64, env Env) (any, error) {
	if stored == nil {
		return nil, nil
	}
	return time.Unix(*stored, 0).In(env.location()).Format(DateLayout), nil
}

package field

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
	"github.com/zulandar/docket/internal/intern"
	"github.com/zulandar/docket/internal/models"
	"gorm.io/gorm"
)

type number struct {
	f        *models.Field
	min, max int64
	def      *int64
}

func newNumber(f *models.Field) (*number, error) {
	n := &number{f: f, min: NumberMin, max: NumberMax}
	for _, p := range []struct {
		raw  *string
		dest *int64
	}{{f.MinValue, &n.min}, {f.MaxValue, &n.max}} {
		v, err := parseOptionalInt(p.raw)
		if err != nil {
			return nil, fmt.Errorf("field: %q bound: %w", f.Name, err)
		}
		if v != nil {
			*p.dest = max(NumberMin, min(NumberMax, *v))
		}
	}
	def, err := parseOptionalInt(f.DefaultValue)
	if err != nil {
		return nil, fmt.Errorf("field: %q default: %w", f.Name, err)
	}
	n.def = def
	return n, nil
}

func (n *number) Field() *models.Field { return n.f }

func (n *number) Rule(Env) Rule {
	return Rule{
		FieldID:  n.f.ID,
		Required: n.f.IsRequired,
		check: func(v any) (any, *Violation) {
			i, ok := asInt64(v)
			if !ok {
				return nil, violation(MsgInvalid)
			}
			if i < n.min {
				return nil, violation(MsgMin, n.min)
			}
			if i > n.max {
				return nil, violation(MsgMax, n.max)
			}
			return i, nil
		},
	}
}

func (n *number) Default(Env) any {
	if n.def == nil {
		return nil
	}
	return *n.def
}

func (n *number) Store(_ *gorm.DB, v any) (*int64, error) {
	if v == nil {
		return nil, nil
	}
	return cell(v.(int64)), nil
}

func (n *number) Read(_ *gorm.DB, stored *int64, _ Env) (any, error) {
	if stored == nil {
		return nil, nil
	}
	return *stored, nil
}

var decimalPattern = regexp.MustCompile(`^[-+]?\d{1,10}(\.\d{1,10})?$`)

type decimalField struct {
	f        *models.Field
	min, max decimal.Decimal
	def      *string
}

func parseDecimal(s string) (decimal.Decimal, bool) {
	if !decimalPattern.MatchString(s) {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	return d, err == nil
}

func newDecimal(f *models.Field) (*decimalField, error) {
	d := &decimalField{
		f:   f,
		min: decimal.RequireFromString(DecimalMin),
		max: decimal.RequireFromString(DecimalMax),
	}
	if f.MinValue != nil && *f.MinValue != "" {
		v, ok := parseDecimal(*f.MinValue)
		if !ok {
			return nil, fmt.Errorf("field: %q has malformed minimum %q", f.Name, *f.MinValue)
		}
		d.min = v
	}
	if f.MaxValue != nil && *f.MaxValue != "" {
		v, ok := parseDecimal(*f.MaxValue)
		if !ok {
			return nil, fmt.Errorf("field: %q has malformed maximum %q", f.Name, *f.MaxValue)
		}
		d.max = v
	}
	if f.DefaultValue != nil && *f.DefaultValue != "" {
		v, ok := parseDecimal(*f.DefaultValue)
		if !ok {
			return nil, fmt.Errorf("field: %q has malformed default %q", f.Name, *f.DefaultValue)
		}
		s := v.String()
		d.def = &s
	}
	return d, nil
}

func (d *decimalField) Field() *models.Field { return d.f }

func (d *decimalField) Rule(Env) Rule {
	return Rule{
		FieldID:  d.f.ID,
		Required: d.f.IsRequired,
		check: func(v any) (any, *Violation) {
			s, ok := asString(v)
			if !ok {
				return nil, violation(MsgInvalid)
			}
			value, ok := parseDecimal(s)
			if !ok {
				return nil, violation(MsgInvalid)
			}
			if value.LessThan(d.min) {
				return nil, violation(MsgMin, d.min.String())
			}
			if value.GreaterThan(d.max) {
				return nil, violation(MsgMax, d.max.String())
			}
			return value.String(), nil
		},
	}
}

func (d *decimalField) Default(Env) any {
	if d.def == nil {
		return nil
	}
	return *d.def
}

func (d *decimalField) Store(tx *gorm.DB, v any) (*int64, error) {
	if v == nil {
		return nil, nil
	}
	id, err := intern.Decimal(tx, v.(string))
	if err != nil {
		return nil, err
	}
	return cell(int64(id)), nil
}

func (d *decimalField) Read(tx *gorm.DB, stored *int64, _ Env) (any, error) {
	if stored == nil {
		return nil, nil
	}
	return intern.LookupDecimal(tx, uint(*stored))
}

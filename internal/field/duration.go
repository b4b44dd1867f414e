package field

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/zulandar/docket/internal/models"
	"gorm.io/gorm"
)

var durationPattern = regexp.MustCompile(`^(\d{1,6}):([0-5]\d)$`)

// ParseDuration converts "H:MM" into minutes.
func ParseDuration(s string) (int64, error) {
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("field: malformed duration %q", s)
	}
	hours, _ := strconv.ParseInt(m[1], 10, 64)
	minutes, _ := strconv.ParseInt(m[2], 10, 64)
	return hours*60 + minutes, nil
}

// FormatDuration converts minutes into "H:MM".
func FormatDuration(minutes int64) string {
	return fmt.Sprintf("%d:%02d", minutes/60, minutes%60)
}

type duration struct {
	f        *models.Field
	min, max int64
	def      *int64
}

func newDuration(f *models.Field) (*duration, error) {
	d := &duration{f: f, min: DurationMin, max: DurationMax}
	for _, p := range []struct {
		raw  *string
		dest *int64
	}{{f.MinValue, &d.min}, {f.MaxValue, &d.max}} {
		if p.raw == nil || *p.raw == "" {
			continue
		}
		v, err := ParseDuration(*p.raw)
		if err != nil {
			return nil, fmt.Errorf("field: %q bound: %w", f.Name, err)
		}
		*p.dest = v
	}
	if f.DefaultValue != nil && *f.DefaultValue != "" {
		v, err := ParseDuration(*f.DefaultValue)
		if err != nil {
			return nil, fmt.Errorf("field: %q default: %w", f.Name, err)
		}
		d.def = &v
	}
	return d, nil
}

func (d *duration) Field() *models.Field { return d.f }

func (d *duration) Rule(Env) Rule {
	return Rule{
		FieldID:  d.f.ID,
		Required: d.f.IsRequired,
		check: func(v any) (any, *Violation) {
			s, ok := asString(v)
			if !ok {
				return nil, violation(MsgInvalid)
			}
			minutes, err := ParseDuration(s)
			if err != nil {
				return nil, violation(MsgInvalid)
			}
			if minutes < d.min {
				return nil, violation(MsgMin, FormatDuration(d.min))
			}
			if minutes > d.max {
				return nil, violation(MsgMax, FormatDuration(d.max))
			}
			return minutes, nil
		},
	}
}

func (d *duration) Default(Env) any {
	if d.def == nil {
		return nil
	}
	return FormatDuration(*d.def)
}

func (d *duration) Store(_ *gorm.DB, v any) (*int64, error) {
	if v == nil {
		return nil, nil
	}
	return cell(v.(int64)), nil
}

func (d *duration) Read(_ *gorm.DB, stored *int64, _ Env) (any, error) {
	if stored == nil {
		return nil, nil
	}
	return FormatDuration(*stored), nil
}

package field

import (
	"strconv"

	"github.com/zulandar/docket/internal/models"
	"gorm.io/gorm"
)

type checkbox struct {
	f *models.Field
}

func newCheckbox(f *models.Field) *checkbox {
	return &checkbox{f: f}
}

func (c *checkbox) Field() *models.Field { return c.f }

func (c *checkbox) Rule(Env) Rule {
	return Rule{
		FieldID: c.f.ID,
		check: func(v any) (any, *Violation) {
			b, ok := asBool(v)
			if !ok {
				return nil, violation(MsgInvalid)
			}
			return b, nil
		},
	}
}

func (c *checkbox) Default(Env) any {
	if c.f.DefaultValue == nil {
		return false
	}
	b, err := strconv.ParseBool(*c.f.DefaultValue)
	return err == nil && b
}

func (c *checkbox) Store(_ *gorm.DB, v any) (*int64, error) {
	if b, _ := v.(bool); b {
		return cell(1), nil
	}
	return cell(0), nil
}

func (c *checkbox) Read(_ *gorm.DB, stored *int64, _ Env) (any, error) {
	return stored != nil && *stored != 0, nil
}

package field

import (
	"fmt"
	"strconv"

	"github.com/zulandar/docket/internal/models"
	"gorm.io/gorm"
)

// list values are ids of the field's own list items. The field must be
// loaded with its ListItems.
type list struct {
	f     *models.Field
	items map[uint]bool
	def   *uint
}

func newList(f *models.Field) (*list, error) {
	l := &list{f: f, items: make(map[uint]bool, len(f.ListItems))}
	for _, item := range f.ListItems {
		l.items[item.ID] = true
	}
	if f.DefaultValue != nil && *f.DefaultValue != "" {
		id, err := strconv.ParseUint(*f.DefaultValue, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("field: %q default item: %w", f.Name, err)
		}
		def := uint(id)
		l.def = &def
	}
	return l, nil
}

func (l *list) Field() *models.Field { return l.f }

func (l *list) Rule(Env) Rule {
	return Rule{
		FieldID:  l.f.ID,
		Required: l.f.IsRequired,
		check: func(v any) (any, *Violation) {
			id, ok := asInt64(v)
			if !ok {
				return nil, violation(MsgInvalid)
			}
			if id <= 0 || !l.items[uint(id)] {
				return nil, violation(MsgChoice)
			}
			return uint(id), nil
		},
	}
}

func (l *list) Default(Env) any {
	if l.def == nil || !l.items[*l.def] {
		return nil
	}
	return *l.def
}

func (l *list) Store(_ *gorm.DB, v any) (*int64, error) {
	if v == nil {
		return nil, nil
	}
	return cell(int64(v.(uint))), nil
}

func (l *list) Read(_ *gorm.DB, stored *int64, _ Env) (any, error) {
	if stored == nil {
		return nil, nil
	}
	return uint(*stored), nil
}

// issueRef values are ids of issues visible to the actor.
type issueRef struct {
	f *models.Field
}

func newIssueRef(f *models.Field) *issueRef {
	return &issueRef{f: f}
}

func (r *issueRef) Field() *models.Field { return r.f }

func (r *issueRef) Rule(env Env) Rule {
	return Rule{
		FieldID:  r.f.ID,
		Required: r.f.IsRequired,
		check: func(v any) (any, *Violation) {
			id, ok := asInt64(v)
			if !ok {
				return nil, violation(MsgInvalid)
			}
			if id <= 0 || env.IssueVisible == nil || !env.IssueVisible(uint(id)) {
				return nil, violation(MsgUnknownIssue, id)
			}
			return uint(id), nil
		},
	}
}

func (r *issueRef) Default(Env) any { return nil }

func (r *issueRef) Store(_ *gorm.DB, v any) (*int64, error) {
	if v == nil {
		return nil, nil
	}
	return cell(int64(v.(uint))), nil
}

func (r *issueRef) Read(_ *gorm.DB, stored *int64, _ Env) (any, error) {
	if stored == nil {
		return nil, nil
	}
	return uint(*stored), nil
}

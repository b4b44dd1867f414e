package db

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/zulandar/docket/internal/config"
	"github.com/zulandar/docket/internal/field"
	"github.com/zulandar/docket/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Seed applies the users, groups and projects of cfg inside one
// transaction. Rows are matched by their natural keys and updated in place;
// definitions missing from cfg are left untouched.
func Seed(db *gorm.DB, cfg *config.Config) error {
	return db.Transaction(func(tx *gorm.DB) error {
		s := &seeder{
			tx:       tx,
			users:    map[string]uint{},
			projects: map[string]uint{},
			groups:   map[string]uint{},
		}
		for _, us := range cfg.Users {
			if err := s.user(us); err != nil {
				return fmt.Errorf("db: seed user %q: %w", us.Email, err)
			}
		}
		for _, ps := range cfg.Projects {
			if err := s.project(ps); err != nil {
				return fmt.Errorf("db: seed project %q: %w", ps.Name, err)
			}
		}
		for _, gs := range cfg.Groups {
			if err := s.group(gs); err != nil {
				return fmt.Errorf("db: seed group %q: %w", gs.Name, err)
			}
		}
		for _, ps := range cfg.Projects {
			for _, ts := range ps.Templates {
				if err := s.template(s.projects[ps.Name], ts); err != nil {
					return fmt.Errorf("db: seed template %q of %q: %w", ts.Name, ps.Name, err)
				}
			}
		}
		return nil
	})
}

type seeder struct {
	tx       *gorm.DB
	users    map[string]uint
	projects map[string]uint
	groups   map[string]uint
}

func (s *seeder) user(us config.UserSeed) error {
	u := models.User{
		Email:      us.Email,
		Fullname:   us.Fullname,
		Timezone:   us.Timezone,
		Locale:     us.Locale,
		IsAdmin:    us.Admin,
		IsDisabled: us.Disabled,
	}
	if err := upsert(s.tx, &u, map[string]any{"email": us.Email},
		"fullname", "timezone", "locale", "is_admin", "is_disabled"); err != nil {
		return err
	}
	s.users[us.Email] = u.ID
	return nil
}

func (s *seeder) project(ps config.ProjectSeed) error {
	p := models.Project{Name: ps.Name, Description: ps.Description, IsSuspended: ps.Suspended}
	if err := upsert(s.tx, &p, map[string]any{"name": ps.Name}, "description", "is_suspended"); err != nil {
		return err
	}
	s.projects[ps.Name] = p.ID
	return nil
}

func (s *seeder) group(gs config.GroupSeed) error {
	var projectID *uint
	if gs.Project != "" {
		id := s.projects[gs.Project]
		projectID = &id
	}
	g := models.Group{ProjectID: projectID, Name: gs.Name, Description: gs.Description}
	if err := ensure(s.tx, &g, map[string]any{"project_id": projectID, "name": gs.Name}, "description"); err != nil {
		return err
	}
	s.groups[gs.Name] = g.ID
	for _, email := range gs.Members {
		m := models.Membership{GroupID: g.ID, UserID: s.users[email]}
		if err := s.tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error; err != nil {
			return fmt.Errorf("member %q: %w", email, err)
		}
	}
	return nil
}

type grantee struct {
	role  *string
	group *uint
}

func (s *seeder) grantees(roles, groups []string) []grantee {
	out := make([]grantee, 0, len(roles)+len(groups))
	for _, r := range roles {
		out = append(out, grantee{role: &r})
	}
	for _, name := range groups {
		id := s.groups[name]
		out = append(out, grantee{group: &id})
	}
	return out
}

func (s *seeder) template(projectID uint, ts config.TemplateSeed) error {
	tpl := models.Template{
		ProjectID:   projectID,
		Name:        ts.Name,
		Prefix:      ts.Prefix,
		Description: ts.Description,
		IsLocked:    ts.Locked,
		FrozenTime:  ts.FrozenDays,
	}
	if err := upsert(s.tx, &tpl, map[string]any{"project_id": projectID, "name": ts.Name},
		"prefix", "description", "is_locked", "frozen_time"); err != nil {
		return err
	}

	for _, ps := range ts.Permissions {
		for _, g := range s.grantees(ps.Roles, ps.Groups) {
			perm := models.TemplatePermission{TemplateID: tpl.ID, Role: g.role, GroupID: g.group, Permission: ps.Action}
			keys := map[string]any{"template_id": tpl.ID, "role": g.role, "group_id": g.group, "permission": ps.Action}
			if err := ensure(s.tx, &perm, keys); err != nil {
				return fmt.Errorf("permission %s: %w", ps.Action, err)
			}
		}
	}

	states := make(map[string]uint, len(ts.States))
	for _, ss := range ts.States {
		st := models.State{
			TemplateID:  tpl.ID,
			Name:        ss.Name,
			Type:        models.StateType(ss.Type),
			Responsible: models.ResponsiblePolicy(ss.Responsible),
		}
		if err := upsert(s.tx, &st, map[string]any{"template_id": tpl.ID, "name": ss.Name}, "type", "responsible"); err != nil {
			return fmt.Errorf("state %q: %w", ss.Name, err)
		}
		states[ss.Name] = st.ID
		for _, name := range ss.ResponsibleGroups {
			rg := models.StateResponsibleGroup{StateID: st.ID, GroupID: s.groups[name]}
			if err := s.tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rg).Error; err != nil {
				return fmt.Errorf("state %q responsible group %q: %w", ss.Name, name, err)
			}
		}
		for i, fs := range ss.Fields {
			if err := s.field(st.ID, i+1, fs); err != nil {
				return fmt.Errorf("state %q field %q: %w", ss.Name, fs.Name, err)
			}
		}
	}

	for _, ss := range ts.States {
		for _, tr := range ss.Transitions {
			for _, g := range s.grantees(tr.Roles, tr.Groups) {
				row := models.StateTransition{StateID: states[ss.Name], ToStateID: states[tr.To], Role: g.role, GroupID: g.group}
				keys := map[string]any{"state_id": row.StateID, "to_state_id": row.ToStateID, "role": g.role, "group_id": g.group}
				if err := ensure(s.tx, &row, keys); err != nil {
					return fmt.Errorf("transition %q -> %q: %w", ss.Name, tr.To, err)
				}
			}
		}
	}
	return nil
}

func (s *seeder) field(stateID uint, position int, fs config.FieldSeed) error {
	f := models.Field{
		StateID:     stateID,
		Name:        fs.Name,
		Type:        models.FieldType(fs.Type),
		Description: fs.Description,
		Position:    position,
		IsRequired:  fs.Required,
		MinValue:    fs.Min,
		MaxValue:    fs.Max,
		MaxLength:   fs.MaxLength,
		PCRECheck:   fs.Check,
		PCRESearch:  fs.Search,
		PCREReplace: fs.Replace,
	}
	if f.Type != models.FieldList {
		f.DefaultValue = fs.Default
	}
	keys := map[string]any{"state_id": stateID, "name": fs.Name, "removed_at": nil}
	if err := ensure(s.tx, &f, keys,
		"description", "position", "is_required", "min_value", "max_value", "max_length",
		"default_value", "pcre_check", "pcre_search", "pcre_replace"); err != nil {
		return err
	}
	if string(f.Type) != fs.Type {
		return fmt.Errorf("type is %s and cannot become %s", f.Type, fs.Type)
	}

	for _, is := range fs.Items {
		item := models.ListItem{FieldID: f.ID, Value: is.Value, Text: is.Text}
		if err := upsert(s.tx, &item, map[string]any{"field_id": f.ID, "value": is.Value}, "text"); err != nil {
			return fmt.Errorf("item %d: %w", is.Value, err)
		}
		f.ListItems = append(f.ListItems, item)
	}
	if f.Type == models.FieldList && fs.Default != nil {
		i := slices.IndexFunc(f.ListItems, func(it models.ListItem) bool { return it.Text == *fs.Default })
		if i < 0 {
			return fmt.Errorf("default %q is not an item", *fs.Default)
		}
		def := strconv.FormatUint(uint64(f.ListItems[i].ID), 10)
		f.DefaultValue = &def
		if err := s.tx.Model(&models.Field{}).Where("id = ?", f.ID).Update("default_value", def).Error; err != nil {
			return err
		}
	}

	_, err := field.For(&f)
	return err
}

// upsert inserts row or updates the listed columns of the row matching keys,
// which must cover a unique index. row is reloaded afterwards.
func upsert[T any](tx *gorm.DB, row *T, keys map[string]any, update ...string) error {
	cols := make([]clause.Column, 0, len(keys))
	for _, name := range slices.Sorted(maps.Keys(keys)) {
		cols = append(cols, clause.Column{Name: name})
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   cols,
		DoUpdates: clause.AssignmentColumns(update),
	}).Create(row).Error; err != nil {
		return err
	}
	var found T
	if err := tx.Where(keys).First(&found).Error; err != nil {
		return err
	}
	*row = found
	return nil
}

// ensure is upsert for tables without a unique index over keys.
func ensure[T any](tx *gorm.DB, row *T, keys map[string]any, update ...string) error {
	var found T
	err := tx.Where(keys).First(&found).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return tx.Create(row).Error
	case err != nil:
		return err
	}
	if len(update) > 0 {
		if err := tx.Model(&found).Select(update).Updates(row).Error; err != nil {
			return err
		}
	}
	var fresh T
	if err := tx.Where(keys).First(&fresh).Error; err != nil {
		return err
	}
	*row = fresh
	return nil
}

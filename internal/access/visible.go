package access

import (
	"fmt"
	"slices"

	"github.com/zulandar/docket/internal/models"
	"gorm.io/gorm"
)

// ViewableTemplates returns the ids of templates whose issues the actor may
// view through the anyone role or one of their groups.
func ViewableTemplates(tx *gorm.DB, actor *models.User) ([]uint, error) {
	var ids []uint
	groups := tx.Session(&gorm.Session{NewDB: true}).Model(&models.Membership{}).
		Select("group_id").Where("user_id = ?", actor.ID)
	err := tx.Model(&models.TemplatePermission{}).
		Distinct("template_id").
		Where("permission = ?", string(IssueView)).
		Where(tx.Session(&gorm.Session{NewDB: true}).
			Where("role = ?", models.RoleAnyone).
			Or("group_id IN (?)", groups)).
		Pluck("template_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("access: viewable templates of user %d: %w", actor.ID, err)
	}
	return ids, nil
}

// Visible filters ids down to the issues the actor may view: authored by
// them, assigned to them, or in a viewable template. Unknown ids are
// dropped. The result is sorted and free of duplicates.
func Visible(tx *gorm.DB, actor *models.User, ids []uint) ([]uint, error) {
	if actor == nil || actor.IsDisabled || len(ids) == 0 {
		return nil, nil
	}
	wanted := slices.Clone(ids)
	slices.Sort(wanted)
	wanted = slices.Compact(wanted)

	templates, err := ViewableTemplates(tx, actor)
	if err != nil {
		return nil, err
	}

	cond := tx.Session(&gorm.Session{NewDB: true}).
		Where("issues.author_id = ?", actor.ID).
		Or("issues.responsible_id = ?", actor.ID)
	if len(templates) > 0 {
		cond = cond.Or("states.template_id IN ?", templates)
	}

	var visible []uint
	err = tx.Model(&models.Issue{}).
		Joins("JOIN states ON states.id = issues.state_id").
		Where("issues.id IN ?", wanted).
		Where(cond).
		Order("issues.id").
		Pluck("issues.id", &visible).Error
	if err != nil {
		return nil, fmt.Errorf("access: visible issues of user %d: %w", actor.ID, err)
	}
	return visible, nil
}

// IsVisible reports whether a single issue is visible to the actor.
func IsVisible(tx *gorm.DB, actor *models.User, id uint) (bool, error) {
	ids, err := Visible(tx, actor, []uint{id})
	if err != nil {
		return false, err
	}
	return len(ids) == 1, nil
}

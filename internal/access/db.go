package access

import (
	"fmt"
	"time"

	"github.com/zulandar/docket/internal/models"
	"gorm.io/gorm"
)

// DB resolves permissions from template permission rows and declared
// transitions. Locked templates accept no new issues. Suspended projects,
// suspended issues and frozen issues accept no changes.
type DB struct {
	// Now returns the reference time for suspension and freeze windows.
	Now func() time.Time
}

// NewDB returns a resolver using the wall clock.
func NewDB() *DB {
	return &DB{Now: time.Now}
}

func (r *DB) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

// IsGranted implements Resolver.
func (r *DB) IsGranted(tx *gorm.DB, actor *models.User, action Action, subjects ...any) (bool, error) {
	if actor == nil || actor.IsDisabled {
		return false, nil
	}
	if action == IssueCreate {
		tpl, ok := subject[*models.Template](subjects, 0)
		if !ok {
			return false, fmt.Errorf("access: %s needs a template subject", action)
		}
		return r.canCreate(tx, actor, tpl)
	}

	issue, ok := subject[*models.Issue](subjects, 0)
	if !ok {
		return false, fmt.Errorf("access: %s needs an issue subject", action)
	}
	tpl := &issue.State.Template
	if tpl.ID == 0 {
		return false, fmt.Errorf("access: issue %d loaded without its template", issue.ID)
	}
	now := r.now()
	suspended := issue.IsSuspendedAt(now)
	frozen := issue.IsFrozenAt(now, tpl.FrozenTime)
	halted := tpl.Project.IsSuspended

	switch action {
	case IssueView:
		if isAuthor(actor, issue) || isResponsible(actor, issue) {
			return true, nil
		}
		return r.has(tx, actor, issue, tpl.ID, IssueView)

	case IssueEdit, DependencyAdd, DependencyRemove, FileAttach, FileDelete, CommentAdd:
		if halted || suspended || frozen {
			return false, nil
		}
		return r.has(tx, actor, issue, tpl.ID, action)

	case CommentPrivateAdd:
		if halted || suspended || frozen {
			return false, nil
		}
		if ok, err := r.has(tx, actor, issue, tpl.ID, CommentAdd); err != nil || !ok {
			return false, err
		}
		return r.has(tx, actor, issue, tpl.ID, CommentPrivateAdd)

	case CommentPrivateRead:
		return r.has(tx, actor, issue, tpl.ID, CommentPrivateRead)

	case IssueReassign:
		if halted || suspended || issue.IsClosed() || issue.State.Responsible != models.ResponsibleAssign {
			return false, nil
		}
		return r.has(tx, actor, issue, tpl.ID, IssueReassign)

	case IssueSuspend:
		if halted || suspended || issue.IsClosed() {
			return false, nil
		}
		return r.has(tx, actor, issue, tpl.ID, IssueSuspend)

	case IssueResume:
		if halted || !suspended {
			return false, nil
		}
		return r.has(tx, actor, issue, tpl.ID, IssueResume)

	case IssueDelete:
		if halted {
			return false, nil
		}
		return r.has(tx, actor, issue, tpl.ID, IssueDelete)

	case StateChange:
		target, ok := subject[*models.State](subjects, 1)
		if !ok {
			return false, fmt.Errorf("access: %s needs a destination state", action)
		}
		if halted || suspended || frozen || target.TemplateID != tpl.ID || target.ID == issue.StateID {
			return false, nil
		}
		return r.canTransit(tx, actor, issue, target)
	}
	return false, fmt.Errorf("access: unknown action %q", action)
}

func (r *DB) canCreate(tx *gorm.DB, actor *models.User, tpl *models.Template) (bool, error) {
	if tpl.IsLocked || tpl.Project.IsSuspended {
		return false, nil
	}
	var initial int64
	if err := tx.Model(&models.State{}).
		Where("template_id = ? AND type = ?", tpl.ID, models.StateInitial).
		Count(&initial).Error; err != nil {
		return false, fmt.Errorf("access: initial state of template %d: %w", tpl.ID, err)
	}
	if initial == 0 {
		return false, nil
	}
	return r.has(tx, actor, nil, tpl.ID, IssueCreate)
}

// canTransit looks for a declared transition from the issue's state to
// target granted to one of the actor's roles or groups.
func (r *DB) canTransit(tx *gorm.DB, actor *models.User, issue *models.Issue, target *models.State) (bool, error) {
	var count int64
	err := tx.Model(&models.StateTransition{}).
		Where("state_id = ? AND to_state_id = ?", issue.StateID, target.ID).
		Where(r.grantee(tx, actor, issue)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("access: transitions of issue %d: %w", issue.ID, err)
	}
	return count > 0, nil
}

// has reports whether a permission row of the template grants action to
// the actor. A nil issue means only the anyone role and groups apply.
func (r *DB) has(tx *gorm.DB, actor *models.User, issue *models.Issue, templateID uint, action Action) (bool, error) {
	var count int64
	err := tx.Model(&models.TemplatePermission{}).
		Where("template_id = ? AND permission = ?", templateID, string(action)).
		Where(r.grantee(tx, actor, issue)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("access: permission %s on template %d: %w", action, templateID, err)
	}
	return count > 0, nil
}

// grantee builds the role-or-group condition shared by permission and
// transition rows.
func (r *DB) grantee(tx *gorm.DB, actor *models.User, issue *models.Issue) *gorm.DB {
	roles := []string{models.RoleAnyone}
	if issue != nil && isAuthor(actor, issue) {
		roles = append(roles, models.RoleAuthor)
	}
	if issue != nil && isResponsible(actor, issue) {
		roles = append(roles, models.RoleResponsible)
	}
	groups := tx.Session(&gorm.Session{NewDB: true}).Model(&models.Membership{}).
		Select("group_id").Where("user_id = ?", actor.ID)
	return tx.Session(&gorm.Session{NewDB: true}).
		Where("role IN ?", roles).
		Or("group_id IN (?)", groups)
}

func isAuthor(actor *models.User, issue *models.Issue) bool {
	return issue.AuthorID == actor.ID
}

func isResponsible(actor *models.User, issue *models.Issue) bool {
	return issue.ResponsibleID != nil && *issue.ResponsibleID == actor.ID
}

func subject[T any](subjects []any, i int) (T, bool) {
	var zero T
	if i >= len(subjects) {
		return zero, false
	}
	v, ok := subjects[i].(T)
	return v, ok
}

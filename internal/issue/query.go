package issue

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/zulandar/docket/internal/access"
	"github.com/zulandar/docket/internal/audit"
	"github.com/zulandar/docket/internal/field"
	"github.com/zulandar/docket/internal/models"
	"gorm.io/gorm"
)

// Value is the logical value of one field of an issue.
type Value struct {
	Field models.Field
	Value any
}

// Detail is an issue with its values read back through the field catalog.
type Detail struct {
	Issue  models.Issue
	Values []Value
	// Watching reports whether the actor watches the issue.
	Watching     bool
	Dependencies []uint
}

// Get returns an issue the actor may view.
func (s *Service) Get(ctx context.Context, actor *models.User, issueID uint) (*Detail, error) {
	var out *Detail
	err := s.run(ctx, "get", actor, func(c *cmd) error {
		issue, err := c.loadIssue(issueID)
		if err != nil {
			return err
		}
		if err := c.authorize(access.IssueView, issue); err != nil {
			return err
		}
		current, err := c.currentValues(issue.ID)
		if err != nil {
			return err
		}
		env := c.env()
		values := make([]Value, 0, len(current))
		for _, row := range current {
			facade, err := field.For(&row.Field)
			if err != nil {
				return fmt.Errorf("issue: %w", err)
			}
			v, err := c.readValue(formField{def: &row.Field, facade: facade}, row, env)
			if err != nil {
				return err
			}
			values = append(values, Value{Field: row.Field, Value: v})
		}
		slices.SortFunc(values, func(a, b Value) int {
			if a.Field.StateID != b.Field.StateID {
				return int(a.Field.StateID) - int(b.Field.StateID)
			}
			return a.Field.Position - b.Field.Position
		})

		deps, err := c.dependencies(issue.ID)
		if err != nil {
			return err
		}
		var watching int64
		if err := c.tx.Model(&models.Watcher{}).
			Where("issue_id = ? AND user_id = ?", issue.ID, c.actor.ID).
			Count(&watching).Error; err != nil {
			return fmt.Errorf("issue: watchers of %d: %w", issue.ID, err)
		}
		out = &Detail{Issue: *issue, Values: values, Watching: watching > 0, Dependencies: deps}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// History returns the audit trail of an issue. Private comments are
// included only for actors allowed to read them.
func (s *Service) History(ctx context.Context, actor *models.User, issueID uint) ([]audit.Entry, error) {
	var out []audit.Entry
	err := s.run(ctx, "history", actor, func(c *cmd) error {
		issue, err := c.loadIssue(issueID)
		if err != nil {
			return err
		}
		if err := c.authorize(access.IssueView, issue); err != nil {
			return err
		}
		private, err := c.s.access.IsGranted(c.tx, c.actor, access.CommentPrivateRead, issue)
		if err != nil {
			return fmt.Errorf("issue: authorize %s: %w", access.CommentPrivateRead, err)
		}
		out, err = audit.History(c.tx, issue.ID, private)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FieldDefault is an active field of a state with its default resolved for
// the actor.
type FieldDefault struct {
	Field   models.Field
	Default any
}

// StateFields returns the active fields of a state with their defaults. The
// actor must be able to create issues in the state's template or view its
// issues.
func (s *Service) StateFields(ctx context.Context, actor *models.User, stateID uint) ([]FieldDefault, error) {
	var out []FieldDefault
	err := s.run(ctx, "state-fields", actor, func(c *cmd) error {
		state, err := c.loadState(stateID)
		if err != nil {
			return err
		}
		ok, err := c.s.access.IsGranted(c.tx, c.actor, access.IssueCreate, &state.Template)
		if err != nil {
			return fmt.Errorf("issue: authorize %s: %w", access.IssueCreate, err)
		}
		if !ok {
			viewable, err := access.ViewableTemplates(c.tx, c.actor)
			if err != nil {
				return fmt.Errorf("issue: %w", err)
			}
			if !slices.Contains(viewable, state.TemplateID) {
				return denied(access.IssueView)
			}
		}
		fields, err := c.activeFields(state.ID)
		if err != nil {
			return err
		}
		env := c.env()
		out = make([]FieldDefault, len(fields))
		for i := range fields {
			facade, err := field.For(&fields[i])
			if err != nil {
				return fmt.Errorf("issue: %w", err)
			}
			out[i] = FieldDefault{Field: fields[i], Default: facade.Default(env)}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// File returns an attachment of an issue the actor may view. Removed files
// are not found.
func (s *Service) File(ctx context.Context, actor *models.User, fileID uint) (*models.File, error) {
	var out models.File
	err := s.run(ctx, "file", actor, func(c *cmd) error {
		if err := c.tx.Where("removed_at IS NULL").Take(&out, fileID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("file", fileID)
			}
			return fmt.Errorf("issue: load file %d: %w", fileID, err)
		}
		issue, err := c.loadIssue(out.IssueID)
		if err != nil {
			return err
		}
		return c.authorize(access.IssueView, issue)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

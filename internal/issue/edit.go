package issue

import (
	"context"
	"fmt"
	"sort"

	"github.com/zulandar/docket/internal/access"
	"github.com/zulandar/docket/internal/models"
)

// UpdateIssue holds the input of Update. A nil Subject keeps the current one.
type UpdateIssue struct {
	IssueID uint
	Subject *string
	Fields  map[uint]any
}

// Update edits the subject and the values the issue already carries.
// Omitted fields keep their values. Only fields of the current state are
// required. An edit that changes nothing appends no event.
func (s *Service) Update(ctx context.Context, actor *models.User, in UpdateIssue) error {
	return s.run(ctx, "update", actor, func(c *cmd) error {
		issue, err := c.loadIssue(in.IssueID)
		if err != nil {
			return err
		}
		if err := c.authorize(access.IssueEdit, issue); err != nil {
			return err
		}

		subject := issue.Subject
		if in.Subject != nil && *in.Subject != "" {
			if subject, err = c.checkSubject(*in.Subject); err != nil {
				return err
			}
		}

		current, err := c.currentValues(issue.ID)
		if err != nil {
			return err
		}
		fields := carriedFields(current)
		env := c.env()
		forms, normalized, err := c.validate(fields, in.Fields, env, c.keepOrDefault(current, env),
			func(f *models.Field) bool { return f.StateID != issue.StateID })
		if err != nil {
			return err
		}
		writes, err := c.planValues(forms, normalized, current)
		if err != nil {
			return err
		}
		if subject == issue.Subject && len(writes) == 0 {
			return nil
		}

		ev, err := c.appendEvent(models.EventIssueEdited, issue, nil)
		if err != nil {
			return err
		}
		if subject != issue.Subject {
			oldID, newID, err := c.subjectChange(issue.Subject, subject)
			if err != nil {
				return err
			}
			if _, err := c.trail.AppendChange(c.tx, ev, nil, oldID, newID); err != nil {
				return err
			}
			if err := c.saveIssue(issue, map[string]any{"subject": subject}); err != nil {
				return err
			}
			issue.Subject = subject
		}
		if err := c.applyValues(issue, writes, ev); err != nil {
			return fmt.Errorf("issue: update %d: %w", issue.ID, err)
		}
		return nil
	})
}

// carriedFields returns the non-removed fields an issue holds values for,
// ordered by state then position.
func carriedFields(current map[uint]*models.FieldValue) []models.Field {
	fields := make([]models.Field, 0, len(current))
	for _, row := range current {
		if row.Field.IsRemoved() {
			continue
		}
		fields = append(fields, row.Field)
	}
	sort.Slice(fields, func(i, j int) bool {
		if fields[i].StateID != fields[j].StateID {
			return fields[i].StateID < fields[j].StateID
		}
		if fields[i].Position != fields[j].Position {
			return fields[i].Position < fields[j].Position
		}
		return fields[i].ID < fields[j].ID
	})
	return fields
}

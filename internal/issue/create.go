package issue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/zulandar/docket/internal/access"
	"github.com/zulandar/docket/internal/field"
	"github.com/zulandar/docket/internal/intern"
	"github.com/zulandar/docket/internal/models"
	"github.com/zulandar/docket/internal/workflow"
)

// SubjectMaxLength bounds issue subjects.
const SubjectMaxLength = 250

// CreateIssue holds the input of Create.
type CreateIssue struct {
	TemplateID    uint
	Subject       string
	ResponsibleID *uint
	Fields        map[uint]any
}

// CloneIssue holds the input of Clone.
type CloneIssue struct {
	IssueID       uint
	Subject       string
	ResponsibleID *uint
	Fields        map[uint]any
}

// Create opens a new issue in the initial state of a template. When the
// initial state assigns a responsible, an assignment event follows the
// creation event.
func (s *Service) Create(ctx context.Context, actor *models.User, in CreateIssue) (*models.Issue, error) {
	var created *models.Issue
	err := s.run(ctx, "create", actor, func(c *cmd) error {
		tpl, err := c.loadTemplate(in.TemplateID)
		if err != nil {
			return err
		}
		if err := c.authorize(access.IssueCreate, tpl); err != nil {
			return err
		}
		env := c.env()
		created, err = c.open(tpl, nil, in.Subject, in.ResponsibleID, in.Fields, defaults(env), env)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Clone opens a new issue in the template of an existing one. Values the
// origin carries for fields of the initial state are copied unless the
// input overrides them.
func (s *Service) Clone(ctx context.Context, actor *models.User, in CloneIssue) (*models.Issue, error) {
	var created *models.Issue
	err := s.run(ctx, "clone", actor, func(c *cmd) error {
		origin, err := c.loadIssue(in.IssueID)
		if err != nil {
			return err
		}
		if err := c.authorize(access.IssueView, origin); err != nil {
			return err
		}
		tpl := &origin.State.Template
		if err := c.authorize(access.IssueCreate, tpl); err != nil {
			return err
		}
		current, err := c.currentValues(origin.ID)
		if err != nil {
			return err
		}
		env := c.env()
		created, err = c.open(tpl, origin, in.Subject, in.ResponsibleID, in.Fields, c.keepOrDefault(current, env), env)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// open is the shared body of Create and Clone, run after authorization.
func (c *cmd) open(tpl *models.Template, origin *models.Issue, subject string, responsibleID *uint, input map[uint]any, fill fillFunc, env field.Env) (*models.Issue, error) {
	state, err := c.initialState(tpl)
	if err != nil {
		return nil, err
	}
	var responsible *models.User
	if state.Responsible == models.ResponsibleAssign {
		if responsible, err = c.resolveResponsible(state, responsibleID); err != nil {
			return nil, err
		}
	}

	subject, err = c.checkSubject(subject)
	if err != nil {
		return nil, err
	}
	fields, err := c.activeFields(state.ID)
	if err != nil {
		return nil, err
	}
	forms, normalized, err := c.validate(fields, input, env, fill, nil)
	if err != nil {
		return nil, err
	}

	issue := &models.Issue{
		Subject:   subject,
		AuthorID:  c.actor.ID,
		CreatedAt: c.now,
		ChangedAt: c.now,
	}
	if origin != nil {
		issue.OriginID = &origin.ID
	}
	workflow.Enter(issue, state, c.now, responsible)
	if err := c.tx.Omit("State", "Author", "Responsible", "Values").Create(issue).Error; err != nil {
		return nil, fmt.Errorf("issue: create: %w", err)
	}
	issue.Author = *c.actor

	if _, err := c.appendEvent(models.EventIssueCreated, issue, i64(int64(state.ID))); err != nil {
		return nil, err
	}
	writes, err := c.planValues(forms, normalized, nil)
	if err != nil {
		return nil, err
	}
	if err := c.applyValues(issue, writes, nil); err != nil {
		return nil, err
	}
	if responsible != nil {
		if _, err := c.appendEvent(models.EventIssueAssigned, issue, i64(int64(responsible.ID))); err != nil {
			return nil, err
		}
	}
	return issue, nil
}

// checkSubject trims and bounds a subject.
func (c *cmd) checkSubject(subject string) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", c.invalid(Violation{Field: "subject", Key: "subject.blank", Message: c.translate("subject.blank")})
	}
	if utf8.RuneCountInString(subject) > SubjectMaxLength {
		return "", c.invalid(Violation{
			Field:   "subject",
			Key:     field.MsgTooLong,
			Message: c.translate(field.MsgTooLong, SubjectMaxLength),
		})
	}
	return subject, nil
}

// subjectChange interns both subjects for a change record.
func (c *cmd) subjectChange(oldSubject, newSubject string) (*int64, *int64, error) {
	oldID, err := intern.String(c.tx, oldSubject)
	if err != nil {
		return nil, nil, err
	}
	newID, err := intern.String(c.tx, newSubject)
	if err != nil {
		return nil, nil, err
	}
	return i64(int64(oldID)), i64(int64(newID)), nil
}

// resolveResponsible loads and checks the user to assign, mapping workflow
// errors into the command taxonomy.
func (c *cmd) resolveResponsible(state *models.State, userID *uint) (*models.User, error) {
	user, err := workflow.ResolveResponsible(c.tx, state, userID)
	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, workflow.ErrResponsibleRequired):
		return nil, c.invalid(Violation{
			Field:   "responsible",
			Key:     "responsible.required",
			Message: c.translate("responsible.required"),
		})
	case errors.Is(err, workflow.ErrUnknownUser):
		return nil, fmt.Errorf("issue: %v: %w", err, ErrNotFound)
	case errors.Is(err, workflow.ErrNotEligible):
		return nil, fmt.Errorf("issue: %v: %w", err, ErrAccessDenied)
	}
	return nil, err
}

package issue

import (
	"context"
	"time"

	"github.com/zulandar/docket/internal/access"
	"github.com/zulandar/docket/internal/field"
	"github.com/zulandar/docket/internal/models"
	"github.com/zulandar/docket/internal/workflow"
)

// ChangeState holds the input of ChangeState.
type ChangeState struct {
	IssueID       uint
	StateID       uint
	ResponsibleID *uint
	Fields        map[uint]any
}

// ReassignIssue holds the input of Reassign.
type ReassignIssue struct {
	IssueID       uint
	ResponsibleID uint
}

// SuspendIssue holds the input of Suspend. Date is "YYYY-MM-DD" in the
// actor's timezone.
type SuspendIssue struct {
	IssueID uint
	Date    string
}

// ChangeState moves an issue into another state of its template. The whole
// active field set of the destination is validated: omitted fields keep a
// value the issue already carries or take their default. Entering a state
// that assigns appends an assignment event after the transition event.
func (s *Service) ChangeState(ctx context.Context, actor *models.User, in ChangeState) error {
	return s.run(ctx, "change-state", actor, func(c *cmd) error {
		issue, err := c.loadIssue(in.IssueID)
		if err != nil {
			return err
		}
		target, err := c.loadState(in.StateID)
		if err != nil {
			return err
		}
		// Issues never leave their template.
		if target.TemplateID != issue.State.TemplateID {
			return notFound("state", in.StateID)
		}
		if target.ID == issue.StateID {
			return denied(access.StateChange)
		}
		if err := c.authorize(access.StateChange, issue, target); err != nil {
			return err
		}

		var responsible *models.User
		if workflow.Classify(issue, target).MustAssign {
			if responsible, err = c.resolveResponsible(target, in.ResponsibleID); err != nil {
				return err
			}
		}

		current, err := c.currentValues(issue.ID)
		if err != nil {
			return err
		}
		fields, err := c.activeFields(target.ID)
		if err != nil {
			return err
		}
		env := c.env()
		forms, normalized, err := c.validate(fields, in.Fields, env, c.keepOrDefault(current, env), nil)
		if err != nil {
			return err
		}
		writes, err := c.planValues(forms, normalized, current)
		if err != nil {
			return err
		}

		out := workflow.Enter(issue, target, c.now, responsible)
		if err := c.saveIssue(issue, map[string]any{
			"state_id":       issue.StateID,
			"closed_at":      issue.ClosedAt,
			"responsible_id": issue.ResponsibleID,
		}); err != nil {
			return err
		}
		ev, err := c.appendEvent(out.Event, issue, i64(int64(target.ID)))
		if err != nil {
			return err
		}
		if err := c.applyValues(issue, writes, ev); err != nil {
			return err
		}
		if responsible != nil {
			if _, err := c.appendEvent(models.EventIssueAssigned, issue, i64(int64(responsible.ID))); err != nil {
				return err
			}
		}
		return nil
	})
}

// Reassign hands an open issue to another eligible user. Reassigning to
// the current responsible does nothing.
func (s *Service) Reassign(ctx context.Context, actor *models.User, in ReassignIssue) error {
	return s.run(ctx, "reassign", actor, func(c *cmd) error {
		issue, err := c.loadIssue(in.IssueID)
		if err != nil {
			return err
		}
		if err := c.authorize(access.IssueReassign, issue); err != nil {
			return err
		}
		if issue.ResponsibleID != nil && *issue.ResponsibleID == in.ResponsibleID {
			return nil
		}
		user, err := c.resolveResponsible(&issue.State, &in.ResponsibleID)
		if err != nil {
			return err
		}
		if err := c.saveIssue(issue, map[string]any{"responsible_id": user.ID}); err != nil {
			return err
		}
		issue.ResponsibleID = &user.ID
		issue.Responsible = user
		_, err = c.appendEvent(models.EventIssueAssigned, issue, i64(int64(user.ID)))
		return err
	})
}

// Suspend postpones an issue until local midnight of the given date, which
// must lie in the future.
func (s *Service) Suspend(ctx context.Context, actor *models.User, in SuspendIssue) error {
	return s.run(ctx, "suspend", actor, func(c *cmd) error {
		issue, err := c.loadIssue(in.IssueID)
		if err != nil {
			return err
		}
		if err := c.authorize(access.IssueSuspend, issue); err != nil {
			return err
		}
		resumes, err := time.ParseInLocation(field.DateLayout, in.Date, c.location())
		if err != nil {
			return badRequest(c.translate(field.MsgInvalid))
		}
		if !resumes.After(c.now) {
			return badRequest(c.translate("date.future"))
		}
		if err := c.saveIssue(issue, map[string]any{"resumes_at": resumes}); err != nil {
			return err
		}
		issue.ResumesAt = &resumes
		_, err = c.appendEvent(models.EventIssueSuspended, issue, i64(resumes.Unix()))
		return err
	})
}

// Resume lifts the suspension of an issue.
func (s *Service) Resume(ctx context.Context, actor *models.User, issueID uint) error {
	return s.run(ctx, "resume", actor, func(c *cmd) error {
		issue, err := c.loadIssue(issueID)
		if err != nil {
			return err
		}
		if err := c.authorize(access.IssueResume, issue); err != nil {
			return err
		}
		if err := c.saveIssue(issue, map[string]any{"resumes_at": nil}); err != nil {
			return err
		}
		issue.ResumesAt = nil
		_, err = c.appendEvent(models.EventIssueResumed, issue, nil)
		return err
	})
}

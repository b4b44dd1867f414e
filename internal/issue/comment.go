package issue

import (
	"context"
	"fmt"
	"strings"

	"github.com/zulandar/docket/internal/access"
	"github.com/zulandar/docket/internal/models"
)

// AddComment holds the input of Comment.
type AddComment struct {
	IssueID uint
	Body    string
	Private bool
}

// Comment appends a public or private comment.
func (s *Service) Comment(ctx context.Context, actor *models.User, in AddComment) error {
	return s.run(ctx, "comment", actor, func(c *cmd) error {
		issue, err := c.loadIssue(in.IssueID)
		if err != nil {
			return err
		}
		action, typ := access.CommentAdd, models.EventPublicComment
		if in.Private {
			action, typ = access.CommentPrivateAdd, models.EventPrivateComment
		}
		if err := c.authorize(action, issue); err != nil {
			return err
		}
		body := strings.TrimSpace(in.Body)
		if body == "" {
			return badRequest(c.translate("comment.blank"))
		}
		ev, err := c.appendEvent(typ, issue, nil)
		if err != nil {
			return err
		}
		comment := models.Comment{EventID: ev.ID, IssueID: issue.ID, Body: body, IsPrivate: in.Private}
		if err := c.tx.Create(&comment).Error; err != nil {
			return fmt.Errorf("issue: comment on %d: %w", issue.ID, err)
		}
		return nil
	})
}

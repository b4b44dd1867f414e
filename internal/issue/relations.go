package issue

import (
	"context"
	"fmt"

	"github.com/zulandar/docket/internal/access"
	"github.com/zulandar/docket/internal/models"
)

// MarkAsRead records the current time as the actor's last read of every
// visible issue in ids.
func (s *Service) MarkAsRead(ctx context.Context, actor *models.User, ids []uint) error {
	return s.run(ctx, "mark-read", actor, func(c *cmd) error {
		visible, err := c.unlink(&models.LastRead{}, ids)
		if err != nil || len(visible) == 0 {
			return err
		}
		rows := make([]models.LastRead, len(visible))
		for i, id := range visible {
			rows[i] = models.LastRead{IssueID: id, UserID: c.actor.ID, ReadAt: c.now}
		}
		if err := insertIgnore(c.tx, &rows); err != nil {
			return fmt.Errorf("issue: mark read: %w", err)
		}
		return nil
	})
}

// MarkAsUnread forgets the actor's last read of every visible issue in ids.
func (s *Service) MarkAsUnread(ctx context.Context, actor *models.User, ids []uint) error {
	return s.run(ctx, "mark-unread", actor, func(c *cmd) error {
		_, err := c.unlink(&models.LastRead{}, ids)
		return err
	})
}

// Watch subscribes the actor to every visible issue in ids.
func (s *Service) Watch(ctx context.Context, actor *models.User, ids []uint) error {
	return s.run(ctx, "watch", actor, func(c *cmd) error {
		visible, err := c.unlink(&models.Watcher{}, ids)
		if err != nil || len(visible) == 0 {
			return err
		}
		rows := make([]models.Watcher, len(visible))
		for i, id := range visible {
			rows[i] = models.Watcher{IssueID: id, UserID: c.actor.ID}
		}
		if err := insertIgnore(c.tx, &rows); err != nil {
			return fmt.Errorf("issue: watch: %w", err)
		}
		return nil
	})
}

// Unwatch unsubscribes the actor from every visible issue in ids.
func (s *Service) Unwatch(ctx context.Context, actor *models.User, ids []uint) error {
	return s.run(ctx, "unwatch", actor, func(c *cmd) error {
		_, err := c.unlink(&models.Watcher{}, ids)
		return err
	})
}

// unlink deletes the actor's rows of a per-user relation for the visible
// issues in ids and returns those issues.
func (c *cmd) unlink(model any, ids []uint) ([]uint, error) {
	visible, err := access.Visible(c.tx, c.actor, ids)
	if err != nil {
		return nil, fmt.Errorf("issue: %w", err)
	}
	if len(visible) == 0 {
		return nil, nil
	}
	err = c.tx.Where("user_id = ? AND issue_id IN ?", c.actor.ID, visible).Delete(model).Error
	if err != nil {
		return nil, fmt.Errorf("issue: unlink %T: %w", model, err)
	}
	return visible, nil
}

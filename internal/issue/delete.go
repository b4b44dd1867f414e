package issue

import (
	"context"
	"fmt"

	"github.com/zulandar/docket/internal/access"
	"github.com/zulandar/docket/internal/models"
)

// Delete removes an issue with its history, values and relations. Blobs of
// its attachments are removed after commit.
func (s *Service) Delete(ctx context.Context, actor *models.User, issueID uint) error {
	return s.run(ctx, "delete", actor, func(c *cmd) error {
		issue, err := c.loadIssue(issueID)
		if err != nil {
			return err
		}
		if err := c.authorize(access.IssueDelete, issue); err != nil {
			return err
		}

		var files []models.File
		if err := c.tx.Where("issue_id = ?", issue.ID).Find(&files).Error; err != nil {
			return fmt.Errorf("issue: files of %d: %w", issue.ID, err)
		}
		events := c.tx.Model(&models.Event{}).Select("id").Where("issue_id = ?", issue.ID)

		steps := []struct {
			name  string
			model any
			query string
			args  []any
		}{
			{"changes", &models.Change{}, "event_id IN (?)", []any{events}},
			{"comments", &models.Comment{}, "issue_id = ?", []any{issue.ID}},
			{"files", &models.File{}, "issue_id = ?", []any{issue.ID}},
			{"events", &models.Event{}, "issue_id = ?", []any{issue.ID}},
			{"values", &models.FieldValue{}, "issue_id = ?", []any{issue.ID}},
			{"dependencies", &models.Dependency{}, "issue_id = ? OR dependency_id = ?", []any{issue.ID, issue.ID}},
			{"watchers", &models.Watcher{}, "issue_id = ?", []any{issue.ID}},
			{"reads", &models.LastRead{}, "issue_id = ?", []any{issue.ID}},
		}
		for _, st := range steps {
			if err := c.tx.Where(st.query, st.args...).Delete(st.model).Error; err != nil {
				return fmt.Errorf("issue: delete %s of %d: %w", st.name, issue.ID, err)
			}
		}
		if err := c.tx.Model(&models.Issue{}).Where("origin_id = ?", issue.ID).
			Update("origin_id", nil).Error; err != nil {
			return fmt.Errorf("issue: detach clones of %d: %w", issue.ID, err)
		}
		if err := c.tx.Delete(&models.Issue{}, issue.ID).Error; err != nil {
			return fmt.Errorf("issue: delete %d: %w", issue.ID, err)
		}

		for _, f := range files {
			c.dropBlob(f)
		}
		return nil
	})
}

package issue

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/zulandar/docket/internal/access"
	"github.com/zulandar/docket/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AddDependencies holds the input of AddDependencies.
type AddDependencies struct {
	IssueID      uint
	Dependencies []uint
}

// RemoveDependencies holds the input of RemoveDependencies.
type RemoveDependencies struct {
	IssueID      uint
	Dependencies []uint
}

// AddDependencies makes an issue depend on others. Ids the actor cannot
// see, the issue itself and existing edges are skipped. Each new edge gets
// its own event.
func (s *Service) AddDependencies(ctx context.Context, actor *models.User, in AddDependencies) error {
	return s.run(ctx, "add-dependencies", actor, func(c *cmd) error {
		issue, err := c.loadIssue(in.IssueID)
		if err != nil {
			return err
		}
		if err := c.authorize(access.DependencyAdd, issue); err != nil {
			return err
		}
		visible, err := access.Visible(c.tx, c.actor, in.Dependencies)
		if err != nil {
			return fmt.Errorf("issue: %w", err)
		}
		existing, err := c.dependencies(issue.ID)
		if err != nil {
			return err
		}
		added := slices.DeleteFunc(visible, func(id uint) bool {
			return id == issue.ID || slices.Contains(existing, id)
		})
		if len(added) == 0 {
			return nil
		}

		edges := make([]models.Dependency, len(added))
		for i, id := range added {
			edges[i] = models.Dependency{IssueID: issue.ID, DependencyID: id}
		}
		err = c.tx.Where("issue_id = ? AND dependency_id IN ?", issue.ID, added).
			Delete(&models.Dependency{}).Error
		if err != nil {
			return fmt.Errorf("issue: dependencies of %d: %w", issue.ID, err)
		}
		if err := insertIgnore(c.tx, &edges); err != nil {
			return fmt.Errorf("issue: dependencies of %d: %w", issue.ID, err)
		}
		for _, id := range added {
			if _, err := c.appendEvent(models.EventDependencyAdded, issue, i64(int64(id))); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveDependencies drops dependency edges of an issue. Ids the actor
// cannot see or that are not dependencies are skipped.
func (s *Service) RemoveDependencies(ctx context.Context, actor *models.User, in RemoveDependencies) error {
	return s.run(ctx, "remove-dependencies", actor, func(c *cmd) error {
		issue, err := c.loadIssue(in.IssueID)
		if err != nil {
			return err
		}
		if err := c.authorize(access.DependencyRemove, issue); err != nil {
			return err
		}
		visible, err := access.Visible(c.tx, c.actor, in.Dependencies)
		if err != nil {
			return fmt.Errorf("issue: %w", err)
		}
		existing, err := c.dependencies(issue.ID)
		if err != nil {
			return err
		}
		removed := slices.DeleteFunc(visible, func(id uint) bool {
			return !slices.Contains(existing, id)
		})
		if len(removed) == 0 {
			return nil
		}

		err = c.tx.Where("issue_id = ? AND dependency_id IN ?", issue.ID, removed).
			Delete(&models.Dependency{}).Error
		if err != nil {
			return fmt.Errorf("issue: dependencies of %d: %w", issue.ID, err)
		}
		for _, id := range removed {
			if _, err := c.appendEvent(models.EventDependencyRemoved, issue, i64(int64(id))); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *cmd) dependencies(issueID uint) ([]uint, error) {
	var ids []uint
	err := c.tx.Model(&models.Dependency{}).Where("issue_id = ?", issueID).
		Order("dependency_id").Pluck("dependency_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("issue: dependencies of %d: %w", issueID, err)
	}
	return ids, nil
}

// insertIgnore inserts rows of a composite-key relation. A concurrent
// writer inserting the same rows is not an error.
func insertIgnore[T any](tx *gorm.DB, rows *[]T) error {
	if len(*rows) == 0 {
		return nil
	}
	err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(rows).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	return err
}

package blob

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/docket/internal/models"
	"gorm.io/gorm"
)

// cronParser accepts standard 5-field expressions and @descriptors.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidSchedule reports whether expr parses as a janitor schedule.
func ValidSchedule(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("blob: schedule %q: %w", expr, err)
	}
	return nil
}

// Janitor removes blobs left behind by deleted attachments. Deleting a
// file only marks its row; blob removal in the command is best effort, so
// the janitor catches what it missed.
type Janitor struct {
	DB     *gorm.DB
	Store  *Store
	Logger *slog.Logger
}

// Sweep deletes the blobs of removed files that still exist and returns
// how many were deleted. Individual failures are logged and skipped.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	var files []models.File
	if err := j.DB.WithContext(ctx).Where("removed_at IS NOT NULL").Find(&files).Error; err != nil {
		return 0, fmt.Errorf("blob: list removed files: %w", err)
	}
	deleted := 0
	for _, f := range files {
		ok, err := j.Store.Exists(f.UUID)
		if err != nil {
			j.logger().Warn("janitor: stat failed", "file", f.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		if err := j.Store.Delete(f.UUID); err != nil {
			j.logger().Warn("janitor: delete failed", "file", f.ID, "error", err)
			continue
		}
		deleted++
	}
	return deleted, nil
}

// Start schedules Sweep on expr and returns a stop function that waits for
// a running sweep to finish.
func (j *Janitor) Start(ctx context.Context, expr string) (func(), error) {
	c := cron.New(cron.WithParser(cronParser))
	_, err := c.AddFunc(expr, func() {
		n, err := j.Sweep(ctx)
		if err != nil {
			j.logger().Error("janitor: sweep failed", "error", err)
			return
		}
		if n > 0 {
			j.logger().Info("janitor: removed orphaned blobs", "count", n)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("blob: schedule %q: %w", expr, err)
	}
	c.Start()
	return func() { <-c.Stop().Done() }, nil
}

func (j *Janitor) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return j.Logger
}

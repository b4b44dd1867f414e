package issue

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/zulandar/docket/internal/access"
	"github.com/zulandar/docket/internal/models"
	"gorm.io/gorm"
)

// FileNameMaxLength bounds stored attachment names.
const FileNameMaxLength = 100

// Upload is an attachment staged by the boundary at TempPath.
type Upload struct {
	Name     string
	Size     int64
	MimeType string
	TempPath string
}

// AttachFile holds the input of Attach.
type AttachFile struct {
	IssueID uint
	File    Upload
}

// Attach stores an uploaded file on an issue.
func (s *Service) Attach(ctx context.Context, actor *models.User, in AttachFile) (*models.File, error) {
	var attached *models.File
	err := s.run(ctx, "attach", actor, func(c *cmd) error {
		issue, err := c.loadIssue(in.IssueID)
		if err != nil {
			return err
		}
		if err := c.authorize(access.FileAttach, issue); err != nil {
			return err
		}
		if in.File.Size > c.s.opts.MaxFileSize {
			return badRequest(c.translate("file.too_large", c.s.opts.MaxFileSize))
		}
		name := sanitizeFileName(in.File.Name)
		if name == "" || in.File.TempPath == "" {
			return badRequest(c.translate("value.invalid"))
		}
		if c.s.opts.Blobs == nil {
			return fmt.Errorf("issue: attach: no blob store configured")
		}

		mime := in.File.MimeType
		if mime == "" {
			mime = "application/octet-stream"
		}
		file := &models.File{
			IssueID:  issue.ID,
			FileName: name,
			FileSize: in.File.Size,
			MimeType: mime,
			UUID:     uuid.NewString(),
		}
		if err := c.tx.Create(file).Error; err != nil {
			return fmt.Errorf("issue: attach to %d: %w", issue.ID, err)
		}
		ev, err := c.appendEvent(models.EventFileAttached, issue, i64(int64(file.ID)))
		if err != nil {
			return err
		}
		file.EventID = &ev.ID
		if err := c.tx.Model(file).Update("event_id", ev.ID).Error; err != nil {
			return fmt.Errorf("issue: attach to %d: %w", issue.ID, err)
		}
		if err := c.s.opts.Blobs.Move(in.File.TempPath, file.UUID); err != nil {
			return fmt.Errorf("issue: store attachment: %w", err)
		}
		attached = file
		return nil
	})
	if err != nil {
		return nil, err
	}
	return attached, nil
}

// DeleteFile marks an attachment removed and drops its blob after commit.
// Deleting an already removed file succeeds without effect.
func (s *Service) DeleteFile(ctx context.Context, actor *models.User, fileID uint) error {
	return s.run(ctx, "delete-file", actor, func(c *cmd) error {
		var file models.File
		if err := c.tx.Take(&file, fileID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("file", fileID)
			}
			return fmt.Errorf("issue: load file %d: %w", fileID, err)
		}
		issue, err := c.loadIssue(file.IssueID)
		if err != nil {
			return err
		}
		if err := c.authorize(access.FileDelete, issue); err != nil {
			return err
		}
		if file.IsRemoved() {
			return nil
		}

		if err := c.tx.Model(&file).Update("removed_at", c.now).Error; err != nil {
			return fmt.Errorf("issue: remove file %d: %w", file.ID, err)
		}
		if _, err := c.appendEvent(models.EventFileDeleted, issue, i64(int64(file.ID))); err != nil {
			return err
		}
		c.dropBlob(file)
		return nil
	})
}

// dropBlob deletes a blob after commit, logging failures.
func (c *cmd) dropBlob(file models.File) {
	blobs, logger := c.s.opts.Blobs, c.logger()
	if blobs == nil {
		return
	}
	c.afterCommit(func() {
		if err := blobs.Delete(file.UUID); err != nil {
			logger.Warn("issue: blob removal failed", "file", file.ID, "uuid", file.UUID, "error", err)
		}
	})
}

// sanitizeFileName strips directories and bounds the length.
func sanitizeFileName(name string) string {
	name = strings.TrimSpace(filepath.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "." || name == "/" {
		return ""
	}
	if r := []rune(name); len(r) > FileNameMaxLength {
		ext := filepath.Ext(name)
		keep := FileNameMaxLength - len([]rune(ext))
		if keep < 1 {
			return string(r[:FileNameMaxLength])
		}
		name = string(r[:keep]) + ext
	}
	return name
}

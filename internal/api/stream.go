package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/docket/internal/access"
	"github.com/zulandar/docket/internal/models"
)

// DefaultFeedInterval is how often the event feed polls for new events.
const DefaultFeedInterval = 3 * time.Second

const feedBatch = 100

// feedEvent is one audit event pushed to feed clients.
type feedEvent struct {
	ID        uint             `json:"id"`
	Type      models.EventType `json:"type"`
	IssueID   uint             `json:"issue_id"`
	Ref       string           `json:"ref"`
	Subject   string           `json:"subject"`
	UserID    uint             `json:"user_id"`
	User      string           `json:"user"`
	CreatedAt time.Time        `json:"created_at"`
}

// feed streams new events on issues the actor may view as server-sent
// events. Clients resume with Last-Event-ID; without it only events newer
// than the connection are sent. Private comments are never streamed.
func (h *handlers) feed(c *gin.Context) {
	actor := actorOf(c)
	ctx := c.Request.Context()

	var lastSeen uint
	if id, err := strconv.ParseUint(c.GetHeader("Last-Event-ID"), 10, 64); err == nil {
		lastSeen = uint(id)
	} else {
		var latest models.Event
		if err := h.db.WithContext(ctx).Order("id DESC").Limit(1).Find(&latest).Error; err != nil {
			h.fail(c, err)
			return
		}
		lastSeen = latest.ID
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	writeSSE(c.Writer, 0, "connected", map[string]uint{"last_event_id": lastSeen})
	c.Writer.Flush()

	ticker := time.NewTicker(h.feedInterval)
	heartbeat := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			writeSSE(c.Writer, 0, "heartbeat", map[string]string{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			c.Writer.Flush()
		case <-ticker.C:
			events, next, err := h.eventsSince(ctx, actor, lastSeen)
			if err != nil {
				h.log.Warn("api: feed poll failed", "user", actor.ID, "error", err)
				continue
			}
			lastSeen = next
			for _, ev := range events {
				writeSSE(c.Writer, ev.ID, string(ev.Type), ev)
			}
			if len(events) > 0 {
				c.Writer.Flush()
			}
		}
	}
}

// eventsSince returns the visible events after lastSeen and the id to
// continue from.
func (h *handlers) eventsSince(ctx context.Context, actor *models.User, lastSeen uint) ([]feedEvent, uint, error) {
	tx := h.db.WithContext(ctx)
	var rows []models.Event
	if err := tx.Preload("User").
		Where("id > ?", lastSeen).
		Order("id").Limit(feedBatch).
		Find(&rows).Error; err != nil {
		return nil, lastSeen, fmt.Errorf("api: events after %d: %w", lastSeen, err)
	}
	if len(rows) == 0 {
		return nil, lastSeen, nil
	}
	next := rows[len(rows)-1].ID

	ids := make([]uint, 0, len(rows))
	for _, ev := range rows {
		ids = append(ids, ev.IssueID)
	}
	visible, err := access.Visible(tx, actor, ids)
	if err != nil {
		return nil, lastSeen, err
	}
	if len(visible) == 0 {
		return nil, next, nil
	}
	var issues []models.Issue
	if err := tx.Preload("State.Template").Find(&issues, visible).Error; err != nil {
		return nil, lastSeen, fmt.Errorf("api: feed issues: %w", err)
	}
	byID := make(map[uint]*models.Issue, len(issues))
	for i := range issues {
		byID[issues[i].ID] = &issues[i]
	}

	var out []feedEvent
	for _, ev := range rows {
		issue, ok := byID[ev.IssueID]
		if !ok || ev.Type == models.EventPrivateComment {
			continue
		}
		out = append(out, feedEvent{
			ID:        ev.ID,
			Type:      ev.Type,
			IssueID:   ev.IssueID,
			Ref:       models.FullID(issue.State.Template.Prefix, issue.ID),
			Subject:   issue.Subject,
			UserID:    ev.UserID,
			User:      ev.User.Fullname,
			CreatedAt: ev.CreatedAt,
		})
	}
	return out, next, nil
}

// writeSSE writes a single SSE event. A zero id omits the id line.
func writeSSE(w io.Writer, id uint, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	if id > 0 {
		fmt.Fprintf(w, "id: %d\n", id)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData)
}

// Package audit appends the immutable event log of issues. Events are never
// updated or deleted through this package; changes hang off exactly one
// event and are only written when the value actually differs.
package audit

import (
	"fmt"
	"time"

	"github.com/zulandar/docket/internal/models"
	"gorm.io/gorm"
)

// Trail appends events and changes within the caller's transaction.
type Trail struct {
	// Now returns the event timestamp. Defaults to time.Now.
	Now func() time.Time
}

func (t Trail) now() time.Time {
	if t.Now == nil {
		return time.Now()
	}
	return t.Now()
}

// Append writes one event for the issue and bumps the issue's changed_at
// to the event time. The returned event carries its assigned id.
func (t Trail) Append(tx *gorm.DB, typ models.EventType, issue *models.Issue, actor *models.User, param *int64) (*models.Event, error) {
	ev := &models.Event{
		Type:      typ,
		IssueID:   issue.ID,
		UserID:    actor.ID,
		CreatedAt: t.now(),
		Parameter: param,
	}
	if err := tx.Omit("User").Create(ev).Error; err != nil {
		return nil, fmt.Errorf("audit: append %s to issue %d: %w", typ, issue.ID, err)
	}
	if err := tx.Model(&models.Issue{}).Where("id = ?", issue.ID).
		Update("changed_at", ev.CreatedAt).Error; err != nil {
		return nil, fmt.Errorf("audit: touch issue %d: %w", issue.ID, err)
	}
	issue.ChangedAt = ev.CreatedAt
	return ev, nil
}

// AppendChange records a field diff of ev. A nil fieldID denotes the
// subject. Equal values produce no row and a nil change.
func (t Trail) AppendChange(tx *gorm.DB, ev *models.Event, fieldID *uint, oldValue, newValue *int64) (*models.Change, error) {
	if sameCell(oldValue, newValue) {
		return nil, nil
	}
	ch := &models.Change{
		EventID:  ev.ID,
		FieldID:  fieldID,
		OldValue: oldValue,
		NewValue: newValue,
	}
	if err := tx.Create(ch).Error; err != nil {
		return nil, fmt.Errorf("audit: change for event %d: %w", ev.ID, err)
	}
	return ch, nil
}

func sameCell(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Entry is one event of an issue's history with its diffs and, for comment
// events, the comment body.
type Entry struct {
	Event   models.Event
	Changes []models.Change
	Comment *models.Comment
	File    *models.File
}

// History returns the events of an issue in creation order. Private
// comments are omitted unless includePrivate is set.
func History(tx *gorm.DB, issueID uint, includePrivate bool) ([]Entry, error) {
	var events []models.Event
	q := tx.Preload("User").Where("issue_id = ?", issueID)
	if !includePrivate {
		q = q.Where("type <> ?", models.EventPrivateComment)
	}
	if err := q.Order("created_at, id").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("audit: history of issue %d: %w", issueID, err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	ids := make([]uint, len(events))
	for i, ev := range events {
		ids[i] = ev.ID
	}

	var changes []models.Change
	if err := tx.Where("event_id IN ?", ids).Order("id").Find(&changes).Error; err != nil {
		return nil, fmt.Errorf("audit: changes of issue %d: %w", issueID, err)
	}
	var comments []models.Comment
	if err := tx.Where("event_id IN ?", ids).Find(&comments).Error; err != nil {
		return nil, fmt.Errorf("audit: comments of issue %d: %w", issueID, err)
	}
	var files []models.File
	if err := tx.Where("event_id IN ?", ids).Find(&files).Error; err != nil {
		return nil, fmt.Errorf("audit: files of issue %d: %w", issueID, err)
	}

	byEvent := make(map[uint]*Entry, len(events))
	entries := make([]Entry, len(events))
	for i, ev := range events {
		entries[i].Event = ev
		byEvent[ev.ID] = &entries[i]
	}
	for _, ch := range changes {
		byEvent[ch.EventID].Changes = append(byEvent[ch.EventID].Changes, ch)
	}
	for i := range comments {
		byEvent[comments[i].EventID].Comment = &comments[i]
	}
	for i := range files {
		if e, ok := byEvent[*files[i].EventID]; ok {
			e.File = &files[i]
		}
	}
	return entries, nil
}

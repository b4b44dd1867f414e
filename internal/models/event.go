package models

import "time"

// EventType categorizes audit trail events.
type EventType string

const (
	EventIssueCreated      EventType = "issue.created"
	EventIssueEdited       EventType = "issue.edited"
	EventStateChanged      EventType = "state.changed"
	EventIssueReopened     EventType = "issue.reopened"
	EventIssueClosed       EventType = "issue.closed"
	EventIssueAssigned     EventType = "issue.assigned"
	EventIssueSuspended    EventType = "issue.suspended"
	EventIssueResumed      EventType = "issue.resumed"
	EventPublicComment     EventType = "comment.public"
	EventPrivateComment    EventType = "comment.private"
	EventFileAttached      EventType = "file.attached"
	EventFileDeleted       EventType = "file.deleted"
	EventDependencyAdded   EventType = "dependency.added"
	EventDependencyRemoved EventType = "dependency.removed"
)

// Event is an append-only audit record. Parameter meaning depends on Type:
// the new state, the assignee, the resume timestamp, the file or the
// dependency issue.
type Event struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Type      EventType `gorm:"size:20;not null"`
	IssueID   uint      `gorm:"not null;index:idx_event_issue"`
	UserID    uint      `gorm:"not null"`
	CreatedAt time.Time `gorm:"index:idx_event_issue"`
	Parameter *int64

	User User `gorm:"foreignKey:UserID"`
}

// Change is a field-level diff of an event. A nil FieldID denotes the subject;
// its values are ids of interned strings.
type Change struct {
	ID       uint  `gorm:"primaryKey;autoIncrement"`
	EventID  uint  `gorm:"not null;index"`
	FieldID  *uint `gorm:"index"`
	OldValue *int64
	NewValue *int64
}

// Comment is the body of a comment event.
type Comment struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	EventID   uint   `gorm:"not null;uniqueIndex"`
	IssueID   uint   `gorm:"not null;index"`
	Body      string `gorm:"type:text;not null"`
	IsPrivate bool   `gorm:"default:false"`
}

// File is an attachment. Removed files keep their row for history.
type File struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	EventID   *uint  `gorm:"uniqueIndex"`
	IssueID   uint   `gorm:"not null;index"`
	FileName  string `gorm:"size:100;not null"`
	FileSize  int64  `gorm:"not null"`
	MimeType  string `gorm:"size:255;not null"`
	UUID      string `gorm:"size:36;not null;uniqueIndex"`
	RemovedAt *time.Time
}

// IsRemoved reports whether the file was deleted.
func (f File) IsRemoved() bool {
	return f.RemovedAt != nil
}

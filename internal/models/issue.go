package models

import (
	"fmt"
	"time"
)

// Issue is an instance of a template, located by its current state.
type Issue struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	StateID       uint   `gorm:"not null;index"`
	AuthorID      uint   `gorm:"not null;index"`
	ResponsibleID *uint  `gorm:"index"`
	OriginID      *uint
	Subject       string `gorm:"size:250;not null"`
	CreatedAt     time.Time
	ChangedAt     time.Time
	ClosedAt      *time.Time
	ResumesAt     *time.Time

	State       State        `gorm:"foreignKey:StateID"`
	Author      User         `gorm:"foreignKey:AuthorID"`
	Responsible *User        `gorm:"foreignKey:ResponsibleID"`
	Values      []FieldValue `gorm:"foreignKey:IssueID"`
}

// IsClosed reports whether the issue is in a final state.
func (i Issue) IsClosed() bool {
	return i.ClosedAt != nil
}

// IsSuspendedAt reports whether the issue is suspended at the given time.
func (i Issue) IsSuspendedAt(now time.Time) bool {
	return i.ResumesAt != nil && i.ResumesAt.After(now)
}

// IsFrozenAt reports whether a closed issue passed its template's freeze horizon.
func (i Issue) IsFrozenAt(now time.Time, frozenDays *int) bool {
	if i.ClosedAt == nil || frozenDays == nil {
		return false
	}
	return now.After(i.ClosedAt.AddDate(0, 0, *frozenDays))
}

// FieldValue is the per-issue storage cell of a field. Value is either an
// inline scalar or the id of an interned row, depending on the field type.
type FieldValue struct {
	ID        uint  `gorm:"primaryKey;autoIncrement"`
	IssueID   uint  `gorm:"not null;uniqueIndex:idx_issue_field"`
	FieldID   uint  `gorm:"not null;uniqueIndex:idx_issue_field"`
	Value     *int64
	CreatedAt time.Time

	Field Field `gorm:"foreignKey:FieldID"`
}

// Dependency is a directed edge: IssueID depends on DependencyID.
type Dependency struct {
	IssueID      uint `gorm:"primaryKey"`
	DependencyID uint `gorm:"primaryKey;index"`
}

// Watcher subscribes a user to an issue.
type Watcher struct {
	IssueID uint `gorm:"primaryKey"`
	UserID  uint `gorm:"primaryKey;index"`
}

// LastRead records when a user last read an issue.
type LastRead struct {
	IssueID uint `gorm:"primaryKey"`
	UserID  uint `gorm:"primaryKey;index"`
	ReadAt  time.Time
}

// FullID renders the human reference of an issue, e.g. "REQ-042".
func FullID(prefix string, id uint) string {
	return fmt.Sprintf("%s-%03d", prefix, id)
}

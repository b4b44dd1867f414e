package models

import "time"

// FieldType tags the kind of a field.
type FieldType string

const (
	FieldCheckbox FieldType = "checkbox"
	FieldDate     FieldType = "date"
	FieldDecimal  FieldType = "decimal"
	FieldDuration FieldType = "duration"
	FieldIssue    FieldType = "issue"
	FieldList     FieldType = "list"
	FieldNumber   FieldType = "number"
	FieldString   FieldType = "string"
	FieldText     FieldType = "text"
)

// Field is a typed data slot of a state. Parameters are kept as text and
// interpreted by the field kind.
type Field struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	StateID     uint      `gorm:"not null;index"`
	Name        string    `gorm:"size:50;not null"`
	Type        FieldType `gorm:"size:10;not null"`
	Description string    `gorm:"size:1000"`
	Position    int       `gorm:"not null"`
	IsRequired  bool      `gorm:"default:false"`
	RemovedAt   *time.Time

	MinValue     *string `gorm:"size:30"`
	MaxValue     *string `gorm:"size:30"`
	MaxLength    *int
	DefaultValue *string `gorm:"type:text"`
	PCRECheck    *string `gorm:"size:500"`
	PCRESearch   *string `gorm:"size:500"`
	PCREReplace  *string `gorm:"size:500"`

	State     State      `gorm:"foreignKey:StateID"`
	ListItems []ListItem `gorm:"foreignKey:FieldID"`
}

// IsRemoved reports whether the field was soft-deleted.
func (f Field) IsRemoved() bool {
	return f.RemovedAt != nil
}

// ListItem is one option of a list field.
type ListItem struct {
	ID      uint   `gorm:"primaryKey;autoIncrement"`
	FieldID uint   `gorm:"not null;uniqueIndex:idx_item_value;uniqueIndex:idx_item_text"`
	Value   int    `gorm:"not null;uniqueIndex:idx_item_value"`
	Text    string `gorm:"size:50;not null;uniqueIndex:idx_item_text"`
}

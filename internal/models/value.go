package models

// StringValue interns short strings (string fields, subjects).
type StringValue struct {
	ID    uint   `gorm:"primaryKey;autoIncrement"`
	Token string `gorm:"size:64;not null;uniqueIndex"`
	Value string `gorm:"size:250;not null"`
}

// DecimalValue interns decimals in canonical text form.
type DecimalValue struct {
	ID    uint   `gorm:"primaryKey;autoIncrement"`
	Value string `gorm:"size:32;not null;uniqueIndex"`
}

// TextValue interns free text.
type TextValue struct {
	ID    uint   `gorm:"primaryKey;autoIncrement"`
	Token string `gorm:"size:64;not null;uniqueIndex"`
	Value string `gorm:"type:text;not null"`
}

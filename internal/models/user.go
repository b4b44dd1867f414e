package models

// User is an actor of the tracker. Timezone and Locale drive date
// interpretation and message translation.
type User struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	Email      string `gorm:"size:254;not null;uniqueIndex"`
	Fullname   string `gorm:"size:50;not null"`
	Timezone   string `gorm:"size:50;default:UTC"`
	Locale     string `gorm:"size:10;default:en-US"`
	IsAdmin    bool   `gorm:"default:false"`
	IsDisabled bool   `gorm:"default:false"`
}

// Group is a set of users, global or scoped to a project.
type Group struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	ProjectID   *uint  `gorm:"index"`
	Name        string `gorm:"size:25;not null"`
	Description string `gorm:"size:100"`
}

// Membership links a user to a group.
type Membership struct {
	GroupID uint `gorm:"primaryKey"`
	UserID  uint `gorm:"primaryKey;index"`
}

package models

import "time"

// Project groups templates. Suspending a project freezes every issue in it.
type Project struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	Name        string `gorm:"size:25;not null;uniqueIndex"`
	Description string `gorm:"size:100"`
	IsSuspended bool   `gorm:"default:false"`
	CreatedAt   time.Time

	Templates []Template `gorm:"foreignKey:ProjectID"`
}

// Template is a workflow definition owning an ordered set of states.
type Template struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	ProjectID   uint   `gorm:"not null;uniqueIndex:idx_template_name"`
	Name        string `gorm:"size:50;not null;uniqueIndex:idx_template_name"`
	Prefix      string `gorm:"size:5;not null"`
	Description string `gorm:"size:100"`
	IsLocked    bool
	// FrozenTime is the number of days after closing when an issue becomes immutable.
	FrozenTime *int

	Project     Project              `gorm:"foreignKey:ProjectID"`
	States      []State              `gorm:"foreignKey:TemplateID"`
	Permissions []TemplatePermission `gorm:"foreignKey:TemplateID"`
}

// StateType classifies a state's position in the workflow.
type StateType string

const (
	StateInitial      StateType = "initial"
	StateIntermediate StateType = "intermediate"
	StateFinal        StateType = "final"
)

// ResponsiblePolicy is applied whenever an issue enters a state.
type ResponsiblePolicy string

const (
	ResponsibleKeep   ResponsiblePolicy = "keep"
	ResponsibleAssign ResponsiblePolicy = "assign"
	ResponsibleRemove ResponsiblePolicy = "remove"
)

// State is a node of a template's workflow.
type State struct {
	ID          uint              `gorm:"primaryKey;autoIncrement"`
	TemplateID  uint              `gorm:"not null;index;uniqueIndex:idx_state_name"`
	Name        string            `gorm:"size:50;not null;uniqueIndex:idx_state_name"`
	Type        StateType         `gorm:"size:12;not null"`
	Responsible ResponsiblePolicy `gorm:"size:10;not null;default:keep"`

	Template          Template                `gorm:"foreignKey:TemplateID"`
	Fields            []Field                 `gorm:"foreignKey:StateID"`
	Transitions       []StateTransition       `gorm:"foreignKey:StateID"`
	ResponsibleGroups []StateResponsibleGroup `gorm:"foreignKey:StateID"`
}

// IsFinal reports whether issues in this state are closed.
func (s State) IsFinal() bool {
	return s.Type == StateFinal
}

// StateTransition allows moving from StateID to ToStateID. Exactly one of
// Role or GroupID is set.
type StateTransition struct {
	ID        uint    `gorm:"primaryKey;autoIncrement"`
	StateID   uint    `gorm:"not null;index"`
	ToStateID uint    `gorm:"not null"`
	Role      *string `gorm:"size:20"`
	GroupID   *uint

	ToState State `gorm:"foreignKey:ToStateID"`
}

// StateResponsibleGroup declares a group whose members may become responsible
// for issues entering the state.
type StateResponsibleGroup struct {
	StateID uint `gorm:"primaryKey"`
	GroupID uint `gorm:"primaryKey"`
}

// System roles used by permission and transition rows.
const (
	RoleAnyone      = "anyone"
	RoleAuthor      = "author"
	RoleResponsible = "responsible"
)

// TemplatePermission grants a permission on issues of a template to a system
// role or to a group. Exactly one of Role or GroupID is set.
type TemplatePermission struct {
	ID         uint    `gorm:"primaryKey;autoIncrement"`
	TemplateID uint    `gorm:"not null;index"`
	Role       *string `gorm:"size:20"`
	GroupID    *uint   `gorm:"index"`
	Permission string  `gorm:"size:20;not null"`
}

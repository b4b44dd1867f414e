// Package access decides whether an actor may perform an action on issues.
//
// Resolver is the oracle consumed by the issue service. DB is the default
// implementation backed by template permissions, group membership and the
// declared transitions of each state. Visible computes the set of issues an
// actor may reference.
package access

import (
	"slices"

	"github.com/zulandar/docket/internal/models"
	"gorm.io/gorm"
)

// Action names a capability. Template permission rows store the same names.
type Action string

const (
	IssueView          Action = "issue.view"
	IssueCreate        Action = "issue.create"
	IssueEdit          Action = "issue.edit"
	IssueReassign      Action = "issue.reassign"
	IssueSuspend       Action = "issue.suspend"
	IssueResume        Action = "issue.resume"
	IssueDelete        Action = "issue.delete"
	StateChange        Action = "state.change"
	CommentAdd         Action = "comment.add"
	CommentPrivateAdd  Action = "comment.private.add"
	CommentPrivateRead Action = "comment.private.read"
	FileAttach         Action = "file.attach"
	FileDelete         Action = "file.delete"
	DependencyAdd      Action = "dependency.add"
	DependencyRemove   Action = "dependency.remove"
)

// Actions lists every action in a stable order.
var Actions = []Action{
	IssueView, IssueCreate, IssueEdit, IssueReassign, IssueSuspend, IssueResume, IssueDelete,
	StateChange, CommentAdd, CommentPrivateAdd, CommentPrivateRead,
	FileAttach, FileDelete, DependencyAdd, DependencyRemove,
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	return slices.Contains(Actions, a)
}

// Resolver grants or denies an action. Subjects depend on the action:
//
//	IssueCreate   *models.Template (with Project preloaded)
//	StateChange   *models.Issue, *models.State (destination)
//	others        *models.Issue (with State.Template.Project preloaded)
//
// tx is the caller's transaction; implementations must read through it.
type Resolver interface {
	IsGranted(tx *gorm.DB, actor *models.User, action Action, subjects ...any) (bool, error)
}

// Func adapts a plain function to Resolver.
type Func func(tx *gorm.DB, actor *models.User, action Action, subjects ...any) (bool, error)

// IsGranted calls f.
func (f Func) IsGranted(tx *gorm.DB, actor *models.User, action Action, subjects ...any) (bool, error) {
	return f(tx, actor, action, subjects...)
}

// AllowAll grants every action. Useful for seeding and tests.
var AllowAll = Func(func(*gorm.DB, *models.User, Action, ...any) (bool, error) {
	return true, nil
})

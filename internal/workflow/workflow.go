// Package workflow holds the side effects of moving an issue into a state:
// the event type the move produces, the closing timestamp and the
// responsible policy of the destination.
package workflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/docket/internal/models"
	"gorm.io/gorm"
)

var (
	// ErrResponsibleRequired is returned when the destination state assigns
	// a responsible user and none was supplied.
	ErrResponsibleRequired = errors.New("workflow: responsible user required")
	// ErrUnknownUser is returned when the supplied responsible does not exist.
	ErrUnknownUser = errors.New("workflow: responsible user not found")
	// ErrNotEligible is returned when the supplied responsible exists but is
	// not a member of any responsible group of the destination state.
	ErrNotEligible = errors.New("workflow: user not eligible as responsible")
)

// Outcome describes what entering a state does to an issue.
type Outcome struct {
	Event models.EventType
	// MustAssign is set when the destination requires a responsible user.
	MustAssign bool
	// Unassign is set when the destination clears the responsible user.
	Unassign bool
}

// Classify returns the outcome of moving issue into target without
// modifying either. Closing and reopening take precedence over a plain
// state change.
func Classify(issue *models.Issue, target *models.State) Outcome {
	out := Outcome{Event: models.EventStateChanged}
	switch {
	case !issue.IsClosed() && target.IsFinal():
		out.Event = models.EventIssueClosed
	case issue.IsClosed() && !target.IsFinal():
		out.Event = models.EventIssueReopened
	}
	switch target.Responsible {
	case models.ResponsibleAssign:
		out.MustAssign = true
	case models.ResponsibleRemove:
		out.Unassign = true
	}
	return out
}

// Enter moves issue into target at now and applies the responsible policy.
// responsible is only consulted when the destination assigns.
func Enter(issue *models.Issue, target *models.State, now time.Time, responsible *models.User) Outcome {
	out := Classify(issue, target)
	issue.StateID = target.ID
	issue.State = *target
	if target.IsFinal() {
		if issue.ClosedAt == nil {
			closed := now
			issue.ClosedAt = &closed
		}
	} else {
		issue.ClosedAt = nil
	}
	switch {
	case out.MustAssign && responsible != nil:
		id := responsible.ID
		issue.ResponsibleID = &id
		issue.Responsible = responsible
	case out.Unassign:
		issue.ResponsibleID = nil
		issue.Responsible = nil
	}
	return out
}

// Eligible returns the enabled users who belong to at least one of the
// state's responsible groups, ordered by name.
func Eligible(tx *gorm.DB, stateID uint) ([]models.User, error) {
	var users []models.User
	err := tx.Where("is_disabled = ?", false).
		Where("id IN (?)", tx.Model(&models.Membership{}).Select("user_id").
			Where("group_id IN (?)", tx.Model(&models.StateResponsibleGroup{}).Select("group_id").
				Where("state_id = ?", stateID))).
		Order("fullname, id").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("workflow: eligible users for state %d: %w", stateID, err)
	}
	return users, nil
}

// ResolveResponsible loads the user to assign on entering state. Existence
// is checked before eligibility.
func ResolveResponsible(tx *gorm.DB, state *models.State, userID *uint) (*models.User, error) {
	if userID == nil {
		return nil, ErrResponsibleRequired
	}
	var user models.User
	if err := tx.Take(&user, *userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrUnknownUser, *userID)
		}
		return nil, fmt.Errorf("workflow: load user %d: %w", *userID, err)
	}
	ok, err := IsEligible(tx, state.ID, &user)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: user %d, state %d", ErrNotEligible, user.ID, state.ID)
	}
	return &user, nil
}

// IsEligible reports whether user may be responsible for issues in the state.
func IsEligible(tx *gorm.DB, stateID uint, user *models.User) (bool, error) {
	if user.IsDisabled {
		return false, nil
	}
	var count int64
	err := tx.Model(&models.Membership{}).
		Joins("JOIN state_responsible_groups srg ON srg.group_id = memberships.group_id").
		Where("srg.state_id = ? AND memberships.user_id = ?", stateID, user.ID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("workflow: eligibility of user %d: %w", user.ID, err)
	}
	return count > 0, nil
}

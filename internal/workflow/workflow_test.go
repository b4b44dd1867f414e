package workflow

import (
	"errors"
	"testing"
	"time"

	"github.com/zulandar/docket/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestClassify_Exhaustive(t *testing.T) {
	closedAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name       string
		closed     bool
		targetType models.StateType
		want       models.EventType
	}{
		{"open to intermediate", false, models.StateIntermediate, models.EventStateChanged},
		{"open to initial", false, models.StateInitial, models.EventStateChanged},
		{"open to final", false, models.StateFinal, models.EventIssueClosed},
		{"closed to intermediate", true, models.StateIntermediate, models.EventIssueReopened},
		{"closed to initial", true, models.StateInitial, models.EventIssueReopened},
		{"closed to final", true, models.StateFinal, models.EventStateChanged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issue := &models.Issue{}
			if tt.closed {
				issue.ClosedAt = &closedAt
			}
			got := Classify(issue, &models.State{Type: tt.targetType})
			if got.Event != tt.want {
				t.Errorf("Classify() = %s, want %s", got.Event, tt.want)
			}
		})
	}
}

func TestEnter_ResponsiblePolicy(t *testing.T) {
	now := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	current := uint(4)
	assignee := &models.User{ID: 9}

	tests := []struct {
		name   string
		policy models.ResponsiblePolicy
		user   *models.User
		want   *uint
	}{
		{"keep", models.ResponsibleKeep, assignee, &current},
		{"assign", models.ResponsibleAssign, assignee, &assignee.ID},
		{"remove", models.ResponsibleRemove, assignee, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := current
			issue := &models.Issue{StateID: 1, ResponsibleID: &id}
			target := &models.State{ID: 2, Type: models.StateIntermediate, Responsible: tt.policy}
			out := Enter(issue, target, now, tt.user)

			if issue.StateID != 2 {
				t.Errorf("StateID = %d, want 2", issue.StateID)
			}
			if out.MustAssign != (tt.policy == models.ResponsibleAssign) {
				t.Errorf("MustAssign = %v", out.MustAssign)
			}
			switch {
			case tt.want == nil && issue.ResponsibleID != nil:
				t.Errorf("ResponsibleID = %d, want nil", *issue.ResponsibleID)
			case tt.want != nil && (issue.ResponsibleID == nil || *issue.ResponsibleID != *tt.want):
				t.Errorf("ResponsibleID = %v, want %d", issue.ResponsibleID, *tt.want)
			}
		})
	}
}

func TestEnter_ClosedAt(t *testing.T) {
	now := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	issue := &models.Issue{}

	Enter(issue, &models.State{ID: 3, Type: models.StateFinal}, now, nil)
	if issue.ClosedAt == nil || !issue.ClosedAt.Equal(now) {
		t.Fatalf("ClosedAt = %v, want %v", issue.ClosedAt, now)
	}

	later := now.Add(time.Hour)
	if out := Enter(issue, &models.State{ID: 4, Type: models.StateFinal}, later, nil); out.Event != models.EventStateChanged {
		t.Errorf("final to final event = %s", out.Event)
	}
	if !issue.ClosedAt.Equal(now) {
		t.Errorf("ClosedAt moved to %v on final to final", issue.ClosedAt)
	}

	Enter(issue, &models.State{ID: 2, Type: models.StateIntermediate}, later, nil)
	if issue.ClosedAt != nil {
		t.Errorf("ClosedAt = %v after reopen, want nil", issue.ClosedAt)
	}
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Group{}, &models.Membership{}, &models.StateResponsibleGroup{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func TestResolveResponsible(t *testing.T) {
	db := openTestDB(t)
	member := models.User{Email: "dev@example.com", Fullname: "Dev"}
	outsider := models.User{Email: "guest@example.com", Fullname: "Guest"}
	disabled := models.User{Email: "gone@example.com", Fullname: "Gone"}
	for _, u := range []*models.User{&member, &outsider, &disabled} {
		if err := db.Create(u).Error; err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	db.Model(&disabled).Update("is_disabled", true)
	group := models.Group{Name: "Developers"}
	db.Create(&group)
	db.Create(&models.Membership{GroupID: group.ID, UserID: member.ID})
	db.Create(&models.Membership{GroupID: group.ID, UserID: disabled.ID})
	db.Create(&models.StateResponsibleGroup{StateID: 7, GroupID: group.ID})
	state := &models.State{ID: 7}
	missing := uint(404)

	tests := []struct {
		name    string
		userID  *uint
		wantErr error
	}{
		{"member", &member.ID, nil},
		{"no user", nil, ErrResponsibleRequired},
		{"unknown", &missing, ErrUnknownUser},
		{"outsider", &outsider.ID, ErrNotEligible},
		{"disabled member", &disabled.ID, ErrNotEligible},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := ResolveResponsible(db, state, tt.userID)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveResponsible: %v", err)
			}
			if user.ID != *tt.userID {
				t.Errorf("user = %d, want %d", user.ID, *tt.userID)
			}
		})
	}

	eligible, err := Eligible(db, 7)
	if err != nil {
		t.Fatalf("Eligible: %v", err)
	}
	if len(eligible) != 1 || eligible[0].ID != member.ID {
		t.Errorf("Eligible = %+v, want only member", eligible)
	}

	none, err := Eligible(db, 8)
	if err != nil {
		t.Fatalf("Eligible empty: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("state without groups has %d eligible users", len(none))
	}
}

package models

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

// assertFieldType checks that a struct field has the expected Go type.
func assertFieldType(t *testing.T, typ reflect.Type, fieldName, expectedType string) {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	got := f.Type.String()
	if got != expectedType {
		t.Errorf("%s.%s type = %q, want %q", typ.Name(), fieldName, got, expectedType)
	}
}

func TestUniqueKeys(t *testing.T) {
	tests := []struct {
		model any
		field string
		tag   string
	}{
		{User{}, "Email", "uniqueIndex"},
		{Project{}, "Name", "uniqueIndex"},
		{Template{}, "ProjectID", "uniqueIndex:idx_template_name"},
		{Template{}, "Name", "uniqueIndex:idx_template_name"},
		{State{}, "TemplateID", "uniqueIndex:idx_state_name"},
		{State{}, "Name", "uniqueIndex:idx_state_name"},
		{ListItem{}, "Value", "uniqueIndex:idx_item_value"},
		{ListItem{}, "Text", "uniqueIndex:idx_item_text"},
		{FieldValue{}, "IssueID", "uniqueIndex:idx_issue_field"},
		{FieldValue{}, "FieldID", "uniqueIndex:idx_issue_field"},
		{StringValue{}, "Token", "uniqueIndex"},
		{TextValue{}, "Token", "uniqueIndex"},
		{DecimalValue{}, "Value", "uniqueIndex"},
		{Comment{}, "EventID", "uniqueIndex"},
		{File{}, "UUID", "uniqueIndex"},
	}
	for _, tt := range tests {
		assertGormTag(t, reflect.TypeOf(tt.model), tt.field, tt.tag)
	}
}

func TestCompositeKeys(t *testing.T) {
	for _, m := range []any{Membership{}, StateResponsibleGroup{}, Dependency{}, Watcher{}, LastRead{}} {
		typ := reflect.TypeOf(m)
		keys := 0
		for i := 0; i < typ.NumField(); i++ {
			if strings.Contains(typ.Field(i).Tag.Get("gorm"), "primaryKey") {
				keys++
			}
		}
		if keys != 2 {
			t.Errorf("%s has %d primary key columns, want 2", typ.Name(), keys)
		}
	}
}

func TestNullableColumns(t *testing.T) {
	tests := []struct {
		model any
		field string
		typ   string
	}{
		{Issue{}, "ResponsibleID", "*uint"},
		{Issue{}, "OriginID", "*uint"},
		{Issue{}, "ClosedAt", "*time.Time"},
		{Issue{}, "ResumesAt", "*time.Time"},
		{FieldValue{}, "Value", "*int64"},
		{Event{}, "Parameter", "*int64"},
		{Change{}, "FieldID", "*uint"},
		{Change{}, "OldValue", "*int64"},
		{Change{}, "NewValue", "*int64"},
		{Template{}, "FrozenTime", "*int"},
		{StateTransition{}, "Role", "*string"},
		{StateTransition{}, "GroupID", "*uint"},
		{TemplatePermission{}, "Role", "*string"},
		{TemplatePermission{}, "GroupID", "*uint"},
		{Group{}, "ProjectID", "*uint"},
		{Field{}, "RemovedAt", "*time.Time"},
		{File{}, "EventID", "*uint"},
		{File{}, "RemovedAt", "*time.Time"},
	}
	for _, tt := range tests {
		assertFieldType(t, reflect.TypeOf(tt.model), tt.field, tt.typ)
	}
}

func TestIssue_States(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	closed := now.AddDate(0, 0, -10)
	later := now.Add(time.Hour)
	earlier := now.Add(-time.Hour)
	days := func(n int) *int { return &n }

	tests := []struct {
		name      string
		issue     Issue
		frozen    *int
		closed    bool
		suspended bool
		isFrozen  bool
	}{
		{"open", Issue{}, days(7), false, false, false},
		{"suspended", Issue{ResumesAt: &later}, nil, false, true, false},
		{"suspension expired", Issue{ResumesAt: &earlier}, nil, false, false, false},
		{"closed, no freeze", Issue{ClosedAt: &closed}, nil, true, false, false},
		{"closed within window", Issue{ClosedAt: &closed}, days(30), true, false, false},
		{"closed past window", Issue{ClosedAt: &closed}, days(7), true, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.issue.IsClosed(); got != tt.closed {
				t.Errorf("IsClosed() = %v, want %v", got, tt.closed)
			}
			if got := tt.issue.IsSuspendedAt(now); got != tt.suspended {
				t.Errorf("IsSuspendedAt() = %v, want %v", got, tt.suspended)
			}
			if got := tt.issue.IsFrozenAt(now, tt.frozen); got != tt.isFrozen {
				t.Errorf("IsFrozenAt() = %v, want %v", got, tt.isFrozen)
			}
		})
	}
}

func TestFullID(t *testing.T) {
	tests := []struct {
		prefix string
		id     uint
		want   string
	}{
		{"REQ", 1, "REQ-001"},
		{"BUG", 42, "BUG-042"},
		{"T", 12345, "T-12345"},
	}
	for _, tt := range tests {
		if got := FullID(tt.prefix, tt.id); got != tt.want {
			t.Errorf("FullID(%q, %d) = %q, want %q", tt.prefix, tt.id, got, tt.want)
		}
	}
}

func TestRemovedFlags(t *testing.T) {
	now := time.Now()
	if (Field{}).IsRemoved() || !(Field{RemovedAt: &now}).IsRemoved() {
		t.Error("Field.IsRemoved mismatch")
	}
	if (File{}).IsRemoved() || !(File{RemovedAt: &now}).IsRemoved() {
		t.Error("File.IsRemoved mismatch")
	}
	if !(State{Type: StateFinal}).IsFinal() || (State{Type: StateInitial}).IsFinal() {
		t.Error("State.IsFinal mismatch")
	}
}

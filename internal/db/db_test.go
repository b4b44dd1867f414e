package db

import (
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/zulandar/docket/internal/config"
	"github.com/zulandar/docket/internal/models"
	"gorm.io/gorm"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.DatabaseConfig
		wantPrefix string
	}{
		{
			name:       "default local",
			cfg:        config.DatabaseConfig{Host: "127.0.0.1", Port: 3306, Name: "docket", User: "root"},
			wantPrefix: "root@tcp(127.0.0.1:3306)/docket?",
		},
		{
			name:       "password and custom port",
			cfg:        config.DatabaseConfig{Host: "10.0.0.5", Port: 3307, Name: "docket_prod", User: "docket", Password: "secret"},
			wantPrefix: "docket:secret@tcp(10.0.0.5:3307)/docket_prod?",
		},
		{
			name:       "ipv6 host",
			cfg:        config.DatabaseConfig{Host: "::1", Port: 3306, Name: "docket", User: "root"},
			wantPrefix: "root@tcp([::1]:3306)/docket?",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DSN(tt.cfg)
			if !strings.HasPrefix(got, tt.wantPrefix) {
				t.Errorf("DSN() = %q, want prefix %q", got, tt.wantPrefix)
			}
			if !strings.Contains(got, "parseTime=true") {
				t.Errorf("DSN() = %q, missing parseTime=true", got)
			}
		})
	}
}

func TestDSN_Explicit(t *testing.T) {
	want := "u:p@tcp(db:3306)/x?parseTime=true&loc=Local"
	if got := DSN(config.DatabaseConfig{DSN: want, Host: "ignored"}); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(config.DatabaseConfig{Driver: "oracle"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestAutoMigrate_CreatesTables(t *testing.T) {
	db := openTestDB(t)
	for _, m := range AllModels() {
		if !db.Migrator().HasTable(m) {
			t.Errorf("table for %T missing", m)
		}
	}
}

func TestReset(t *testing.T) {
	db := openTestDB(t)
	if err := Reset(db); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	for _, m := range AllModels() {
		if db.Migrator().HasTable(m) {
			t.Errorf("table for %T still present", m)
		}
	}
}

const seedYAML = `
users:
  - email: alice@example.com
    fullname: Alice
    admin: true
  - email: bob@example.com
    fullname: Bob
groups:
  - name: Support
    project: Helpdesk
    members: [alice@example.com, bob@example.com]
  - name: Everyone
    members: [bob@example.com]
projects:
  - name: Helpdesk
    templates:
      - name: Request
        prefix: REQ
        frozen_days: 7
        permissions:
          - action: issue.create
            roles: [anyone]
          - action: issue.view
            roles: [author, responsible]
            groups: [Support]
        states:
          - name: New
            type: initial
            transitions:
              - to: Assigned
                groups: [Support]
            fields:
              - name: Priority
                type: list
                required: true
                default: Normal
                items:
                  - {value: 1, text: Low}
                  - {value: 2, text: Normal}
              - name: Estimate
                type: duration
                default: "1:30"
          - name: Assigned
            type: intermediate
            responsible: assign
            responsible_groups: [Support]
            transitions:
              - to: Closed
                roles: [responsible]
          - name: Closed
            type: final
            responsible: remove
`

func mustParse(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	return cfg
}

func count(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count %T: %v", model, err)
	}
	return n
}

func TestSeed(t *testing.T) {
	db := openTestDB(t)
	cfg := mustParse(t, seedYAML)
	if err := Seed(db, cfg); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	tests := []struct {
		model any
		want  int64
	}{
		{&models.User{}, 2},
		{&models.Group{}, 2},
		{&models.Membership{}, 3},
		{&models.Project{}, 1},
		{&models.Template{}, 1},
		{&models.TemplatePermission{}, 4},
		{&models.State{}, 3},
		{&models.StateTransition{}, 2},
		{&models.StateResponsibleGroup{}, 1},
		{&models.Field{}, 2},
		{&models.ListItem{}, 2},
	}
	for _, tt := range tests {
		if got := count(t, db, tt.model); got != tt.want {
			t.Errorf("count(%T) = %d, want %d", tt.model, got, tt.want)
		}
	}

	var alice models.User
	db.Where("email = ?", "alice@example.com").First(&alice)
	if !alice.IsAdmin || alice.Timezone != "UTC" || alice.Locale != "en-US" {
		t.Errorf("alice = %+v", alice)
	}

	var everyone models.Group
	db.Where("name = ?", "Everyone").First(&everyone)
	if everyone.ProjectID != nil {
		t.Errorf("Everyone.ProjectID = %v, want global group", *everyone.ProjectID)
	}

	var prio models.Field
	db.Preload("ListItems").Where("name = ?", "Priority").First(&prio)
	var normal models.ListItem
	db.Where("field_id = ? AND text = ?", prio.ID, "Normal").First(&normal)
	if prio.DefaultValue == nil || *prio.DefaultValue != strconv.FormatUint(uint64(normal.ID), 10) {
		t.Errorf("Priority default = %v, want item id %d", prio.DefaultValue, normal.ID)
	}
	if prio.Position != 1 || !prio.IsRequired {
		t.Errorf("Priority = %+v", prio)
	}

	var tpl models.Template
	db.First(&tpl)
	if tpl.FrozenTime == nil || *tpl.FrozenTime != 7 {
		t.Errorf("FrozenTime = %v, want 7", tpl.FrozenTime)
	}
}

func fmtType(m any) string {
	return fmt.Sprintf("%T", m)
}

func TestSeed_Idempotent(t *testing.T) {
	db := openTestDB(t)
	if err := Seed(db, mustParse(t, seedYAML)); err != nil {
		t.Fatalf("first Seed: %v", err)
	}
	before := map[string]int64{}
	for _, m := range []any{&models.User{}, &models.Group{}, &models.Membership{}, &models.State{}, &models.TemplatePermission{}, &models.Field{}} {
		before[fmtType(m)] = count(t, db, m)
	}
	changed := strings.Replace(seedYAML, "fullname: Bob", "fullname: Robert", 1)
	changed = strings.Replace(changed, "{value: 2, text: Normal}", "{value: 2, text: Medium}", 1)
	changed = strings.Replace(changed, "default: Normal", "default: Medium", 1)
	if err := Seed(db, mustParse(t, changed)); err != nil {
		t.Fatalf("second Seed: %v", err)
	}

	for _, m := range []any{&models.User{}, &models.Group{}, &models.Membership{}, &models.State{}, &models.TemplatePermission{}, &models.Field{}} {
		if got, want := count(t, db, m), before[fmtType(m)]; got != want {
			t.Errorf("count(%T) = %d after reseed, want %d", m, got, want)
		}
	}
	if n := count(t, db, &models.StateTransition{}); n != 2 {
		t.Errorf("transitions = %d, want 2", n)
	}
	if n := count(t, db, &models.ListItem{}); n != 2 {
		t.Errorf("items = %d, want 2", n)
	}

	var bob models.User
	db.Where("email = ?", "bob@example.com").First(&bob)
	if bob.Fullname != "Robert" {
		t.Errorf("Fullname = %q, want Robert", bob.Fullname)
	}
	var medium models.ListItem
	if err := db.Where("text = ?", "Medium").First(&medium).Error; err != nil {
		t.Fatalf("item Medium: %v", err)
	}
	var prio models.Field
	db.Where("name = ?", "Priority").First(&prio)
	if prio.DefaultValue == nil || *prio.DefaultValue != strconv.FormatUint(uint64(medium.ID), 10) {
		t.Errorf("Priority default = %v, want %d", prio.DefaultValue, medium.ID)
	}
}

func TestSeed_RollsBackOnBadField(t *testing.T) {
	tests := []struct {
		name  string
		field string
		want  string
	}{
		{"list default", "{name: P, type: list, default: Nope, items: [{value: 1, text: Yes}]}", `default "Nope" is not an item`},
		{"number bound", "{name: N, type: number, min: abc}", `field "N"`},
		{"regex", "{name: S, type: string, check: \"(\"}", "check pattern"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := openTestDB(t)
			yaml := `
users:
  - {email: a@example.com, fullname: A}
projects:
  - name: P
    templates:
      - name: T
        prefix: T
        states:
          - name: A
            type: initial
            fields:
              - ` + tt.field + "\n"
			err := Seed(db, mustParse(t, yaml))
			if err == nil {
				t.Fatal("expected seed error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.want)
			}
			if n := count(t, db, &models.User{}); n != 0 {
				t.Errorf("users = %d, want rollback", n)
			}
		})
	}
}

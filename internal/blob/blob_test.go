package blob

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/zulandar/docket/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func stage(t *testing.T, s *Store, content string) string {
	t.Helper()
	f, err := s.TempFile()
	if err != nil {
		t.Fatalf("TempFile: %v", err)
	}
	if _, err := io.WriteString(f, content); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Close()
	return f.Name()
}

func TestStore_MoveExistsDelete(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/var/docket")
	tmp := stage(t, s, "hello")

	if err := s.Move(tmp, "0b5d1c3a-uuid"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if ok, _ := afero.Exists(s.Fs(), tmp); ok {
		t.Error("staged file still present after move")
	}
	if got := s.FullPath("0b5d1c3a-uuid"); got != "/var/docket/0b5d1c3a-uuid" {
		t.Errorf("FullPath = %q", got)
	}
	ok, err := s.Exists("0b5d1c3a-uuid")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}

	f, err := s.Open("0b5d1c3a-uuid")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(f)
	f.Close()
	if string(data) != "hello" {
		t.Errorf("content = %q", data)
	}

	if err := s.Delete("0b5d1c3a-uuid"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete("0b5d1c3a-uuid"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
	if ok, _ := s.Exists("0b5d1c3a-uuid"); ok {
		t.Error("blob exists after delete")
	}
}

func TestStore_MoveMissingSource(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/var/docket")
	if err := s.Move("/nowhere", "x"); err == nil {
		t.Error("expected error for missing staged file")
	}
}

func TestValidSchedule(t *testing.T) {
	for _, expr := range []string{"@hourly", "*/5 * * * *", "0 3 * * 1"} {
		if err := ValidSchedule(expr); err != nil {
			t.Errorf("ValidSchedule(%q): %v", expr, err)
		}
	}
	if err := ValidSchedule("not a cron expr"); err == nil {
		t.Error("expected error for invalid expression")
	}
}

func TestJanitor_Sweep(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.File{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	s := New(afero.NewMemMapFs(), "/blobs")
	for _, id := range []string{"kept", "removed", "removed-gone"} {
		if err := s.Move(stage(t, s, id), id); err != nil {
			t.Fatalf("Move %s: %v", id, err)
		}
	}
	s.Delete("removed-gone")

	now := time.Now()
	db.Create(&models.File{IssueID: 1, FileName: "a.txt", MimeType: "text/plain", UUID: "kept"})
	db.Create(&models.File{IssueID: 1, FileName: "b.txt", MimeType: "text/plain", UUID: "removed", RemovedAt: &now})
	db.Create(&models.File{IssueID: 1, FileName: "c.txt", MimeType: "text/plain", UUID: "removed-gone", RemovedAt: &now})

	j := &Janitor{DB: db, Store: s}
	n, err := j.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
	if ok, _ := s.Exists("kept"); !ok {
		t.Error("live blob deleted")
	}
	if ok, _ := s.Exists("removed"); ok {
		t.Error("removed blob survived")
	}
}

func TestJanitor_StartInvalidSchedule(t *testing.T) {
	j := &Janitor{}
	if _, err := j.Start(context.Background(), "bogus"); err == nil {
		t.Error("expected error for invalid schedule")
	}
}

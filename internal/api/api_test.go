package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/zulandar/docket/internal/access"
	"github.com/zulandar/docket/internal/blob"
	"github.com/zulandar/docket/internal/i18n"
	"github.com/zulandar/docket/internal/issue"
	"github.com/zulandar/docket/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	db       *gorm.DB
	router   *gin.Engine
	svc      *issue.Service
	blobs    *blob.Store
	tpl      models.Template
	initial  models.State
	priority models.Field
	note     models.Field
	user     models.User
}

func setup(t *testing.T, resolver access.Resolver) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(
		&models.Project{}, &models.Template{}, &models.State{}, &models.StateTransition{},
		&models.StateResponsibleGroup{}, &models.TemplatePermission{}, &models.Field{}, &models.ListItem{},
		&models.User{}, &models.Group{}, &models.Membership{},
		&models.Issue{}, &models.FieldValue{}, &models.Dependency{}, &models.Watcher{}, &models.LastRead{},
		&models.Event{}, &models.Change{}, &models.Comment{}, &models.File{},
		&models.StringValue{}, &models.DecimalValue{}, &models.TextValue{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	env := &testEnv{db: db, blobs: blob.New(afero.NewMemMapFs(), "/blobs")}
	project := models.Project{Name: "Support"}
	create(t, db, &project)
	env.tpl = models.Template{ProjectID: project.ID, Name: "Request", Prefix: "REQ"}
	create(t, db, &env.tpl)
	env.initial = models.State{TemplateID: env.tpl.ID, Name: "New", Type: models.StateInitial, Responsible: models.ResponsibleKeep}
	create(t, db, &env.initial)
	lo, hi := "1", "5"
	env.priority = models.Field{StateID: env.initial.ID, Name: "Priority", Type: models.FieldNumber, Position: 1,
		IsRequired: true, MinValue: &lo, MaxValue: &hi}
	create(t, db, &env.priority)
	env.note = models.Field{StateID: env.initial.ID, Name: "Cost", Type: models.FieldDecimal, Position: 2}
	create(t, db, &env.note)
	env.user = models.User{Email: "alice@example.com", Fullname: "Alice", Timezone: "UTC", Locale: "en-US"}
	create(t, db, &env.user)

	svc := issue.New(db, resolver, issue.Options{
		Blobs:      env.blobs,
		Translator: i18n.MustNew(),
		Now:        func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) },
	})
	env.svc = svc
	env.router = NewRouter(StartOpts{DB: db, Service: svc, Blobs: env.blobs})
	return env
}

func create(t *testing.T, db *gorm.DB, v any) {
	t.Helper()
	if err := db.Create(v).Error; err != nil {
		t.Fatalf("create %T: %v", v, err)
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(ActorHeader, e.user.Email)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) createIssue(t *testing.T) issueView {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/issues", map[string]any{
		"template_id": e.tpl.ID,
		"subject":     "Printer is jammed",
		"fields": map[string]any{
			fmt.Sprint(e.priority.ID): 2,
			fmt.Sprint(e.note.ID):     12.50,
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body)
	}
	var v issueView
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode issue: %v", err)
	}
	return v
}

func TestActorHeader(t *testing.T) {
	env := setup(t, access.AllowAll)
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"unknown email", "bob@example.com", http.StatusUnauthorized},
		{"by id", fmt.Sprint(env.user.ID), http.StatusNotFound},
		{"by email", env.user.Email, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/issues/42", nil)
			if tt.header != "" {
				req.Header.Set(ActorHeader, tt.header)
			}
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestCreateAndGet(t *testing.T) {
	env := setup(t, access.AllowAll)
	created := env.createIssue(t)
	if created.Ref != "REQ-001" {
		t.Errorf("Ref = %q, want REQ-001", created.Ref)
	}
	if created.State.Name != "New" {
		t.Errorf("State = %+v", created.State)
	}

	w := env.do(t, http.MethodGet, fmt.Sprintf("/api/issues/%d", created.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var got issueView
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Values) != 2 {
		t.Fatalf("values = %+v", got.Values)
	}
	if got.Values[1].Value != "12.5" {
		t.Errorf("Cost = %#v, want canonical decimal text", got.Values[1].Value)
	}
}

func TestCreate_ValidationFailure(t *testing.T) {
	env := setup(t, access.AllowAll)
	w := env.do(t, http.MethodPost, "/api/issues", map[string]any{
		"template_id": env.tpl.ID,
		"subject":     "Printer",
		"fields":      map[string]any{fmt.Sprint(env.priority.ID): 7},
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	var body errorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Violations) != 1 || body.Violations[0].Field != "Priority" {
		t.Errorf("violations = %+v", body.Violations)
	}
	if !strings.Contains(body.Error, "1 field(s)") {
		t.Errorf("summary = %q", body.Error)
	}
}

func TestBadInput(t *testing.T) {
	env := setup(t, access.AllowAll)
	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"bad id", http.MethodGet, "/api/issues/abc", nil},
		{"bad field key", http.MethodPost, "/api/issues", map[string]any{"template_id": 1, "fields": map[string]any{"x": 1}}},
		{"missing template", http.MethodPost, "/api/issues", map[string]any{"subject": "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := env.do(t, tt.method, tt.path, tt.body); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestAccessDenied(t *testing.T) {
	env := setup(t, access.Func(func(_ *gorm.DB, _ *models.User, action access.Action, _ ...any) (bool, error) {
		return action != access.IssueDelete, nil
	}))
	created := env.createIssue(t)
	w := env.do(t, http.MethodDelete, fmt.Sprintf("/api/issues/%d", created.ID), nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestSuspend_PastDate(t *testing.T) {
	env := setup(t, access.AllowAll)
	created := env.createIssue(t)
	w := env.do(t, http.MethodPost, fmt.Sprintf("/api/issues/%d/suspend", created.ID), map[string]string{"date": "2026-01-01"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Date must be in future") {
		t.Errorf("body = %s", w.Body)
	}
}

func TestFiles(t *testing.T) {
	env := setup(t, access.AllowAll)
	created := env.createIssue(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "notes.txt")
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	io.WriteString(part, "toner low")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/issues/%d/files", created.ID), &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(ActorHeader, env.user.Email)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body = %s", w.Code, w.Body)
	}
	var file fileView
	if err := json.Unmarshal(w.Body.Bytes(), &file); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if file.Name != "notes.txt" || file.Size != 9 {
		t.Errorf("file = %+v", file)
	}

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/files/%d", file.ID), nil)
	if w.Code != http.StatusOK || w.Body.String() != "toner low" {
		t.Fatalf("download = %d %q", w.Code, w.Body)
	}

	if w := env.do(t, http.MethodDelete, fmt.Sprintf("/api/files/%d", file.ID), nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w := env.do(t, http.MethodDelete, fmt.Sprintf("/api/files/%d", file.ID), nil); w.Code != http.StatusNoContent {
		t.Errorf("repeated delete status = %d, want 204", w.Code)
	}
	if w := env.do(t, http.MethodGet, fmt.Sprintf("/api/files/%d", file.ID), nil); w.Code != http.StatusNotFound {
		t.Errorf("download after delete = %d, want 404", w.Code)
	}

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/issues/%d/history", created.ID), nil)
	var history []eventView
	if err := json.Unmarshal(w.Body.Bytes(), &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history) != 3 || history[1].File == nil || history[2].Type != models.EventFileDeleted {
		t.Errorf("history = %+v", history)
	}
}

func TestBulkRelations(t *testing.T) {
	env := setup(t, access.AllowAll)
	created := env.createIssue(t)
	for _, path := range []string{"/api/watch", "/api/watch", "/api/read"} {
		if w := env.do(t, http.MethodPost, path, map[string]any{"issues": []uint{created.ID, 99}}); w.Code != http.StatusNoContent {
			t.Fatalf("%s status = %d", path, w.Code)
		}
	}
	var n int64
	env.db.Model(&models.Watcher{}).Count(&n)
	if n != 1 {
		t.Errorf("watchers = %d, want 1", n)
	}

	w := env.do(t, http.MethodGet, fmt.Sprintf("/api/issues/%d", created.ID), nil)
	var got issueView
	json.Unmarshal(w.Body.Bytes(), &got)
	if !got.Watching {
		t.Error("Watching = false after watch")
	}
}

func TestStateFields(t *testing.T) {
	env := setup(t, access.AllowAll)
	w := env.do(t, http.MethodGet, fmt.Sprintf("/api/states/%d/fields", env.initial.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var fields []fieldView
	if err := json.Unmarshal(w.Body.Bytes(), &fields); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(fields) != 2 || !fields[0].Required {
		t.Errorf("fields = %+v", fields)
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", issue.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("x: %w", issue.ErrAccessDenied), http.StatusForbidden},
		{fmt.Errorf("x: %w", issue.ErrBadRequest), http.StatusBadRequest},
		{&issue.ValidationError{}, http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusOf(tt.err); got != tt.want {
			t.Errorf("statusOf(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

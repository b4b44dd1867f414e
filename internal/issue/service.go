// Package issue implements the commands that mutate issues. Each command
// loads its primary entities, asks the access resolver, validates field
// input, mutates and appends audit events, all inside one transaction.
// Notifications and blob removal happen only after a successful commit.
package issue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zulandar/docket/internal/access"
	"github.com/zulandar/docket/internal/audit"
	"github.com/zulandar/docket/internal/field"
	"github.com/zulandar/docket/internal/models"
	"github.com/zulandar/docket/internal/notify"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// DefaultMaxFileSize bounds attachments when Options.MaxFileSize is zero.
const DefaultMaxFileSize = 2 << 20

// BlobStore holds attachment contents.
type BlobStore interface {
	Move(tempPath, uuid string) error
	Delete(uuid string) error
}

// Translator renders message keys in a locale.
type Translator interface {
	Translate(locale, key string, args ...any) string
}

// Publisher receives committed events.
type Publisher interface {
	Publish(ctx context.Context, events []notify.Event)
}

// Options holds the optional collaborators of a Service.
type Options struct {
	Blobs       BlobStore
	Translator  Translator
	Notifier    Publisher
	Logger      *slog.Logger
	Now         func() time.Time
	MaxFileSize int64
	// Locale is used for notification texts.
	Locale string
}

// Service runs issue commands against a database.
type Service struct {
	db     *gorm.DB
	access access.Resolver
	opts   Options
	tracer trace.Tracer
}

// New returns a service. resolver decides every authorization.
func New(db *gorm.DB, resolver access.Resolver, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.Locale == "" {
		opts.Locale = "en-US"
	}
	return &Service{
		db:     db,
		access: resolver,
		opts:   opts,
		tracer: otel.Tracer("github.com/zulandar/docket/internal/issue"),
	}
}

// cmd is the state of one command execution.
type cmd struct {
	s       *Service
	tx      *gorm.DB
	actor   *models.User
	now     time.Time
	trail   audit.Trail
	events  []pendingEvent
	cleanup []func()
}

type pendingEvent struct {
	event *models.Event
	issue *models.Issue
}

// run executes fn in a transaction. Post-commit work runs only when fn and
// the commit succeed.
func (s *Service) run(ctx context.Context, name string, actor *models.User, fn func(c *cmd) error) error {
	ctx, span := s.tracer.Start(ctx, "issue."+name)
	defer span.End()

	if actor == nil || actor.ID == 0 {
		return denied(name)
	}
	span.SetAttributes(attribute.Int64("docket.actor", int64(actor.ID)))

	now := s.opts.Now()
	c := &cmd{
		s:     s,
		actor: actor,
		now:   now,
		trail: audit.Trail{Now: func() time.Time { return now }},
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c.tx = tx
		return fn(c)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetAttributes(attribute.Int("docket.events", len(c.events)))
	for _, f := range c.cleanup {
		f()
	}
	s.publish(ctx, c)
	return nil
}

func (s *Service) publish(ctx context.Context, c *cmd) {
	if s.opts.Notifier == nil || len(c.events) == 0 {
		return
	}
	out := make([]notify.Event, 0, len(c.events))
	for _, p := range c.events {
		ref := models.FullID(p.issue.State.Template.Prefix, p.issue.ID)
		out = append(out, notify.Event{
			Type:    p.event.Type,
			IssueID: p.issue.ID,
			Ref:     ref,
			Subject: p.issue.Subject,
			Actor:   c.actor.Fullname,
			At:      p.event.CreatedAt,
			Text:    s.translate(s.opts.Locale, string(p.event.Type), c.actor.Fullname, ref),
		})
	}
	s.opts.Notifier.Publish(ctx, out)
}

func (s *Service) translate(locale, key string, args ...any) string {
	if s.opts.Translator == nil {
		if len(args) == 0 {
			return key
		}
		return fmt.Sprint(append([]any{key + ":"}, args...)...)
	}
	return s.opts.Translator.Translate(locale, key, args...)
}

func (c *cmd) translate(key string, args ...any) string {
	return c.s.translate(c.actor.Locale, key, args...)
}

func (c *cmd) logger() *slog.Logger {
	return c.s.opts.Logger
}

// authorize asks the resolver and maps a refusal to ErrAccessDenied.
func (c *cmd) authorize(action access.Action, subjects ...any) error {
	ok, err := c.s.access.IsGranted(c.tx, c.actor, action, subjects...)
	if err != nil {
		return fmt.Errorf("issue: authorize %s: %w", action, err)
	}
	if !ok {
		return denied(action)
	}
	return nil
}

// appendEvent writes an event and queues it for notification.
func (c *cmd) appendEvent(typ models.EventType, issue *models.Issue, param *int64) (*models.Event, error) {
	ev, err := c.trail.Append(c.tx, typ, issue, c.actor, param)
	if err != nil {
		return nil, err
	}
	c.events = append(c.events, pendingEvent{event: ev, issue: issue})
	return ev, nil
}

// afterCommit queues best-effort work that must not run on rollback.
func (c *cmd) afterCommit(f func()) {
	c.cleanup = append(c.cleanup, f)
}

// location resolves the actor's timezone, falling back to UTC.
func (c *cmd) location() *time.Location {
	if c.actor.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.actor.Timezone)
	if err != nil {
		c.logger().Warn("issue: unknown timezone", "user", c.actor.ID, "timezone", c.actor.Timezone)
		return time.UTC
	}
	return loc
}

// env is the evaluation context of field rules for this command.
func (c *cmd) env() field.Env {
	return field.Env{
		Now:      c.now,
		Location: c.location(),
		IssueVisible: func(id uint) bool {
			ok, err := access.IsVisible(c.tx, c.actor, id)
			if err != nil {
				c.logger().Warn("issue: visibility check failed", "issue", id, "error", err)
				return false
			}
			return ok
		},
	}
}

func (c *cmd) loadIssue(id uint) (*models.Issue, error) {
	var issue models.Issue
	err := c.tx.Preload("State.Template.Project").Preload("Author").Preload("Responsible").
		Take(&issue, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("issue", id)
		}
		return nil, fmt.Errorf("issue: load %d: %w", id, err)
	}
	return &issue, nil
}

func (c *cmd) loadTemplate(id uint) (*models.Template, error) {
	var tpl models.Template
	if err := c.tx.Preload("Project").Take(&tpl, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("template", id)
		}
		return nil, fmt.Errorf("issue: load template %d: %w", id, err)
	}
	return &tpl, nil
}

func (c *cmd) loadState(id uint) (*models.State, error) {
	var state models.State
	if err := c.tx.Preload("Template.Project").Take(&state, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("state", id)
		}
		return nil, fmt.Errorf("issue: load state %d: %w", id, err)
	}
	return &state, nil
}

// initialState returns the single initial state of a template.
func (c *cmd) initialState(tpl *models.Template) (*models.State, error) {
	var state models.State
	err := c.tx.Where("template_id = ? AND type = ?", tpl.ID, models.StateInitial).
		Order("id").Take(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("issue: template %d has no initial state: %w", tpl.ID, ErrNotFound)
		}
		return nil, fmt.Errorf("issue: initial state of template %d: %w", tpl.ID, err)
	}
	state.Template = *tpl
	return &state, nil
}

// saveIssue writes the given columns of issue.
func (c *cmd) saveIssue(issue *models.Issue, columns map[string]any) error {
	if err := c.tx.Model(&models.Issue{}).Where("id = ?", issue.ID).Updates(columns).Error; err != nil {
		return fmt.Errorf("issue: update %d: %w", issue.ID, err)
	}
	return nil
}

func i64(v int64) *int64 {
	return &v
}

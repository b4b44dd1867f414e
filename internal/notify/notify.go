// Package notify publishes committed issue events to chat webhooks.
// Delivery is best effort: failures are logged and never reach the
// command that produced the event.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zulandar/docket/internal/models"
)

// Color constants for event severity.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

// Event is a committed audit event described for humans.
type Event struct {
	Type    models.EventType
	IssueID uint
	// Ref is the issue's human reference, e.g. "REQ-042".
	Ref     string
	Subject string
	Actor   string
	At      time.Time
	// Text is the translated one-line summary.
	Text string
}

// Field is a name/value pair rendered inside a message.
type Field struct {
	Name  string
	Value string
	Short bool
}

// Message is a rendered event ready for a sink.
type Message struct {
	Title  string
	Body   string
	Color  string
	Fields []Field
}

// Sink delivers messages to one destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// eventColor maps an event type to a sidebar color.
func eventColor(t models.EventType) string {
	switch t {
	case models.EventIssueClosed, models.EventIssueResumed:
		return ColorSuccess
	case models.EventIssueSuspended, models.EventIssueReopened:
		return ColorWarning
	case models.EventFileDeleted, models.EventDependencyRemoved:
		return ColorError
	default:
		return ColorInfo
	}
}

// Format renders an event.
func Format(ev Event) Message {
	msg := Message{
		Title: fmt.Sprintf("%s %s", ev.Ref, ev.Subject),
		Body:  ev.Text,
		Color: eventColor(ev.Type),
		Fields: []Field{
			{Name: "Event", Value: string(ev.Type), Short: true},
			{Name: "By", Value: ev.Actor, Short: true},
		},
	}
	if !ev.At.IsZero() {
		msg.Fields = append(msg.Fields, Field{Name: "At", Value: ev.At.UTC().Format(time.RFC3339), Short: true})
	}
	return msg
}

// Dispatcher fans events out to every sink.
type Dispatcher struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewDispatcher returns a dispatcher over sinks. A nil logger discards.
func NewDispatcher(logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{sinks: sinks, logger: logger}
}

// Enabled reports whether any sink is configured.
func (d *Dispatcher) Enabled() bool {
	return d != nil && len(d.sinks) > 0
}

// Publish sends every event to every sink, in order. Errors are logged.
func (d *Dispatcher) Publish(ctx context.Context, events []Event) {
	if !d.Enabled() {
		return
	}
	for _, ev := range events {
		msg := Format(ev)
		for _, sink := range d.sinks {
			if err := sink.Send(ctx, msg); err != nil {
				d.logger.Warn("notify: delivery failed",
					"sink", sink.Name(), "issue", ev.IssueID, "event", ev.Type, "error", err)
			}
		}
	}
}

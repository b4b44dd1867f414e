package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/zulandar/docket/internal/audit"
	"github.com/zulandar/docket/internal/issue"
	"github.com/zulandar/docket/internal/models"
	"golang.org/x/term"
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// table aligns rows with a tabwriter on a terminal and writes plain
// tab-separated lines otherwise.
type table struct {
	out io.Writer
	tw  *tabwriter.Writer
}

func newTable(out io.Writer) *table {
	t := &table{out: out}
	if isTerminal(out) {
		t.tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	}
	return t
}

func (t *table) row(cells ...string) {
	line := strings.Join(cells, "\t") + "\n"
	if t.tw != nil {
		io.WriteString(t.tw, line)
		return
	}
	io.WriteString(t.out, line)
}

func (t *table) flush() {
	if t.tw != nil {
		t.tw.Flush()
	}
}

func ref(i *models.Issue) string {
	return models.FullID(i.State.Template.Prefix, i.ID)
}

// localTime renders t in the user's timezone, falling back to UTC.
func localTime(t time.Time, u *models.User) string {
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02 15:04")
}

// formatValue renders a logical field value. List values show the item text.
func formatValue(f *models.Field, v any) string {
	if v == nil {
		return "-"
	}
	switch x := v.(type) {
	case bool:
		if x {
			return "yes"
		}
		return "no"
	case uint:
		if f.Type == models.FieldList {
			for _, it := range f.ListItems {
				if it.ID == x {
					return it.Text
				}
			}
		}
		if f.Type == models.FieldIssue {
			return fmt.Sprintf("#%d", x)
		}
	}
	return fmt.Sprint(v)
}

func printDetail(out io.Writer, d *issue.Detail, viewer *models.User) {
	i := &d.Issue
	fmt.Fprintf(out, "%s  %s\n\n", ref(i), i.Subject)

	t := newTable(out)
	t.row("State:", i.State.Name)
	t.row("Author:", i.Author.Fullname)
	responsible := "-"
	if i.Responsible != nil {
		responsible = i.Responsible.Fullname
	}
	t.row("Responsible:", responsible)
	t.row("Created:", localTime(i.CreatedAt, viewer))
	t.row("Changed:", localTime(i.ChangedAt, viewer))
	if i.ClosedAt != nil {
		t.row("Closed:", localTime(*i.ClosedAt, viewer))
	}
	if i.ResumesAt != nil {
		t.row("Suspended until:", localTime(*i.ResumesAt, viewer))
	}
	if len(d.Dependencies) > 0 {
		deps := make([]string, len(d.Dependencies))
		for k, id := range d.Dependencies {
			deps[k] = fmt.Sprintf("#%d", id)
		}
		t.row("Depends on:", strings.Join(deps, ", "))
	}
	t.flush()

	if len(d.Values) == 0 {
		return
	}
	fmt.Fprintln(out, "\nFields:")
	t = newTable(out)
	t.row("ID", "NAME", "VALUE")
	for _, v := range d.Values {
		t.row(fmt.Sprint(v.Field.ID), v.Field.Name, formatValue(&v.Field, v.Value))
	}
	t.flush()
}

func printHistory(out io.Writer, entries []audit.Entry, viewer *models.User) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No events.")
		return
	}
	t := newTable(out)
	t.row("WHEN", "WHO", "EVENT", "DETAIL")
	for _, e := range entries {
		t.row(localTime(e.Event.CreatedAt, viewer), e.Event.User.Fullname, string(e.Event.Type), eventDetail(e))
	}
	t.flush()
}

func eventDetail(e audit.Entry) string {
	switch {
	case e.Comment != nil:
		body := strings.ReplaceAll(e.Comment.Body, "\n", " ")
		if r := []rune(body); len(r) > 60 {
			body = string(r[:57]) + "..."
		}
		return body
	case e.File != nil:
		return e.File.FileName
	case len(e.Changes) > 0:
		return fmt.Sprintf("%d field change(s)", len(e.Changes))
	case e.Event.Parameter != nil:
		return fmt.Sprint(*e.Event.Parameter)
	}
	return ""
}

// printError writes err to w, listing field violations one per line.
func printError(w io.Writer, err error) {
	var verr *issue.ValidationError
	if errors.As(err, &verr) {
		fmt.Fprintf(w, "Error: %s\n", verr.Summary)
		for _, v := range verr.Violations {
			fmt.Fprintf(w, "  %s: %s\n", v.Field, v.Message)
		}
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}

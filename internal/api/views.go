package api

import (
	"time"

	"github.com/zulandar/docket/internal/audit"
	"github.com/zulandar/docket/internal/issue"
	"github.com/zulandar/docket/internal/models"
)

type stateView struct {
	ID   uint             `json:"id"`
	Name string           `json:"name"`
	Type models.StateType `json:"type"`
}

type valueView struct {
	FieldID uint             `json:"field_id"`
	Name    string           `json:"name"`
	Type    models.FieldType `json:"type"`
	Value   any              `json:"value"`
}

type issueView struct {
	ID            uint        `json:"id"`
	Ref           string      `json:"ref"`
	Subject       string      `json:"subject"`
	State         stateView   `json:"state"`
	AuthorID      uint        `json:"author_id"`
	ResponsibleID *uint       `json:"responsible_id"`
	OriginID      *uint       `json:"origin_id,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	ChangedAt     time.Time   `json:"changed_at"`
	ClosedAt      *time.Time  `json:"closed_at,omitempty"`
	ResumesAt     *time.Time  `json:"resumes_at,omitempty"`
	Values        []valueView `json:"values,omitempty"`
	Watching      bool        `json:"watching"`
	Dependencies  []uint      `json:"dependencies,omitempty"`
}

func viewIssue(i *models.Issue) issueView {
	return issueView{
		ID:            i.ID,
		Ref:           models.FullID(i.State.Template.Prefix, i.ID),
		Subject:       i.Subject,
		State:         stateView{ID: i.State.ID, Name: i.State.Name, Type: i.State.Type},
		AuthorID:      i.AuthorID,
		ResponsibleID: i.ResponsibleID,
		OriginID:      i.OriginID,
		CreatedAt:     i.CreatedAt,
		ChangedAt:     i.ChangedAt,
		ClosedAt:      i.ClosedAt,
		ResumesAt:     i.ResumesAt,
	}
}

func viewDetail(d *issue.Detail) issueView {
	v := viewIssue(&d.Issue)
	v.Watching = d.Watching
	v.Dependencies = d.Dependencies
	v.Values = make([]valueView, len(d.Values))
	for i, val := range d.Values {
		v.Values[i] = valueView{FieldID: val.Field.ID, Name: val.Field.Name, Type: val.Field.Type, Value: val.Value}
	}
	return v
}

type changeView struct {
	FieldID  *uint  `json:"field_id"`
	OldValue *int64 `json:"old_value"`
	NewValue *int64 `json:"new_value"`
}

type fileView struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
	Removed  bool   `json:"removed,omitempty"`
}

type eventView struct {
	ID        uint             `json:"id"`
	Type      models.EventType `json:"type"`
	UserID    uint             `json:"user_id"`
	User      string           `json:"user"`
	CreatedAt time.Time        `json:"created_at"`
	Parameter *int64           `json:"parameter,omitempty"`
	Changes   []changeView     `json:"changes,omitempty"`
	Comment   *string          `json:"comment,omitempty"`
	Private   bool             `json:"private,omitempty"`
	File      *fileView        `json:"file,omitempty"`
}

func viewFile(f *models.File) *fileView {
	return &fileView{ID: f.ID, Name: f.FileName, Size: f.FileSize, MimeType: f.MimeType, Removed: f.IsRemoved()}
}

func viewHistory(entries []audit.Entry) []eventView {
	out := make([]eventView, len(entries))
	for i, e := range entries {
		ev := eventView{
			ID:        e.Event.ID,
			Type:      e.Event.Type,
			UserID:    e.Event.UserID,
			User:      e.Event.User.Fullname,
			CreatedAt: e.Event.CreatedAt,
			Parameter: e.Event.Parameter,
		}
		for _, ch := range e.Changes {
			ev.Changes = append(ev.Changes, changeView{FieldID: ch.FieldID, OldValue: ch.OldValue, NewValue: ch.NewValue})
		}
		if e.Comment != nil {
			ev.Comment = &e.Comment.Body
			ev.Private = e.Comment.IsPrivate
		}
		if e.File != nil {
			ev.File = viewFile(e.File)
		}
		out[i] = ev
	}
	return out
}

type itemView struct {
	ID    uint   `json:"id"`
	Value int    `json:"value"`
	Text  string `json:"text"`
}

type fieldView struct {
	ID          uint             `json:"id"`
	Name        string           `json:"name"`
	Type        models.FieldType `json:"type"`
	Description string           `json:"description,omitempty"`
	Position    int              `json:"position"`
	Required    bool             `json:"required"`
	Default     any              `json:"default"`
	Items       []itemView       `json:"items,omitempty"`
}

func viewFields(fields []issue.FieldDefault) []fieldView {
	out := make([]fieldView, len(fields))
	for i, fd := range fields {
		v := fieldView{
			ID:          fd.Field.ID,
			Name:        fd.Field.Name,
			Type:        fd.Field.Type,
			Description: fd.Field.Description,
			Position:    fd.Field.Position,
			Required:    fd.Field.IsRequired,
			Default:     fd.Default,
		}
		for _, item := range fd.Field.ListItems {
			v.Items = append(v.Items, itemView{ID: item.ID, Value: item.Value, Text: item.Text})
		}
		out[i] = v
	}
	return out
}

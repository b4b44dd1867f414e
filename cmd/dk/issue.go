package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/docket/internal/access"
	"github.com/zulandar/docket/internal/blob"
	"github.com/zulandar/docket/internal/config"
	"github.com/zulandar/docket/internal/i18n"
	"github.com/zulandar/docket/internal/issue"
	"github.com/zulandar/docket/internal/models"
	"github.com/zulandar/docket/internal/notify"
	"gorm.io/gorm"
)

func newIssueCmd(g *globals) *cobra.Command {
	var as string

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue management commands",
	}
	cmd.PersistentFlags().StringVar(&as, "as", "", "acting user, by id or email")
	cmd.MarkPersistentFlagRequired("as")

	cmd.AddCommand(newIssueCreateCmd(g, &as))
	cmd.AddCommand(newIssueShowCmd(g, &as))
	cmd.AddCommand(newIssueHistoryCmd(g, &as))
	cmd.AddCommand(newIssueStateCmd(g, &as))
	cmd.AddCommand(newIssueAssignCmd(g, &as))
	cmd.AddCommand(newIssueSuspendCmd(g, &as))
	cmd.AddCommand(newIssueResumeCmd(g, &as))
	cmd.AddCommand(newIssueCommentCmd(g, &as))
	return cmd
}

// session is an issue service bound to the acting user.
type session struct {
	svc   *issue.Service
	actor *models.User
}

func (g *globals) session(cmd *cobra.Command, as string) (*session, error) {
	cfg, gormDB, err := g.connect()
	if err != nil {
		return nil, err
	}
	actor, err := resolveActor(cmd.Context(), gormDB, as)
	if err != nil {
		return nil, err
	}
	svc, _, err := newService(g, cmd, cfg, gormDB)
	if err != nil {
		return nil, err
	}
	return &session{svc: svc, actor: actor}, nil
}

// newService wires the issue service the same way for the CLI and the API.
func newService(g *globals, cmd *cobra.Command, cfg *config.Config, gormDB *gorm.DB) (*issue.Service, *blob.Store, error) {
	log := g.logger(cmd)
	sinks, err := notifySinks(cfg.Notify)
	if err != nil {
		return nil, nil, err
	}
	translator, err := i18n.New()
	if err != nil {
		return nil, nil, err
	}
	store := blob.NewOS(cfg.Storage.Path)
	svc := issue.New(gormDB, access.NewDB(), issue.Options{
		Blobs:       store,
		Translator:  translator,
		Notifier:    notify.NewDispatcher(log, sinks...),
		Logger:      log,
		MaxFileSize: cfg.Storage.MaxUploadSize,
		Locale:      cfg.Locale,
	})
	return svc, store, nil
}

// resolveActor finds an enabled user by id or email.
func resolveActor(ctx context.Context, gormDB *gorm.DB, ref string) (*models.User, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("--as is required")
	}
	q := gormDB.WithContext(ctx)
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		q = q.Where("id = ?", id)
	} else {
		q = q.Where("email = ?", ref)
	}
	var user models.User
	if err := q.Take(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("unknown user %q", ref)
		}
		return nil, fmt.Errorf("look up user %q: %w", ref, err)
	}
	if user.IsDisabled {
		return nil, fmt.Errorf("user %q is disabled", ref)
	}
	return &user, nil
}

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid issue id %q", s)
	}
	return uint(id), nil
}

// parseFields turns repeated "<field id>=<value>" flags into field input.
// Values stay text; the field catalog converts them.
func parseFields(flags []string) (map[uint]any, error) {
	out := make(map[uint]any, len(flags))
	for _, f := range flags {
		key, value, ok := strings.Cut(f, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --field %q, want <field id>=<value>", f)
		}
		id, err := strconv.ParseUint(strings.TrimSpace(key), 10, 64)
		if err != nil || id == 0 {
			return nil, fmt.Errorf("invalid field id in --field %q", f)
		}
		out[uint(id)] = value
	}
	return out, nil
}

func optionalID(id uint) *uint {
	if id == 0 {
		return nil
	}
	return &id
}

func newIssueCreateCmd(g *globals, as *string) *cobra.Command {
	var (
		templateID  uint
		subject     string
		responsible uint
		fields      []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a new issue",
		Long: `Opens an issue in the initial state of a template.

Field values are given as --field <field id>=<value>. List fields take the
item id, checkboxes take true/false, dates YYYY-MM-DD and durations H:MM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.session(cmd, *as)
			if err != nil {
				return err
			}
			values, err := parseFields(fields)
			if err != nil {
				return err
			}
			created, err := s.svc.Create(cmd.Context(), s.actor, issue.CreateIssue{
				TemplateID:    templateID,
				Subject:       subject,
				ResponsibleID: optionalID(responsible),
				Fields:        values,
			})
			if err != nil {
				return err
			}
			d, err := s.svc.Get(cmd.Context(), s.actor, created.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s: %s\n", ref(&d.Issue), d.Issue.Subject)
			return nil
		},
	}

	cmd.Flags().UintVarP(&templateID, "template", "t", 0, "template id")
	cmd.Flags().StringVarP(&subject, "subject", "s", "", "issue subject")
	cmd.Flags().UintVar(&responsible, "responsible", 0, "responsible user id")
	cmd.Flags().StringArrayVarP(&fields, "field", "f", nil, "field value as <field id>=<value> (repeatable)")
	cmd.MarkFlagRequired("template")
	cmd.MarkFlagRequired("subject")
	return cmd
}

func newIssueShowCmd(g *globals, as *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an issue with its current field values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			s, err := g.session(cmd, *as)
			if err != nil {
				return err
			}
			d, err := s.svc.Get(cmd.Context(), s.actor, id)
			if err != nil {
				return err
			}
			printDetail(cmd.OutOrStdout(), d, s.actor)
			return nil
		},
	}
}

func newIssueHistoryCmd(g *globals, as *string) *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Show the audit trail of an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			s, err := g.session(cmd, *as)
			if err != nil {
				return err
			}
			entries, err := s.svc.History(cmd.Context(), s.actor, id)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), entries, s.actor)
			return nil
		},
	}
}

func newIssueStateCmd(g *globals, as *string) *cobra.Command {
	var (
		stateID     uint
		responsible uint
		fields      []string
	)

	cmd := &cobra.Command{
		Use:   "state <id>",
		Short: "Move an issue to another state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			values, err := parseFields(fields)
			if err != nil {
				return err
			}
			s, err := g.session(cmd, *as)
			if err != nil {
				return err
			}
			if err := s.svc.ChangeState(cmd.Context(), s.actor, issue.ChangeState{
				IssueID:       id,
				StateID:       stateID,
				ResponsibleID: optionalID(responsible),
				Fields:        values,
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Issue %d moved to state %d\n", id, stateID)
			return nil
		},
	}

	cmd.Flags().UintVar(&stateID, "to", 0, "target state id")
	cmd.Flags().UintVar(&responsible, "responsible", 0, "responsible user id")
	cmd.Flags().StringArrayVarP(&fields, "field", "f", nil, "field value as <field id>=<value> (repeatable)")
	cmd.MarkFlagRequired("to")
	return cmd
}

func newIssueAssignCmd(g *globals, as *string) *cobra.Command {
	var responsible uint

	cmd := &cobra.Command{
		Use:   "assign <id>",
		Short: "Reassign an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			s, err := g.session(cmd, *as)
			if err != nil {
				return err
			}
			if err := s.svc.Reassign(cmd.Context(), s.actor, issue.ReassignIssue{IssueID: id, ResponsibleID: responsible}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Issue %d assigned to user %d\n", id, responsible)
			return nil
		},
	}

	cmd.Flags().UintVar(&responsible, "to", 0, "new responsible user id")
	cmd.MarkFlagRequired("to")
	return cmd
}

func newIssueSuspendCmd(g *globals, as *string) *cobra.Command {
	var until string

	cmd := &cobra.Command{
		Use:   "suspend <id>",
		Short: "Suspend an issue until a date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			s, err := g.session(cmd, *as)
			if err != nil {
				return err
			}
			if err := s.svc.Suspend(cmd.Context(), s.actor, issue.SuspendIssue{IssueID: id, Date: until}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Issue %d suspended until %s\n", id, until)
			return nil
		},
	}

	cmd.Flags().StringVar(&until, "until", "", "resume date as YYYY-MM-DD")
	cmd.MarkFlagRequired("until")
	return cmd
}

func newIssueResumeCmd(g *globals, as *string) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <id>",
		Short: "Resume a suspended issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			s, err := g.session(cmd, *as)
			if err != nil {
				return err
			}
			if err := s.svc.Resume(cmd.Context(), s.actor, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Issue %d resumed\n", id)
			return nil
		},
	}
}

func newIssueCommentCmd(g *globals, as *string) *cobra.Command {
	var (
		body    string
		private bool
	)

	cmd := &cobra.Command{
		Use:   "comment <id>",
		Short: "Add a comment to an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			s, err := g.session(cmd, *as)
			if err != nil {
				return err
			}
			if err := s.svc.Comment(cmd.Context(), s.actor, issue.AddComment{IssueID: id, Body: body, Private: private}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Comment added to issue %d\n", id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&body, "body", "b", "", "comment text")
	cmd.Flags().BoolVar(&private, "private", false, "visible only to users allowed to read private comments")
	cmd.MarkFlagRequired("body")
	return cmd
}

package config

import (
	"fmt"
	"slices"

	"github.com/zulandar/docket/internal/access"
	"github.com/zulandar/docket/internal/models"
)

// UserSeed defines an account created by "dk db init".
type UserSeed struct {
	Email    string `yaml:"email"`
	Fullname string `yaml:"fullname"`
	Timezone string `yaml:"timezone"`
	Locale   string `yaml:"locale"`
	Admin    bool   `yaml:"admin"`
	Disabled bool   `yaml:"disabled"`
}

// GroupSeed defines a group. An empty Project makes it global.
type GroupSeed struct {
	Name        string   `yaml:"name"`
	Project     string   `yaml:"project"`
	Description string   `yaml:"description"`
	Members     []string `yaml:"members"`
}

// ProjectSeed defines a project with its templates.
type ProjectSeed struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Suspended   bool           `yaml:"suspended"`
	Templates   []TemplateSeed `yaml:"templates"`
}

// TemplateSeed defines a workflow.
type TemplateSeed struct {
	Name        string           `yaml:"name"`
	Prefix      string           `yaml:"prefix"`
	Description string           `yaml:"description"`
	Locked      bool             `yaml:"locked"`
	FrozenDays  *int             `yaml:"frozen_days"`
	Permissions []PermissionSeed `yaml:"permissions"`
	States      []StateSeed      `yaml:"states"`
}

// PermissionSeed grants one action to system roles and groups.
type PermissionSeed struct {
	Action string   `yaml:"action"`
	Roles  []string `yaml:"roles"`
	Groups []string `yaml:"groups"`
}

// StateSeed defines a state. Fields are positioned in list order.
type StateSeed struct {
	Name              string           `yaml:"name"`
	Type              string           `yaml:"type"`
	Responsible       string           `yaml:"responsible"`
	ResponsibleGroups []string         `yaml:"responsible_groups"`
	Transitions       []TransitionSeed `yaml:"transitions"`
	Fields            []FieldSeed      `yaml:"fields"`
}

// TransitionSeed allows moving to state To for roles and groups.
type TransitionSeed struct {
	To     string   `yaml:"to"`
	Roles  []string `yaml:"roles"`
	Groups []string `yaml:"groups"`
}

// FieldSeed defines a field. For list fields Default names an item text.
type FieldSeed struct {
	Name        string     `yaml:"name"`
	Type        string     `yaml:"type"`
	Description string     `yaml:"description"`
	Required    bool       `yaml:"required"`
	Min         *string    `yaml:"min"`
	Max         *string    `yaml:"max"`
	MaxLength   *int       `yaml:"max_length"`
	Default     *string    `yaml:"default"`
	Check       *string    `yaml:"check"`
	Search      *string    `yaml:"search"`
	Replace     *string    `yaml:"replace"`
	Items       []ItemSeed `yaml:"items"`
}

// ItemSeed is one option of a list field.
type ItemSeed struct {
	Value int    `yaml:"value"`
	Text  string `yaml:"text"`
}

var (
	stateTypes  = []string{string(models.StateInitial), string(models.StateIntermediate), string(models.StateFinal)}
	policies    = []string{string(models.ResponsibleKeep), string(models.ResponsibleAssign), string(models.ResponsibleRemove)}
	systemRoles = []string{models.RoleAnyone, models.RoleAuthor, models.RoleResponsible}
	fieldTypes  = []string{
		string(models.FieldCheckbox), string(models.FieldDate), string(models.FieldDecimal),
		string(models.FieldDuration), string(models.FieldIssue), string(models.FieldList),
		string(models.FieldNumber), string(models.FieldString), string(models.FieldText),
	}
)

// validateSeed checks references between seed entries. Field parameters
// are checked when the seed is applied.
func (c *Config) validateSeed() []string {
	var errs []string
	users := map[string]bool{}
	for i, u := range c.Users {
		if u.Email == "" {
			errs = append(errs, fmt.Sprintf("users[%d].email is required", i))
		}
		if users[u.Email] {
			errs = append(errs, fmt.Sprintf("users[%d].email %q is duplicated", i, u.Email))
		}
		users[u.Email] = true
		if u.Fullname == "" {
			errs = append(errs, fmt.Sprintf("users[%d].fullname is required", i))
		}
	}

	projects := map[string]bool{}
	for _, p := range c.Projects {
		projects[p.Name] = true
	}
	groups := map[string]bool{}
	for i, g := range c.Groups {
		if g.Name == "" {
			errs = append(errs, fmt.Sprintf("groups[%d].name is required", i))
		}
		groups[g.Name] = true
		if g.Project != "" && !projects[g.Project] {
			errs = append(errs, fmt.Sprintf("groups[%d].project %q is not defined", i, g.Project))
		}
		for _, m := range g.Members {
			if !users[m] {
				errs = append(errs, fmt.Sprintf("groups[%d].members: unknown user %q", i, m))
			}
		}
	}

	for i, p := range c.Projects {
		if p.Name == "" {
			errs = append(errs, fmt.Sprintf("projects[%d].name is required", i))
		}
		for j, t := range p.Templates {
			errs = append(errs, validateTemplate(fmt.Sprintf("projects[%d].templates[%d]", i, j), t, groups)...)
		}
	}
	return errs
}

func validateTemplate(at string, t TemplateSeed, groups map[string]bool) []string {
	var errs []string
	if t.Name == "" {
		errs = append(errs, at+".name is required")
	}
	if t.Prefix == "" || len(t.Prefix) > 5 {
		errs = append(errs, at+".prefix must have 1 to 5 characters")
	}
	for k, p := range t.Permissions {
		pat := fmt.Sprintf("%s.permissions[%d]", at, k)
		if !access.Action(p.Action).Valid() {
			errs = append(errs, fmt.Sprintf("%s.action %q is unknown", pat, p.Action))
		}
		errs = append(errs, validateGrantees(pat, p.Roles, p.Groups, groups)...)
	}

	states := map[string]bool{}
	initial := 0
	for _, s := range t.States {
		states[s.Name] = true
		if s.Type == string(models.StateInitial) {
			initial++
		}
	}
	if initial != 1 {
		errs = append(errs, fmt.Sprintf("%s needs exactly one initial state, has %d", at, initial))
	}
	for k, s := range t.States {
		sat := fmt.Sprintf("%s.states[%d]", at, k)
		if s.Name == "" {
			errs = append(errs, sat+".name is required")
		}
		if !slices.Contains(stateTypes, s.Type) {
			errs = append(errs, fmt.Sprintf("%s.type %q is unknown", sat, s.Type))
		}
		if !slices.Contains(policies, s.Responsible) {
			errs = append(errs, fmt.Sprintf("%s.responsible %q is unknown", sat, s.Responsible))
		}
		for _, g := range s.ResponsibleGroups {
			if !groups[g] {
				errs = append(errs, fmt.Sprintf("%s.responsible_groups: unknown group %q", sat, g))
			}
		}
		for m, tr := range s.Transitions {
			if !states[tr.To] {
				errs = append(errs, fmt.Sprintf("%s.transitions[%d].to %q is not a state of the template", sat, m, tr.To))
			}
			errs = append(errs, validateGrantees(fmt.Sprintf("%s.transitions[%d]", sat, m), tr.Roles, tr.Groups, groups)...)
		}
		for m, f := range s.Fields {
			if f.Name == "" {
				errs = append(errs, fmt.Sprintf("%s.fields[%d].name is required", sat, m))
			}
			if !slices.Contains(fieldTypes, f.Type) {
				errs = append(errs, fmt.Sprintf("%s.fields[%d].type %q is unknown", sat, m, f.Type))
			}
		}
	}
	return errs
}

func validateGrantees(at string, roles, groupNames []string, known map[string]bool) []string {
	var errs []string
	for _, r := range roles {
		if !slices.Contains(systemRoles, r) {
			errs = append(errs, fmt.Sprintf("%s: unknown role %q", at, r))
		}
	}
	for _, name := range groupNames {
		if !known[name] {
			errs = append(errs, fmt.Sprintf("%s: unknown group %q", at, name))
		}
	}
	if len(roles) == 0 && len(groupNames) == 0 {
		errs = append(errs, at+": needs at least one role or group")
	}
	return errs
}

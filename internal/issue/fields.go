package issue

import (
	"fmt"

	"github.com/zulandar/docket/internal/field"
	"github.com/zulandar/docket/internal/models"
)

// formField pairs a field definition with its facade.
type formField struct {
	def    *models.Field
	facade field.Facade
}

// fillFunc supplies the value of a field the input omits.
type fillFunc func(ff formField) (any, error)

// valueWrite is a storage cell to persist for one field. row is nil when
// the issue never carried the field.
type valueWrite struct {
	ff   formField
	row  *models.FieldValue
	cell *int64
}

// activeFields returns the non-removed fields of a state in position order.
func (c *cmd) activeFields(stateID uint) ([]models.Field, error) {
	var fields []models.Field
	err := c.tx.Preload("ListItems").
		Where("state_id = ? AND removed_at IS NULL", stateID).
		Order("position, id").
		Find(&fields).Error
	if err != nil {
		return nil, fmt.Errorf("issue: fields of state %d: %w", stateID, err)
	}
	return fields, nil
}

// currentValues returns the stored values of an issue keyed by field id.
func (c *cmd) currentValues(issueID uint) (map[uint]*models.FieldValue, error) {
	var rows []models.FieldValue
	if err := c.tx.Preload("Field.ListItems").Where("issue_id = ?", issueID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("issue: values of %d: %w", issueID, err)
	}
	out := make(map[uint]*models.FieldValue, len(rows))
	for i := range rows {
		out[rows[i].FieldID] = &rows[i]
	}
	return out, nil
}

// readValue converts a stored row back into its logical value.
func (c *cmd) readValue(ff formField, row *models.FieldValue, env field.Env) (any, error) {
	v, err := ff.facade.Read(c.tx, row.Value, env)
	if err != nil {
		return nil, fmt.Errorf("issue: read field %d: %w", ff.def.ID, err)
	}
	return v, nil
}

// defaults fills omitted fields with their default value.
func defaults(env field.Env) fillFunc {
	return func(ff formField) (any, error) {
		return ff.facade.Default(env), nil
	}
}

// keepOrDefault fills omitted fields with the issue's current value when it
// carries one, and with the default otherwise.
func (c *cmd) keepOrDefault(current map[uint]*models.FieldValue, env field.Env) fillFunc {
	return func(ff formField) (any, error) {
		if row, ok := current[ff.def.ID]; ok {
			return c.readValue(ff, row, env)
		}
		return ff.facade.Default(env), nil
	}
}

// validate builds the rules of fields, fills omitted inputs and validates
// the resulting set strictly: inputs for other fields are violations.
// optional relaxes the required flag of individual fields.
func (c *cmd) validate(fields []models.Field, input map[uint]any, env field.Env, fill fillFunc, optional func(*models.Field) bool) ([]formField, map[uint]any, error) {
	var (
		forms  = make([]formField, len(fields))
		rules  = make([]field.Rule, len(fields))
		merged = make(map[uint]any, len(fields))
	)
	for k, v := range input {
		merged[k] = v
	}
	for i := range fields {
		def := &fields[i]
		facade, err := field.For(def)
		if err != nil {
			return nil, nil, fmt.Errorf("issue: %w", err)
		}
		forms[i] = formField{def: def, facade: facade}
		rules[i] = facade.Rule(env)
		if optional != nil && optional(def) {
			rules[i].Required = false
		}
		if _, ok := input[def.ID]; !ok {
			v, err := fill(forms[i])
			if err != nil {
				return nil, nil, err
			}
			merged[def.ID] = v
		}
	}

	normalized, violations := field.ValidateSet(rules, merged, field.SetOptions{})
	if len(violations) > 0 {
		return nil, nil, c.fieldViolations(forms, violations)
	}
	return forms, normalized, nil
}

// fieldViolations translates catalog violations into a ValidationError.
func (c *cmd) fieldViolations(forms []formField, violations []field.Violation) error {
	names := make(map[uint]string, len(forms))
	for _, ff := range forms {
		names[ff.def.ID] = ff.def.Name
	}
	out := make([]Violation, len(violations))
	for i, v := range violations {
		name, ok := names[v.FieldID]
		if !ok {
			name = fmt.Sprintf("field %d", v.FieldID)
		}
		out[i] = Violation{
			FieldID: v.FieldID,
			Field:   name,
			Key:     v.Key,
			Message: c.translate(v.Key, v.Args...),
		}
	}
	return c.invalid(out...)
}

// invalid wraps violations into a ValidationError.
func (c *cmd) invalid(violations ...Violation) error {
	return &ValidationError{
		Summary:    c.translate("validation.summary", len(violations)),
		Violations: violations,
	}
}

// planValues converts normalized values into storage cells and keeps only
// the ones that are new or differ from the stored row.
func (c *cmd) planValues(forms []formField, normalized map[uint]any, current map[uint]*models.FieldValue) ([]valueWrite, error) {
	var writes []valueWrite
	for _, ff := range forms {
		cell, err := ff.facade.Store(c.tx, normalized[ff.def.ID])
		if err != nil {
			return nil, fmt.Errorf("issue: store field %d: %w", ff.def.ID, err)
		}
		row := current[ff.def.ID]
		if row != nil && sameCell(row.Value, cell) {
			continue
		}
		writes = append(writes, valueWrite{ff: ff, row: row, cell: cell})
	}
	return writes, nil
}

// applyValues persists planned cells. Changed existing rows get a change
// record on ev; first-time rows do not.
func (c *cmd) applyValues(issue *models.Issue, writes []valueWrite, ev *models.Event) error {
	for _, w := range writes {
		fieldID := w.ff.def.ID
		if w.row == nil {
			row := models.FieldValue{IssueID: issue.ID, FieldID: fieldID, Value: w.cell, CreatedAt: c.now}
			if err := c.tx.Omit("Field").Create(&row).Error; err != nil {
				return fmt.Errorf("issue: create value of field %d: %w", fieldID, err)
			}
			continue
		}
		if err := c.tx.Model(&models.FieldValue{}).Where("id = ?", w.row.ID).
			Update("value", w.cell).Error; err != nil {
			return fmt.Errorf("issue: update value of field %d: %w", fieldID, err)
		}
		if _, err := c.trail.AppendChange(c.tx, ev, &fieldID, w.row.Value, w.cell); err != nil {
			return err
		}
	}
	return nil
}

func sameCell(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

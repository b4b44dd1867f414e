package field

import (
	"slices"
)

// SetOptions relaxes ValidateSet.
type SetOptions struct {
	// AllowExtra accepts inputs for fields without a rule.
	AllowExtra bool
	// AllowMissing accepts rules without an input.
	AllowMissing bool
}

// ValidateSet validates a flat map of field id to logical value against a
// set of rules. It returns the normalized values keyed by field id and every
// violation found, in rule order followed by unexpected inputs.
func ValidateSet(rules []Rule, input map[uint]any, opts SetOptions) (map[uint]any, []Violation) {
	var (
		out        = make(map[uint]any, len(rules))
		violations []Violation
		known      = make(map[uint]bool, len(rules))
	)
	for _, r := range rules {
		known[r.FieldID] = true
		v, ok := input[r.FieldID]
		if !ok {
			if !opts.AllowMissing {
				violations = append(violations, Violation{FieldID: r.FieldID, Key: MsgMissing})
			}
			continue
		}
		normalized, fail := r.Validate(v)
		if fail != nil {
			violations = append(violations, *fail)
			continue
		}
		out[r.FieldID] = normalized
	}
	if !opts.AllowExtra {
		var extra []uint
		for id := range input {
			if !known[id] {
				extra = append(extra, id)
			}
		}
		slices.Sort(extra)
		for _, id := range extra {
			violations = append(violations, Violation{FieldID: id, Key: MsgUnexpected})
		}
	}
	return out, violations
}

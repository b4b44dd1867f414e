package field

import (
	"testing"

	"github.com/zulandar/docket/internal/models"
)

func testRules(t *testing.T) []Rule {
	t.Helper()
	return []Rule{
		mustFacade(t, &models.Field{ID: 1, Type: models.FieldNumber, IsRequired: true}).Rule(Env{}),
		mustFacade(t, &models.Field{ID: 2, Type: models.FieldString}).Rule(Env{}),
	}
}

func TestValidateSet_Strict(t *testing.T) {
	out, violations := ValidateSet(testRules(t), map[uint]any{1: 3, 2: "x"}, SetOptions{})
	if len(violations) != 0 {
		t.Fatalf("violations = %+v", violations)
	}
	if out[1] != int64(3) || out[2] != "x" {
		t.Errorf("out = %+v", out)
	}
}

func TestValidateSet_MissingAndExtra(t *testing.T) {
	_, violations := ValidateSet(testRules(t), map[uint]any{1: 3, 9: "x", 8: 1}, SetOptions{})
	want := []Violation{
		{FieldID: 2, Key: MsgMissing},
		{FieldID: 8, Key: MsgUnexpected},
		{FieldID: 9, Key: MsgUnexpected},
	}
	if len(violations) != len(want) {
		t.Fatalf("violations = %+v, want %+v", violations, want)
	}
	for i := range want {
		if violations[i].FieldID != want[i].FieldID || violations[i].Key != want[i].Key {
			t.Errorf("violation[%d] = %+v, want %+v", i, violations[i], want[i])
		}
	}
}

func TestValidateSet_Relaxed(t *testing.T) {
	out, violations := ValidateSet(testRules(t), map[uint]any{2: "only", 9: true}, SetOptions{AllowExtra: true, AllowMissing: true})
	if len(violations) != 0 {
		t.Fatalf("violations = %+v", violations)
	}
	if _, ok := out[1]; ok {
		t.Error("missing field should not be present in output")
	}
	if _, ok := out[9]; ok {
		t.Error("extra input should not be present in output")
	}
}

func TestValidateSet_CollectsAllViolations(t *testing.T) {
	_, violations := ValidateSet(testRules(t), map[uint]any{1: nil, 2: 7}, SetOptions{})
	if len(violations) != 2 {
		t.Fatalf("violations = %+v, want 2", violations)
	}
	if violations[0].Key != MsgRequired || violations[1].Key != MsgInvalid {
		t.Errorf("keys = %s, %s", violations[0].Key, violations[1].Key)
	}
}

package project

import (
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/miniproj/internal/model"
	"github.com/hitoshi/miniproj/internal/security"
)

func validInput() CreateInput {
	return CreateInput{
		OwnerUUID:   "u-001",
		Name:        "Demo",
		GroupName:   "G1",
		PeopleCount: json.Number("3"),
		SubmitTime:  "2024-06-01T09:00:00Z",
	}
}

func violationsOf(t *testing.T, err error) []string {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *model.APIError", err)
	}
	if apiErr.Code != model.ErrCodeValidation {
		t.Fatalf("Code = %q, want %q", apiErr.Code, model.ErrCodeValidation)
	}
	return apiErr.Details
}

func hasViolation(violations []string, field string) bool {
	return slices.ContainsFunc(violations, func(v string) bool {
		return strings.HasPrefix(v, field+":")
	})
}

// TestParseSubmitTime は受け付ける日時書式を検証する。
func TestParseSubmitTime(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
		ok    bool
	}{
		{"2024-06-01T09:00:00Z", time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC), true},
		{"2024-06-01T09:00:00.123Z", time.Date(2024, 6, 1, 9, 0, 0, 123000000, time.UTC), true},
		{"2024-06-01T18:00:00+09:00", time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC), true},
		{"2024-06-01 09:00:00", time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC), true},
		{"2024-06-01", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), true},
		{" 2024-06-01 ", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), true},
		{"next tuesday", time.Time{}, false},
		{"2024-13-01", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseSubmitTime(tt.input)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("ParseSubmitTime = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestValidateCreate_AggregatesViolations はすべての違反がまとめて返されることを検証する。
func TestValidateCreate_AggregatesViolations(t *testing.T) {
	leader := "  "
	in := CreateInput{
		OwnerUUID:   "",
		Name:        "   ",
		GroupName:   "<b></b>",
		PeopleCount: json.Number("0"),
		SubmitTime:  "",
		Members:     []string{"u-002", ""},
		LeaderUUID:  &leader,
	}
	_, err := validateCreate(in, security.NewTextSanitizer())
	violations := violationsOf(t, err)

	for _, field := range []string{"name", "groupName", "peopleCount", "ownerUuid", "submitTime", "members[1]", "leaderUuid"} {
		if !hasViolation(violations, field) {
			t.Errorf("violation for %s missing in %v", field, violations)
		}
	}
	if hasViolation(violations, "members[0]") {
		t.Errorf("unexpected violation for members[0] in %v", violations)
	}
}

// TestValidateCreate_PeopleCount は人数の整数判定を検証する。
func TestValidateCreate_PeopleCount(t *testing.T) {
	tests := []struct {
		input json.Number
		want  int
		ok    bool
	}{
		{"3", 3, true},
		{"3.0", 3, true},
		{"1", 1, true},
		{"3.5", 0, false},
		{"0", 0, false},
		{"-2", 0, false},
		{"", 0, false},
		{"abc", 0, false},
		{"99999999999", 0, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			in := validInput()
			in.PeopleCount = tt.input
			got, err := validateCreate(in, nil)
			if !tt.ok {
				if !hasViolation(violationsOf(t, err), "peopleCount") {
					t.Errorf("expected peopleCount violation for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("validateCreate: %v", err)
			}
			if got.peopleCount != tt.want {
				t.Errorf("peopleCount = %d, want %d", got.peopleCount, tt.want)
			}
		})
	}
}

// TestPeopleCount_SameRuleForCreateAndUpdate は作成と更新で人数の型規則が一致することを検証する。
func TestPeopleCount_SameRuleForCreateAndUpdate(t *testing.T) {
	tests := []struct {
		name  string
		input any
		ok    bool
	}{
		{"number", json.Number("3"), true},
		{"float", 3.0, true},
		{"numeric string", "3", false},
		{"bool", true, false},
		{"zero", json.Number("0"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			in.PeopleCount = tt.input
			_, createErr := validateCreate(in, nil)

			v := &validator{}
			validatePatch(v, map[string]any{"peopleCount": tt.input})
			updateErr := v.err()

			if tt.ok {
				if createErr != nil || updateErr != nil {
					t.Fatalf("create = %v, update = %v, want both nil", createErr, updateErr)
				}
				return
			}
			if !hasViolation(violationsOf(t, createErr), "peopleCount") {
				t.Errorf("create: expected peopleCount violation for %v", tt.input)
			}
			if !hasViolation(violationsOf(t, updateErr), "peopleCount") {
				t.Errorf("update: expected peopleCount violation for %v", tt.input)
			}
		})
	}
}

// TestValidateCreate_UnparsableSubmitTime は解析できない提出日時を拒否することを検証する。
func TestValidateCreate_UnparsableSubmitTime(t *testing.T) {
	in := validInput()
	in.SubmitTime = "yesterday"
	_, err := validateCreate(in, nil)
	if !hasViolation(violationsOf(t, err), "submitTime") {
		t.Error("expected submitTime violation")
	}
}

// TestValidateCreate_SanitizesText はプロジェクト名とグループ名からHTMLが除去されることを検証する。
func TestValidateCreate_SanitizesText(t *testing.T) {
	in := validInput()
	in.Name = "  <script>alert(1)</script>Demo  "
	in.GroupName = "<i>G1</i>"
	got, err := validateCreate(in, security.NewTextSanitizer())
	if err != nil {
		t.Fatalf("validateCreate: %v", err)
	}
	if got.name != "Demo" {
		t.Errorf("name = %q, want %q", got.name, "Demo")
	}
	if got.groupName != "G1" {
		t.Errorf("groupName = %q, want %q", got.groupName, "G1")
	}
}

// TestComposeMembers はメンバー一覧に必ずオーナーが含まれることを検証する。
func TestComposeMembers(t *testing.T) {
	tests := []struct {
		name      string
		requested []string
		want      []string
	}{
		{"nil defaults to owner", nil, []string{"u-001"}},
		{"empty list gets owner", []string{}, []string{"u-001"}},
		{"owner appended", []string{"u-002", "u-003"}, []string{"u-002", "u-003", "u-001"}},
		{"owner kept in place", []string{"u-002", "u-001"}, []string{"u-002", "u-001"}},
		{"entries trimmed", []string{" u-002 "}, []string{"u-002", "u-001"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := composeMembers("u-001", tt.requested)
			if !slices.Equal(got, tt.want) {
				t.Errorf("composeMembers = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestValidatePatch はパッチ検証の結果を検証する。
func TestValidatePatch(t *testing.T) {
	t.Run("unknown keys only", func(t *testing.T) {
		v := &validator{}
		patch := validatePatch(v, map[string]any{"status": "done", "leaderUuid": "u-9"})
		if !patch.IsEmpty() {
			t.Errorf("patch = %+v, want empty", patch)
		}
		if !hasViolation(violationsOf(t, v.err()), "fields") {
			t.Error("expected no-valid-fields violation")
		}
	})

	t.Run("unknown keys ignored alongside valid", func(t *testing.T) {
		v := &validator{}
		patch := validatePatch(v, map[string]any{"status": "done", "peopleCount": json.Number("5")})
		if err := v.err(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if patch.PeopleCount == nil || *patch.PeopleCount != 5 {
			t.Errorf("PeopleCount = %v, want 5", patch.PeopleCount)
		}
		if patch.Name != nil || patch.GroupName != nil {
			t.Errorf("unexpected fields in patch: %+v", patch)
		}
	})

	t.Run("all invalid aggregated", func(t *testing.T) {
		v := &validator{sanitizer: security.NewTextSanitizer()}
		validatePatch(v, map[string]any{
			"name":        "",
			"groupName":   42.0,
			"peopleCount": "five",
		})
		violations := violationsOf(t, v.err())
		for _, field := range []string{"name", "groupName", "peopleCount"} {
			if !hasViolation(violations, field) {
				t.Errorf("violation for %s missing in %v", field, violations)
			}
		}
		if hasViolation(violations, "fields") {
			t.Errorf("no-valid-fields must not be reported when keys are present: %v", violations)
		}
	})

	t.Run("float64 people count", func(t *testing.T) {
		v := &validator{}
		patch := validatePatch(v, map[string]any{"peopleCount": 4.0})
		if err := v.err(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if *patch.PeopleCount != 4 {
			t.Errorf("PeopleCount = %d, want 4", *patch.PeopleCount)
		}
	})

	t.Run("nil map", func(t *testing.T) {
		v := &validator{}
		validatePatch(v, nil)
		if !hasViolation(violationsOf(t, v.err()), "fields") {
			t.Error("expected no-valid-fields violation")
		}
	})
}

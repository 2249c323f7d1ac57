package project

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hitoshi/miniproj/internal/model"
	"github.com/hitoshi/miniproj/internal/security"
)

// 更新可能なフィールドのキー。
const (
	FieldName        = "name"
	FieldGroupName   = "groupName"
	FieldPeopleCount = "peopleCount"
)

// submitTimeLayouts は提出日時として受け付ける書式。
var submitTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseSubmitTime は提出日時を解析する。タイムゾーンのない書式はUTCとして扱う。
func ParseSubmitTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range submitTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// validator は違反を集約する。
type validator struct {
	sanitizer  security.Sanitizer
	violations []string
}

func (v *validator) add(format string, args ...any) {
	v.violations = append(v.violations, fmt.Sprintf(format, args...))
}

func (v *validator) err() error {
	if len(v.violations) == 0 {
		return nil
	}
	return model.NewValidationError(v.violations)
}

func (v *validator) clean(s string) string {
	if v.sanitizer == nil {
		return strings.TrimSpace(s)
	}
	return v.sanitizer.Clean(s)
}

// requiredText は空でない文字列であることを検証し、サニタイズ済みの値を返す。
func (v *validator) requiredText(field, value string) string {
	cleaned := v.clean(value)
	if cleaned == "" {
		v.add("%s: 空にできません", field)
	}
	return cleaned
}

// requiredID は空白のみでないIDであることを検証し、前後の空白を除いた値を返す。
func (v *validator) requiredID(field, value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		v.add("%s: 空にできません", field)
	}
	return trimmed
}

// peopleCount は1以上の整数であることを検証する。作成と更新で同じ規則を使う。
func (v *validator) peopleCount(raw any) int {
	if raw == nil {
		v.add("%s: 必須です", FieldPeopleCount)
		return 0
	}
	count, ok := peopleCountFromAny(raw)
	if !ok {
		v.add("%s: 1以上の整数である必要があります", FieldPeopleCount)
		return 0
	}
	return count
}

// integerFromNumber はJSON数値を整数に変換する。3.0は3として受け付け、3.5は拒否する。
func integerFromNumber(n json.Number) (int, bool) {
	if i, err := n.Int64(); err == nil {
		if i > math.MaxInt32 {
			return 0, false
		}
		return int(i), true
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}

// CreateInput はプロジェクト作成の入力。
type CreateInput struct {
	OwnerUUID   string
	Name        string
	GroupName   string
	// PeopleCount はJSON数値のみ受け付ける。数字の文字列は拒否する。
	PeopleCount any
	SubmitTime  string
	// Members はnilの場合オーナーのみになる。
	Members []string
	// LeaderUUID はnilの場合オーナーになる。
	LeaderUUID *string
}

// validatedCreate は検証済みの作成入力。
type validatedCreate struct {
	ownerUUID   string
	name        string
	groupName   string
	peopleCount int
	submitTime  time.Time
	members     []string
	leaderUUID  string
}

// validateCreate は作成入力のすべての違反を集めて検証する。
func validateCreate(in CreateInput, sanitizer security.Sanitizer) (*validatedCreate, error) {
	v := &validator{sanitizer: sanitizer}
	out := &validatedCreate{}

	out.name = v.requiredText(FieldName, in.Name)
	out.groupName = v.requiredText(FieldGroupName, in.GroupName)
	out.peopleCount = v.peopleCount(in.PeopleCount)
	out.ownerUUID = v.requiredID("ownerUuid", in.OwnerUUID)

	if strings.TrimSpace(in.SubmitTime) == "" {
		v.add("submitTime: 必須です")
	} else if t, ok := ParseSubmitTime(in.SubmitTime); !ok {
		v.add("submitTime: 日時として解析できません")
	} else {
		out.submitTime = t
	}

	for i, m := range in.Members {
		if strings.TrimSpace(m) == "" {
			v.add("members[%d]: UUIDが不正です", i)
		}
	}

	if in.LeaderUUID != nil && strings.TrimSpace(*in.LeaderUUID) == "" {
		v.add("leaderUuid: UUIDが不正です")
	}

	if err := v.err(); err != nil {
		return nil, err
	}

	out.members = composeMembers(out.ownerUUID, in.Members)
	out.leaderUUID = out.ownerUUID
	if in.LeaderUUID != nil {
		out.leaderUUID = strings.TrimSpace(*in.LeaderUUID)
	}
	return out, nil
}

// composeMembers はメンバー一覧を組み立てる。指定がなければオーナーのみ、
// オーナーが含まれていなければ末尾に追加する。
func composeMembers(ownerUUID string, requested []string) []string {
	if requested == nil {
		return []string{ownerUUID}
	}
	members := make([]string, 0, len(requested)+1)
	hasOwner := false
	for _, m := range requested {
		m = strings.TrimSpace(m)
		if m == ownerUUID {
			hasOwner = true
		}
		members = append(members, m)
	}
	if !hasOwner {
		members = append(members, ownerUUID)
	}
	return members
}

// validatePatch は更新フィールドを検証してパッチを組み立てる。
// 更新対象外のキーは無視する。
func validatePatch(v *validator, fields map[string]any) model.ProjectPatch {
	var patch model.ProjectPatch
	recognized := 0

	if raw, ok := fields[FieldName]; ok {
		recognized++
		if s, ok := raw.(string); !ok {
			v.add("%s: 文字列である必要があります", FieldName)
		} else if name := v.requiredText(FieldName, s); name != "" {
			patch.Name = &name
		}
	}

	if raw, ok := fields[FieldGroupName]; ok {
		recognized++
		if s, ok := raw.(string); !ok {
			v.add("%s: 文字列である必要があります", FieldGroupName)
		} else if group := v.requiredText(FieldGroupName, s); group != "" {
			patch.GroupName = &group
		}
	}

	if raw, ok := fields[FieldPeopleCount]; ok {
		recognized++
		if count := v.peopleCount(raw); count > 0 {
			patch.PeopleCount = &count
		}
	}

	if recognized == 0 {
		v.add("fields: 更新可能な項目がありません（name, groupName, peopleCount）")
	}
	return patch
}

// peopleCountFromAny はJSONから復元した値を人数に変換する。
func peopleCountFromAny(raw any) (int, bool) {
	var (
		count int
		ok    bool
	)
	switch n := raw.(type) {
	case json.Number:
		count, ok = integerFromNumber(n)
	case float64:
		count, ok = integerFromNumber(json.Number(fmt.Sprint(n)))
	case int:
		count, ok = n, true
	}
	return count, ok && count > 0
}

package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/miniproj/internal/model"
	"github.com/hitoshi/miniproj/internal/repository"
)

// baseTime はストア間で精度差が出ないようミリ秒単位に丸めた基準時刻。
var baseTime = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestUser(uuid string, seq int64, externalID string) *model.User {
	return &model.User{
		UUID:       uuid,
		Seq:        seq,
		Username:   "WeChat User",
		Gender:     model.GenderUnspecified,
		ExternalID: externalID,
		CreatedAt:  baseTime,
	}
}

func newTestProject(projectID, leader string, createdAt time.Time) *model.Project {
	return &model.Project{
		ProjectID:   projectID,
		Name:        "Demo",
		GroupName:   "G1",
		PeopleCount: 3,
		OwnerUUID:   "u-001",
		Members:     []string{"u-002", "u-001"},
		LeaderUUID:  leader,
		SubmitTime:  baseTime,
		CreatedAt:   createdAt,
		Status:      model.ProjectStatusSubmitted,
	}
}

// testUserRepository はUserRepository実装が満たすべき振る舞いを検証する。
func testUserRepository(t *testing.T, repo repository.UserRepository) {
	t.Helper()
	ctx := context.Background()

	seq, err := repo.MaxSequence(ctx)
	if err != nil {
		t.Fatalf("MaxSequence on empty store: %v", err)
	}
	if seq != 0 {
		t.Errorf("MaxSequence on empty store = %d, want 0", seq)
	}

	if err := repo.Create(ctx, newTestUser("u-001", 1, "openid-a")); err != nil {
		t.Fatalf("Create u-001: %v", err)
	}
	if err := repo.Create(ctx, newTestUser("u-010", 10, "openid-b")); err != nil {
		t.Fatalf("Create u-010: %v", err)
	}
	if err := repo.Create(ctx, newTestUser("u-1700000000000", 0, "openid-c")); err != nil {
		t.Fatalf("Create timestamp user: %v", err)
	}

	seq, err = repo.MaxSequence(ctx)
	if err != nil {
		t.Fatalf("MaxSequence: %v", err)
	}
	if seq != 10 {
		t.Errorf("MaxSequence = %d, want 10", seq)
	}

	got, err := repo.FindByExternalID(ctx, "openid-b")
	if err != nil {
		t.Fatalf("FindByExternalID: %v", err)
	}
	if got == nil || got.UUID != "u-010" {
		t.Fatalf("FindByExternalID = %+v, want u-010", got)
	}
	if !got.CreatedAt.Equal(baseTime) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, baseTime)
	}
	if got.Gender != model.GenderUnspecified {
		t.Errorf("Gender = %q, want %q", got.Gender, model.GenderUnspecified)
	}

	missing, err := repo.FindByExternalID(ctx, "openid-zzz")
	if err != nil {
		t.Fatalf("FindByExternalID(missing): %v", err)
	}
	if missing != nil {
		t.Errorf("FindByExternalID(missing) = %+v, want nil", missing)
	}

	byUUID, err := repo.FindByUUID(ctx, "u-001")
	if err != nil {
		t.Fatalf("FindByUUID: %v", err)
	}
	if byUUID == nil || byUUID.ExternalID != "openid-a" {
		t.Fatalf("FindByUUID = %+v, want openid-a", byUUID)
	}

	// uuidの重複
	err = repo.Create(ctx, newTestUser("u-001", 1, "openid-new"))
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Errorf("Create duplicate uuid error = %v, want ErrDuplicate", err)
	}
	// 外部IDの重複
	err = repo.Create(ctx, newTestUser("u-011", 11, "openid-a"))
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Errorf("Create duplicate external ID error = %v, want ErrDuplicate", err)
	}

	if err := repo.UpdateAvatar(ctx, "u-001", "https://img.example/a.png"); err != nil {
		t.Fatalf("UpdateAvatar: %v", err)
	}
	updated, err := repo.FindByUUID(ctx, "u-001")
	if err != nil {
		t.Fatalf("FindByUUID after UpdateAvatar: %v", err)
	}
	if updated.AvatarURL != "https://img.example/a.png" {
		t.Errorf("AvatarURL = %q, want updated value", updated.AvatarURL)
	}
}

// testProjectRepository はProjectRepository実装が満たすべき振る舞いを検証する。
func testProjectRepository(t *testing.T, repo repository.ProjectRepository) {
	t.Helper()
	ctx := context.Background()

	// 作成順と異なる順序で登録し、並び順を検証する
	p2 := newTestProject("proj-2-bbbbbb", "u-001", baseTime.Add(2*time.Minute))
	p1b := newTestProject("proj-1-cccccc", "u-001", baseTime.Add(time.Minute))
	p1a := newTestProject("proj-1-aaaaaa", "u-001", baseTime.Add(time.Minute))
	other := newTestProject("proj-3-dddddd", "u-002", baseTime)
	for _, p := range []*model.Project{p2, p1b, p1a, other} {
		if err := repo.Create(ctx, p); err != nil {
			t.Fatalf("Create %s: %v", p.ProjectID, err)
		}
	}

	if err := repo.Create(ctx, newTestProject("proj-2-bbbbbb", "u-009", baseTime)); !errors.Is(err, repository.ErrDuplicate) {
		t.Errorf("Create duplicate project error = %v, want ErrDuplicate", err)
	}

	list, err := repo.ListByLeader(ctx, "u-001")
	if err != nil {
		t.Fatalf("ListByLeader: %v", err)
	}
	wantOrder := []string{"proj-1-aaaaaa", "proj-1-cccccc", "proj-2-bbbbbb"}
	if len(list) != len(wantOrder) {
		t.Fatalf("ListByLeader returned %d projects, want %d", len(list), len(wantOrder))
	}
	for i, id := range wantOrder {
		if list[i].ProjectID != id {
			t.Errorf("ListByLeader[%d] = %q, want %q", i, list[i].ProjectID, id)
		}
	}

	empty, err := repo.ListByLeader(ctx, "u-404")
	if err != nil {
		t.Fatalf("ListByLeader(no projects): %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("ListByLeader(no projects) = %v, want empty non-nil slice", empty)
	}

	found, err := repo.FindByProjectID(ctx, "proj-3-dddddd")
	if err != nil {
		t.Fatalf("FindByProjectID: %v", err)
	}
	if found == nil {
		t.Fatal("FindByProjectID returned nil")
	}
	if len(found.Members) != 2 || found.Members[0] != "u-002" || found.Members[1] != "u-001" {
		t.Errorf("Members = %v, want [u-002 u-001]", found.Members)
	}
	if found.UpdatedAt != nil {
		t.Errorf("UpdatedAt = %v, want nil before update", found.UpdatedAt)
	}
	if found.Status != model.ProjectStatusSubmitted {
		t.Errorf("Status = %q, want %q", found.Status, model.ProjectStatusSubmitted)
	}

	name := "Renamed"
	people := 5
	updatedAt := baseTime.Add(time.Hour)
	updated, err := repo.Update(ctx, "proj-3-dddddd", model.ProjectPatch{Name: &name, PeopleCount: &people}, updatedAt)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated == nil {
		t.Fatal("Update returned nil for existing project")
	}
	if updated.Name != "Renamed" || updated.PeopleCount != 5 || updated.GroupName != "G1" {
		t.Errorf("Update result = %+v", updated)
	}
	if updated.UpdatedAt == nil || !updated.UpdatedAt.Equal(updatedAt) {
		t.Errorf("UpdatedAt = %v, want %v", updated.UpdatedAt, updatedAt)
	}
	if updated.OwnerUUID != "u-001" || updated.LeaderUUID != "u-002" {
		t.Errorf("Update must not touch ownership: %+v", updated)
	}

	gone, err := repo.Update(ctx, "proj-missing", model.ProjectPatch{Name: &name}, updatedAt)
	if err != nil {
		t.Fatalf("Update(missing): %v", err)
	}
	if gone != nil {
		t.Errorf("Update(missing) = %+v, want nil", gone)
	}

	deleted, err := repo.Delete(ctx, "proj-3-dddddd")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if deleted == nil || deleted.Name != "Renamed" {
		t.Fatalf("Delete returned %+v, want deleted project", deleted)
	}
	again, err := repo.Delete(ctx, "proj-3-dddddd")
	if err != nil {
		t.Fatalf("Delete(again): %v", err)
	}
	if again != nil {
		t.Errorf("Delete(again) = %+v, want nil", again)
	}
	after, err := repo.FindByProjectID(ctx, "proj-3-dddddd")
	if err != nil {
		t.Fatalf("FindByProjectID after delete: %v", err)
	}
	if after != nil {
		t.Errorf("project still present after delete: %+v", after)
	}
}

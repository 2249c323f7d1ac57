package repository_test

import (
	"context"
	"testing"

	"github.com/hitoshi/miniproj/internal/repository"
)

// TestMemoryUserRepo はメモリ実装のユーザーリポジトリの振る舞いを検証する。
func TestMemoryUserRepo(t *testing.T) {
	testUserRepository(t, repository.NewMemoryUserRepo())
}

// TestMemoryProjectRepo はメモリ実装のプロジェクトリポジトリの振る舞いを検証する。
func TestMemoryProjectRepo(t *testing.T) {
	testProjectRepository(t, repository.NewMemoryProjectRepo())
}

// TestMemoryProjectRepo_ReturnsCopies は返却値を変更しても保存内容に影響しないことを検証する。
func TestMemoryProjectRepo_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryProjectRepo()
	if err := repo.Create(ctx, newTestProject("proj-1-aaaaaa", "u-001", baseTime)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, _ := repo.FindByProjectID(ctx, "proj-1-aaaaaa")
	got.Name = "mutated"
	got.Members[0] = "u-999"

	again, _ := repo.FindByProjectID(ctx, "proj-1-aaaaaa")
	if again.Name != "Demo" {
		t.Errorf("Name = %q, want %q", again.Name, "Demo")
	}
	if again.Members[0] != "u-002" {
		t.Errorf("Members[0] = %q, want %q", again.Members[0], "u-002")
	}
}

// TestStaticProvider は固定のStoresを返すことを検証する。
func TestStaticProvider(t *testing.T) {
	stores := repository.NewMemoryStores()
	p := repository.NewStaticProvider(stores)

	got, err := p.Stores(context.Background())
	if err != nil {
		t.Fatalf("Stores: %v", err)
	}
	if got != stores {
		t.Error("Stores returned a different value")
	}
	if !p.Connected() {
		t.Error("Connected = false, want true")
	}
}

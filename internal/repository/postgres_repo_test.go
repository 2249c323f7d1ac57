package repository_test

import (
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"

	"github.com/hitoshi/miniproj/internal/database"
	"github.com/hitoshi/miniproj/internal/repository"
)

// setupPostgres はマイグレーション済みの空のテスト用DBを返す。
// TEST_DATABASE_URL 未設定またはDBに接続できない場合はスキップする。
func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL が未設定のためスキップ")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("データベースへの接続に失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Ping(); err != nil {
		t.Skipf("テスト用データベースに接続できません（スキップ）: %v", err)
	}
	if err := database.RunMigrations(dbURL); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}
	if _, err := db.Exec(`TRUNCATE projects, users`); err != nil {
		t.Fatalf("クリーンアップに失敗: %v", err)
	}
	return db
}

// TestPostgresUserRepo はPostgreSQL実装のユーザーリポジトリを検証する。
func TestPostgresUserRepo(t *testing.T) {
	db := setupPostgres(t)
	testUserRepository(t, repository.NewPostgresUserRepo(db))
}

// TestPostgresProjectRepo はPostgreSQL実装のプロジェクトリポジトリを検証する。
func TestPostgresProjectRepo(t *testing.T) {
	db := setupPostgres(t)
	testProjectRepository(t, repository.NewPostgresProjectRepo(db))
}

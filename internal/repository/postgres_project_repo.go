package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/miniproj/internal/model"
)

// PostgresProjectRepo はPostgreSQLを使用したプロジェクトリポジトリ。
type PostgresProjectRepo struct {
	db *sql.DB
}

// NewPostgresProjectRepo はPostgresProjectRepoを生成する。
func NewPostgresProjectRepo(db *sql.DB) *PostgresProjectRepo {
	return &PostgresProjectRepo{db: db}
}

const projectColumns = `project_id, name, group_name, people_count, owner_uuid, members,
	leader_uuid, submit_time, status, created_at, updated_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*model.Project, error) {
	p := &model.Project{}
	var status string
	var updatedAt sql.NullTime
	err := row.Scan(
		&p.ProjectID, &p.Name, &p.GroupName, &p.PeopleCount, &p.OwnerUUID,
		pq.Array(&p.Members), &p.LeaderUUID, &p.SubmitTime, &status,
		&p.CreatedAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = model.ProjectStatus(status)
	if updatedAt.Valid {
		t := updatedAt.Time
		p.UpdatedAt = &t
	}
	if p.Members == nil {
		p.Members = []string{}
	}
	return p, nil
}

// Create はプロジェクトを作成する。
func (r *PostgresProjectRepo) Create(ctx context.Context, project *model.Project) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO projects (id, project_id, name, group_name, people_count, owner_uuid,
		   members, leader_uuid, submit_time, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		uuid.New().String(), project.ProjectID, project.Name, project.GroupName,
		project.PeopleCount, project.OwnerUUID, pq.Array(project.Members),
		project.LeaderUUID, project.SubmitTime, string(project.Status),
		project.CreatedAt, project.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

// FindByProjectID はプロジェクトIDでプロジェクトを取得する。見つからない場合はnilを返す。
func (r *PostgresProjectRepo) FindByProjectID(ctx context.Context, projectID string) (*model.Project, error) {
	p, err := scanProject(r.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE project_id = $1`,
		projectID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find project: %w", err)
	}
	return p, nil
}

// ListByLeader は指定ユーザーがリーダーのプロジェクト一覧を取得する。
func (r *PostgresProjectRepo) ListByLeader(ctx context.Context, leaderUUID string) ([]*model.Project, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects
		 WHERE leader_uuid = $1
		 ORDER BY created_at ASC, project_id ASC`,
		leaderUUID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects by leader: %w", err)
	}
	defer rows.Close()

	projects := []*model.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate projects: %w", err)
	}
	return projects, nil
}

// Update はパッチで指定されたフィールドとupdated_atを1文で更新する。
// 対象が存在しない場合はnilを返す。
func (r *PostgresProjectRepo) Update(ctx context.Context, projectID string, patch model.ProjectPatch, updatedAt time.Time) (*model.Project, error) {
	p, err := scanProject(r.db.QueryRowContext(ctx,
		`UPDATE projects SET
		   name = COALESCE($2, name),
		   group_name = COALESCE($3, group_name),
		   people_count = COALESCE($4, people_count),
		   updated_at = $5
		 WHERE project_id = $1
		 RETURNING `+projectColumns,
		projectID, patch.Name, patch.GroupName, patch.PeopleCount, updatedAt,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	return p, nil
}

// Delete はプロジェクトを削除し、削除前の内容を返す。対象が存在しない場合はnilを返す。
func (r *PostgresProjectRepo) Delete(ctx context.Context, projectID string) (*model.Project, error) {
	p, err := scanProject(r.db.QueryRowContext(ctx,
		`DELETE FROM projects WHERE project_id = $1 RETURNING `+projectColumns,
		projectID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete project: %w", err)
	}
	return p, nil
}

// compile-time interface check
var _ ProjectRepository = (*PostgresProjectRepo)(nil)

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/miniproj/internal/model"
)

// pgUniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const pgUniqueViolation = "23505"

// isUniqueViolation はerrがPostgreSQLの一意制約違反かを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `uuid, seq, username, gender, external_id, avatar_url, created_at`

func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	var gender string
	err := row.Scan(&user.UUID, &user.Seq, &user.Username, &gender, &user.ExternalID, &user.AvatarURL, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	user.Gender = model.Gender(gender)
	return user, nil
}

// FindByExternalID はIdPのサブジェクトIDでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE external_id = $1`,
		externalID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by external ID: %w", err)
	}
	return user, nil
}

// FindByUUID は内部UUIDでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByUUID(ctx context.Context, userUUID string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE uuid = $1`,
		userUUID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by uuid: %w", err)
	}
	return user, nil
}

// MaxSequence は採番済みUUIDの最大連番を返す。
func (r *PostgresUserRepo) MaxSequence(ctx context.Context) (int64, error) {
	var seq int64
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM users`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to get max user sequence: %w", err)
	}
	return seq, nil
}

// Create はユーザーを作成する。行IDはここで採番する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, uuid, seq, username, gender, external_id, avatar_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New().String(), user.UUID, user.Seq, user.Username, string(user.Gender),
		user.ExternalID, user.AvatarURL, user.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UpdateAvatar はユーザーのアバターURLを更新する。
func (r *PostgresUserRepo) UpdateAvatar(ctx context.Context, userUUID, avatarURL string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET avatar_url = $2 WHERE uuid = $1`,
		userUUID, avatarURL,
	)
	if err != nil {
		return fmt.Errorf("failed to update avatar: %w", err)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)

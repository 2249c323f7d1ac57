// Package user はユーザーの検索と作成を提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/miniproj/internal/model"
	"github.com/hitoshi/miniproj/internal/repository"
	"github.com/hitoshi/miniproj/internal/security"
)

// maxCreateAttempts はユーザー作成時に一意制約違反が起きた場合の最大試行回数。
const maxCreateAttempts = 3

// FormatUUID は連番からu-001形式のUUIDを生成する。
func FormatUUID(seq int64) string {
	return fmt.Sprintf("u-%03d", seq)
}

// FallbackUUID は連番を採番できない場合に使うタイムスタンプ由来のUUIDを生成する。
func FallbackUUID(now time.Time) string {
	return fmt.Sprintf("u-%d", now.UnixMilli())
}

// Directory はユーザーの検索と作成を行う。
type Directory struct {
	repo      repository.UserRepository
	sanitizer security.Sanitizer
	timeout   time.Duration
	now       func() time.Time
}

// NewDirectory はDirectoryを生成する。
// timeoutはストア呼び出し1回あたりの上限で、0以下の場合は制限しない。
func NewDirectory(repo repository.UserRepository, sanitizer security.Sanitizer, timeout time.Duration) *Directory {
	return &Directory{
		repo:      repo,
		sanitizer: sanitizer,
		timeout:   timeout,
		now:       time.Now,
	}
}

func (d *Directory) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.timeout)
}

// FindByExternalID は外部IDでユーザーを検索する。見つからない場合はnilを返す。
func (d *Directory) FindByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	ctx, cancel := d.storeContext(ctx)
	defer cancel()
	return d.repo.FindByExternalID(ctx, externalID)
}

// Exists は指定UUIDのユーザーが存在するかを返す。
func (d *Directory) Exists(ctx context.Context, userUUID string) (bool, error) {
	ctx, cancel := d.storeContext(ctx)
	defer cancel()
	u, err := d.repo.FindByUUID(ctx, userUUID)
	if err != nil {
		return false, err
	}
	return u != nil, nil
}

// UpdateAvatar は既存ユーザーのアバターURLを更新する。
func (d *Directory) UpdateAvatar(ctx context.Context, userUUID, avatarURL string) error {
	ctx, cancel := d.storeContext(ctx)
	defer cancel()
	return d.repo.UpdateAvatar(ctx, userUUID, avatarURL)
}

// Create はプロフィールから新規ユーザーを作成する。
// 同じ外部IDのユーザーが同時に作成されていた場合はそのユーザーを返し、createdはfalseになる。
func (d *Directory) Create(ctx context.Context, externalID string, profile model.Profile) (user *model.User, created bool, err error) {
	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		userUUID, seq := d.nextUUID(ctx)
		candidate := NewUser(d.sanitizer, userUUID, seq, externalID, profile, d.now())

		err := d.insert(ctx, candidate)
		if err == nil {
			return candidate, true, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, false, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
		}

		existing, err := d.FindByExternalID(ctx, externalID)
		if err != nil {
			return nil, false, fmt.Errorf("ユーザーの再取得に失敗しました: %w", err)
		}
		if existing != nil {
			return existing, false, nil
		}

		slog.Warn("generated user uuid already taken, retrying",
			slog.String("user_uuid", userUUID),
			slog.Int("attempt", attempt),
		)
	}
	return nil, false, fmt.Errorf("ユーザーIDの採番に失敗しました: %w", repository.ErrDuplicate)
}

func (d *Directory) insert(ctx context.Context, u *model.User) error {
	ctx, cancel := d.storeContext(ctx)
	defer cancel()
	return d.repo.Create(ctx, u)
}

// nextUUID は最大連番+1のUUIDを返す。採番に失敗した場合はタイムスタンプ由来のUUIDを返す。
func (d *Directory) nextUUID(ctx context.Context) (string, int64) {
	ctx, cancel := d.storeContext(ctx)
	defer cancel()

	maxSeq, err := d.repo.MaxSequence(ctx)
	if err != nil {
		slog.Warn("failed to scan user sequence, using timestamp uuid",
			slog.String("error", err.Error()),
		)
		return FallbackUUID(d.now()), 0
	}
	next := maxSeq + 1
	return FormatUUID(next), next
}

// NewUser はプロフィールからユーザーを組み立てる。永続化は行わない。
func NewUser(sanitizer security.Sanitizer, userUUID string, seq int64, externalID string, profile model.Profile, now time.Time) *model.User {
	username := profile.NickName
	if sanitizer != nil {
		username = sanitizer.Clean(username)
	}
	if username == "" {
		username = model.DefaultUsername
	}
	return &model.User{
		UUID:       userUUID,
		Seq:        seq,
		Username:   username,
		Gender:     model.GenderFromCode(profile.Gender),
		ExternalID: externalID,
		AvatarURL:  profile.AvatarURL,
		CreatedAt:  now,
	}
}

// NewStubUser はストアが利用できない場合に返す仮ユーザーを組み立てる。永続化はされない。
func NewStubUser(sanitizer security.Sanitizer, externalID string, profile model.Profile, now time.Time) *model.User {
	return NewUser(sanitizer, FallbackUUID(now), 0, externalID, profile, now)
}

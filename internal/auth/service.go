// Package auth はログインコードの交換、ユーザーの検索・作成、アクセストークン発行を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/miniproj/internal/metrics"
	"github.com/hitoshi/miniproj/internal/model"
	"github.com/hitoshi/miniproj/internal/repository"
	"github.com/hitoshi/miniproj/internal/security"
	"github.com/hitoshi/miniproj/internal/user"
)

// CodeExchanger はログインコードをIdPの識別情報に交換するインターフェース。
type CodeExchanger interface {
	// Exchange はログインコードを交換する。IdPがエラーを返した場合は*ProviderErrorを返す。
	Exchange(ctx context.Context, code string) (*ExchangeResult, error)
}

// TokenSigner はアクセストークンを発行するインターフェース。
type TokenSigner interface {
	Issue(userUUID, externalID string) (string, time.Time, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	// RefreshAvatar がtrueの場合、既存ユーザーのログイン時にアバターURLを上書きする。
	RefreshAvatar bool
	// StoreTimeout はストア呼び出し1回あたりの上限。
	StoreTimeout time.Duration
}

// LoginResult はログインの結果。
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *model.User
	IsNewUser bool
	LoginTime time.Time
	// Degraded はストアに接続できず、永続化されていない仮ユーザーを返したことを示す。
	Degraded bool
}

// Service はログインのビジネスロジックを提供する。
type Service struct {
	exchanger CodeExchanger
	stores    repository.StoreProvider
	tokens    TokenSigner
	sanitizer security.Sanitizer
	metrics   metrics.MetricsCollector
	config    ServiceConfig
	now       func() time.Time
}

// NewService はServiceを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewService(
	exchanger CodeExchanger,
	stores repository.StoreProvider,
	tokens TokenSigner,
	sanitizer security.Sanitizer,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		exchanger: exchanger,
		stores:    stores,
		tokens:    tokens,
		sanitizer: sanitizer,
		metrics:   collector,
		config:    config,
		now:       time.Now,
	}
}

// connect はSTORE_TIMEOUTの範囲でストアを取得する。
func (s *Service) connect(ctx context.Context) (*repository.Stores, error) {
	if s.config.StoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.StoreTimeout)
		defer cancel()
	}
	return s.stores.Stores(ctx)
}

// Login はログインコードを交換し、ユーザーを検索または作成してトークンを発行する。
// ストアに接続できない場合は仮ユーザーでトークンを発行し、Degradedをtrueにする。
func (s *Service) Login(ctx context.Context, code string, profile model.Profile) (*LoginResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, model.NewMissingCodeError()
	}

	// 1. ストア接続（失敗してもログイン自体は継続する）
	stores, storeErr := s.connect(ctx)
	if storeErr != nil {
		s.metrics.RecordStoreUnavailable("login")
		slog.Warn("store unavailable, login continues in degraded mode",
			slog.String("error", storeErr.Error()),
		)
	}

	// 2. ログインコードの交換
	started := s.now()
	identity, err := s.exchanger.Exchange(ctx, code)
	s.metrics.RecordExchangeLatency(s.now().Sub(started))
	if err != nil {
		var providerErr *ProviderError
		if errors.As(err, &providerErr) {
			s.metrics.RecordLogin(metrics.LoginResultExchangeError)
			slog.Warn("login code rejected by identity provider",
				slog.Int("errcode", providerErr.Code),
				slog.String("errmsg", providerErr.Message),
			)
			return nil, model.NewExchangeError(providerErr.Message)
		}
		s.metrics.RecordLogin(metrics.LoginResultError)
		return nil, fmt.Errorf("ログインコードの交換に失敗しました: %w", err)
	}

	// 3. ユーザーの検索・作成
	loginTime := s.now()
	var (
		u        *model.User
		isNew    bool
		degraded bool
	)
	if stores == nil {
		u = user.NewStubUser(s.sanitizer, identity.ExternalID, profile, loginTime)
		isNew = true
		degraded = true
	} else {
		u, isNew, err = s.findOrCreate(ctx, stores, identity.ExternalID, profile)
		if err != nil {
			s.metrics.RecordLogin(metrics.LoginResultError)
			return nil, err
		}
	}

	// 4. トークン発行
	token, expiresAt, err := s.tokens.Issue(u.UUID, u.ExternalID)
	if err != nil {
		s.metrics.RecordLogin(metrics.LoginResultError)
		return nil, fmt.Errorf("トークンの発行に失敗しました: %w", err)
	}

	switch {
	case degraded:
		s.metrics.RecordLogin(metrics.LoginResultDegraded)
	case isNew:
		s.metrics.RecordLogin(metrics.LoginResultCreated)
	default:
		s.metrics.RecordLogin(metrics.LoginResultExisting)
	}

	slog.Info("user logged in",
		slog.String("user_uuid", u.UUID),
		slog.String("external_id", u.ExternalID),
		slog.Bool("is_new_user", isNew),
		slog.Bool("degraded", degraded),
	)

	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      u,
		IsNewUser: isNew,
		LoginTime: loginTime,
		Degraded:  degraded,
	}, nil
}

// findOrCreate は外部IDでユーザーを検索し、存在しなければ作成する。
func (s *Service) findOrCreate(ctx context.Context, stores *repository.Stores, externalID string, profile model.Profile) (*model.User, bool, error) {
	dir := user.NewDirectory(stores.Users, s.sanitizer, s.config.StoreTimeout)

	existing, err := dir.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, false, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	if existing != nil {
		s.applyProfilePolicy(ctx, dir, existing, profile)
		return existing, false, nil
	}

	created, isNew, err := dir.Create(ctx, externalID, profile)
	if err != nil {
		return nil, false, err
	}
	if isNew {
		s.metrics.RecordUserCreated()
		slog.Info("new user created",
			slog.String("user_uuid", created.UUID),
			slog.String("external_id", externalID),
		)
	}
	return created, isNew, nil
}

// applyProfilePolicy は既存ユーザーのログイン時にプロフィールを反映する。
// 既定では何も変更しない。
func (s *Service) applyProfilePolicy(ctx context.Context, dir *user.Directory, existing *model.User, profile model.Profile) {
	if !s.config.RefreshAvatar || profile.AvatarURL == "" || profile.AvatarURL == existing.AvatarURL {
		return
	}
	if err := dir.UpdateAvatar(ctx, existing.UUID, profile.AvatarURL); err != nil {
		slog.Warn("failed to refresh avatar",
			slog.String("user_uuid", existing.UUID),
			slog.String("error", err.Error()),
		)
		return
	}
	existing.AvatarURL = profile.AvatarURL
}

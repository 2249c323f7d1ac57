// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/miniproj/internal/model"
)

// ErrDuplicate は一意制約（uuid、外部ID、プロジェクトID）に違反した場合に返される。
var ErrDuplicate = errors.New("duplicate key")

// ErrStoreUnavailable はストアへの接続が確立できない場合に返される。
var ErrStoreUnavailable = errors.New("store unavailable")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByExternalID はIdPのサブジェクトIDでユーザーを検索する。見つからない場合はnilを返す。
	FindByExternalID(ctx context.Context, externalID string) (*model.User, error)

	// FindByUUID は内部UUIDでユーザーを検索する。見つからない場合はnilを返す。
	FindByUUID(ctx context.Context, userUUID string) (*model.User, error)

	// MaxSequence は採番済みUUIDの最大連番を返す。ユーザーが存在しない場合は0を返す。
	MaxSequence(ctx context.Context) (int64, error)

	// Create はユーザーを作成する。uuidまたは外部IDが重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateAvatar はユーザーのアバターURLを更新する。
	UpdateAvatar(ctx context.Context, userUUID, avatarURL string) error
}

// ProjectRepository はプロジェクトデータの永続化インターフェース。
type ProjectRepository interface {
	// Create はプロジェクトを作成する。プロジェクトIDが重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, project *model.Project) error

	// FindByProjectID はプロジェクトIDで検索する。見つからない場合はnilを返す。
	FindByProjectID(ctx context.Context, projectID string) (*model.Project, error)

	// ListByLeader は指定ユーザーがリーダーのプロジェクトを作成日時、プロジェクトIDの昇順で返す。
	ListByLeader(ctx context.Context, leaderUUID string) ([]*model.Project, error)

	// Update はパッチを適用した更新後のプロジェクトを返す。
	// 対象が存在しない場合はnilを返す。
	Update(ctx context.Context, projectID string, patch model.ProjectPatch, updatedAt time.Time) (*model.Project, error)

	// Delete はプロジェクトを削除し、削除前の内容を返す。
	// 対象が存在しない場合はnilを返す。
	Delete(ctx context.Context, projectID string) (*model.Project, error)
}

// Stores は1つのストアに対するリポジトリの組。
type Stores struct {
	Users    UserRepository
	Projects ProjectRepository
}

// StoreProvider はリポジトリを遅延接続で提供する。
// 接続できない場合、StoresはErrStoreUnavailableをラップしたエラーを返す。
type StoreProvider interface {
	Stores(ctx context.Context) (*Stores, error)
	Connected() bool
}

// StaticProvider は接続済みのStoresを常に返すStoreProvider。
type StaticProvider struct {
	stores *Stores
}

// NewStaticProvider はStaticProviderを生成する。
func NewStaticProvider(stores *Stores) *StaticProvider {
	return &StaticProvider{stores: stores}
}

// Stores は保持しているStoresを返す。
func (p *StaticProvider) Stores(_ context.Context) (*Stores, error) {
	return p.stores, nil
}

// Connected は常にtrueを返す。
func (p *StaticProvider) Connected() bool {
	return true
}

var _ StoreProvider = (*StaticProvider)(nil)

package repository

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/hitoshi/miniproj/internal/model"
)

// MemoryUserRepo はプロセス内メモリに保持するユーザーリポジトリ。
// 開発とテスト用で、再起動すると内容は失われる。
type MemoryUserRepo struct {
	mu    sync.RWMutex
	users []*model.User
}

// NewMemoryUserRepo はMemoryUserRepoを生成する。
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{}
}

func copyUser(u *model.User) *model.User {
	c := *u
	return &c
}

// FindByExternalID はIdPのサブジェクトIDでユーザーを取得する。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindByExternalID(_ context.Context, externalID string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.ExternalID == externalID {
			return copyUser(u), nil
		}
	}
	return nil, nil
}

// FindByUUID は内部UUIDでユーザーを取得する。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindByUUID(_ context.Context, userUUID string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.UUID == userUUID {
			return copyUser(u), nil
		}
	}
	return nil, nil
}

// MaxSequence は採番済みUUIDの最大連番を返す。
func (r *MemoryUserRepo) MaxSequence(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var maxSeq int64
	for _, u := range r.users {
		maxSeq = max(maxSeq, u.Seq)
	}
	return maxSeq, nil
}

// Create はユーザーを作成する。
func (r *MemoryUserRepo) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.UUID == user.UUID || u.ExternalID == user.ExternalID {
			return ErrDuplicate
		}
	}
	r.users = append(r.users, copyUser(user))
	return nil
}

// UpdateAvatar はユーザーのアバターURLを更新する。
func (r *MemoryUserRepo) UpdateAvatar(_ context.Context, userUUID, avatarURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.UUID == userUUID {
			u.AvatarURL = avatarURL
		}
	}
	return nil
}

// MemoryProjectRepo はプロセス内メモリに保持するプロジェクトリポジトリ。
type MemoryProjectRepo struct {
	mu       sync.RWMutex
	projects map[string]*model.Project
}

// NewMemoryProjectRepo はMemoryProjectRepoを生成する。
func NewMemoryProjectRepo() *MemoryProjectRepo {
	return &MemoryProjectRepo{projects: make(map[string]*model.Project)}
}

func copyProject(p *model.Project) *model.Project {
	c := *p
	c.Members = slices.Clone(p.Members)
	if c.Members == nil {
		c.Members = []string{}
	}
	if p.UpdatedAt != nil {
		t := *p.UpdatedAt
		c.UpdatedAt = &t
	}
	return &c
}

// Create はプロジェクトを作成する。
func (r *MemoryProjectRepo) Create(_ context.Context, project *model.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[project.ProjectID]; ok {
		return ErrDuplicate
	}
	r.projects[project.ProjectID] = copyProject(project)
	return nil
}

// FindByProjectID はプロジェクトIDでプロジェクトを取得する。見つからない場合はnilを返す。
func (r *MemoryProjectRepo) FindByProjectID(_ context.Context, projectID string) (*model.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[projectID]
	if !ok {
		return nil, nil
	}
	return copyProject(p), nil
}

// ListByLeader は指定ユーザーがリーダーのプロジェクトを作成日時、プロジェクトIDの昇順で返す。
func (r *MemoryProjectRepo) ListByLeader(_ context.Context, leaderUUID string) ([]*model.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	projects := []*model.Project{}
	for _, p := range r.projects {
		if p.LeaderUUID == leaderUUID {
			projects = append(projects, copyProject(p))
		}
	}
	slices.SortFunc(projects, func(a, b *model.Project) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ProjectID, b.ProjectID)
	})
	return projects, nil
}

// Update はパッチを適用した更新後のプロジェクトを返す。対象が存在しない場合はnilを返す。
func (r *MemoryProjectRepo) Update(_ context.Context, projectID string, patch model.ProjectPatch, updatedAt time.Time) (*model.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[projectID]
	if !ok {
		return nil, nil
	}
	patch.ApplyTo(p, updatedAt)
	return copyProject(p), nil
}

// Delete はプロジェクトを削除し、削除前の内容を返す。対象が存在しない場合はnilを返す。
func (r *MemoryProjectRepo) Delete(_ context.Context, projectID string) (*model.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[projectID]
	if !ok {
		return nil, nil
	}
	delete(r.projects, projectID)
	return p, nil
}

// NewMemoryStores はメモリ上のリポジトリの組を生成する。
func NewMemoryStores() *Stores {
	return &Stores{
		Users:    NewMemoryUserRepo(),
		Projects: NewMemoryProjectRepo(),
	}
}

// compile-time interface check
var (
	_ UserRepository    = (*MemoryUserRepo)(nil)
	_ ProjectRepository = (*MemoryProjectRepo)(nil)
)

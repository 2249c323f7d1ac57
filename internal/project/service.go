// Package project はプロジェクトの作成、検索、更新、削除のビジネスロジックを提供する。
package project

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

// メトリクスに記録する操作名。
const (
	OperationCreate = "create"
	OperationQuery  = "query"
	OperationUpdate = "update"
	OperationDelete = "delete"
)

// maxCreateAttempts はプロジェクトIDが衝突した場合の作成試行回数の上限。
const maxCreateAttempts = 3

// Service はプロジェクトのビジネスロジックを提供する。
type Service struct {
	stores    repository.StoreProvider
	sanitizer security.Sanitizer
	metrics   metrics.MetricsCollector
	timeout   time.Duration
	now       func() time.Time
	newID     func(time.Time) string
}

// NewService はServiceを生成する。collectorがnilの場合はメトリクスを記録しない。
// timeoutはストア呼び出し1回あたりの上限で、0以下の場合は上限を設けない。
func NewService(stores repository.StoreProvider, sanitizer security.Sanitizer, collector metrics.MetricsCollector, timeout time.Duration) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		stores:    stores,
		sanitizer: sanitizer,
		metrics:   collector,
		timeout:   timeout,
		now:       time.Now,
		newID:     NewProjectID,
	}
}

func (s *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// connect はストアを取得する。接続できない場合はSTORE_UNAVAILABLEを返す。
// 初回接続もストア呼び出しとしてタイムアウトの対象になる。
func (s *Service) connect(ctx context.Context, operation string) (*repository.Stores, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	stores, err := s.stores.Stores(ctx)
	if err != nil {
		s.metrics.RecordStoreUnavailable("project")
		slog.Warn("store unavailable for project operation",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
		return nil, model.NewStoreUnavailableError()
	}
	return stores, nil
}

// record は操作結果をメトリクスに記録する。
func (s *Service) record(operation string, err error) {
	s.metrics.RecordProjectOperation(operation, resultLabel(err))
}

// resultLabel はエラーをメトリクスの結果ラベルに変換する。
func resultLabel(err error) string {
	if err == nil {
		return metrics.ResultSuccess
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		return metrics.ResultError
	}
	switch apiErr.Code {
	case model.ErrCodeValidation, model.ErrCodeUserNotFound:
		return metrics.ResultValidationError
	case model.ErrCodeProjectNotFound:
		return metrics.ResultNotFound
	case model.ErrCodeForbidden:
		return metrics.ResultForbidden
	case model.ErrCodeStoreUnavailable:
		return metrics.ResultStoreUnavailable
	default:
		return metrics.ResultError
	}
}

// Create は入力を検証してプロジェクトを作成し、保存した内容を返す。
func (s *Service) Create(ctx context.Context, in CreateInput) (p *model.Project, err error) {
	defer func() { s.record(OperationCreate, err) }()

	valid, err := validateCreate(in, s.sanitizer)
	if err != nil {
		return nil, err
	}

	stores, err := s.connect(ctx, OperationCreate)
	if err != nil {
		return nil, err
	}

	exists, err := user.NewDirectory(stores.Users, s.sanitizer, s.timeout).Exists(ctx, valid.ownerUUID)
	if err != nil {
		return nil, fmt.Errorf("オーナーの確認に失敗しました: %w", err)
	}
	if !exists {
		return nil, model.NewUserNotFoundError(valid.ownerUUID)
	}

	now := s.now()
	project := &model.Project{
		Name:        valid.name,
		GroupName:   valid.groupName,
		PeopleCount: valid.peopleCount,
		OwnerUUID:   valid.ownerUUID,
		Members:     valid.members,
		LeaderUUID:  valid.leaderUUID,
		SubmitTime:  valid.submitTime,
		Status:      model.ProjectStatusSubmitted,
		CreatedAt:   now,
	}

	for attempt := 1; ; attempt++ {
		project.ProjectID = s.newID(now)
		err = s.insert(ctx, stores.Projects, project)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrDuplicate) || attempt >= maxCreateAttempts {
			return nil, fmt.Errorf("プロジェクトの作成に失敗しました: %w", err)
		}
		slog.Warn("project id collision, regenerating",
			slog.String("project_id", project.ProjectID),
			slog.Int("attempt", attempt),
		)
	}

	slog.Info("project created",
		slog.String("project_id", project.ProjectID),
		slog.String("owner_uuid", project.OwnerUUID),
		slog.String("leader_uuid", project.LeaderUUID),
		slog.Int("member_count", len(project.Members)),
	)
	return project, nil
}

func (s *Service) insert(ctx context.Context, repo repository.ProjectRepository, p *model.Project) error {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	return repo.Create(ctx, p)
}

// QueryByLeader は指定ユーザーがリーダーのプロジェクトを作成日時の昇順で返す。
// 該当がない場合は空のスライスを返す。
func (s *Service) QueryByLeader(ctx context.Context, leaderUUID string) (projects []*model.Project, err error) {
	defer func() { s.record(OperationQuery, err) }()

	v := &validator{}
	leaderUUID = v.requiredID("leaderUuid", leaderUUID)
	if err := v.err(); err != nil {
		return nil, err
	}

	stores, err := s.connect(ctx, OperationQuery)
	if err != nil {
		return nil, err
	}

	sctx, cancel := s.storeContext(ctx)
	defer cancel()
	projects, err = stores.Projects.ListByLeader(sctx, leaderUUID)
	if err != nil {
		return nil, fmt.Errorf("プロジェクトの検索に失敗しました: %w", err)
	}
	if projects == nil {
		projects = []*model.Project{}
	}
	return projects, nil
}

// Update はリーダーまたはオーナーによるプロジェクトの更新を行い、更新後の内容を返す。
// 更新できるのはname、groupName、peopleCountのみで、それ以外のキーは無視する。
func (s *Service) Update(ctx context.Context, projectID, requestingUUID string, fields map[string]any) (p *model.Project, err error) {
	defer func() { s.record(OperationUpdate, err) }()

	v := &validator{sanitizer: s.sanitizer}
	projectID = v.requiredID("projectId", projectID)
	requestingUUID = v.requiredID("requestingUuid", requestingUUID)
	patch := validatePatch(v, fields)
	if err := v.err(); err != nil {
		return nil, err
	}

	stores, err := s.connect(ctx, OperationUpdate)
	if err != nil {
		return nil, err
	}

	current, err := s.find(ctx, stores.Projects, projectID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, model.NewProjectNotFoundError(projectID)
	}

	if !current.CanBeUpdatedBy(requestingUUID) {
		slog.Warn("project update forbidden",
			slog.String("project_id", projectID),
			slog.String("requesting_uuid", requestingUUID),
		)
		return nil, model.NewForbiddenError()
	}

	sctx, cancel := s.storeContext(ctx)
	defer cancel()
	updated, err := stores.Projects.Update(sctx, projectID, patch, s.now())
	if err != nil {
		return nil, fmt.Errorf("プロジェクトの更新に失敗しました: %w", err)
	}
	// 検索後に削除された場合
	if updated == nil {
		return nil, model.NewProjectNotFoundError(projectID)
	}

	slog.Info("project updated",
		slog.String("project_id", projectID),
		slog.String("requesting_uuid", requestingUUID),
		slog.String("fields", strings.Join(patchFields(patch), ",")),
	)
	return updated, nil
}

func (s *Service) find(ctx context.Context, repo repository.ProjectRepository, projectID string) (*model.Project, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	p, err := repo.FindByProjectID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("プロジェクトの取得に失敗しました: %w", err)
	}
	return p, nil
}

func patchFields(patch model.ProjectPatch) []string {
	var fields []string
	if patch.Name != nil {
		fields = append(fields, FieldName)
	}
	if patch.GroupName != nil {
		fields = append(fields, FieldGroupName)
	}
	if patch.PeopleCount != nil {
		fields = append(fields, FieldPeopleCount)
	}
	return fields
}

// Delete はプロジェクトを削除し、削除した内容の要約を返す。
func (s *Service) Delete(ctx context.Context, projectID string) (summary *model.DeletionSummary, err error) {
	defer func() { s.record(OperationDelete, err) }()

	v := &validator{}
	projectID = v.requiredID("projectId", projectID)
	if err := v.err(); err != nil {
		return nil, err
	}

	stores, err := s.connect(ctx, OperationDelete)
	if err != nil {
		return nil, err
	}

	sctx, cancel := s.storeContext(ctx)
	defer cancel()
	deleted, err := stores.Projects.Delete(sctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("プロジェクトの削除に失敗しました: %w", err)
	}
	if deleted == nil {
		return nil, model.NewProjectNotFoundError(projectID)
	}

	slog.Info("project deleted",
		slog.String("project_id", projectID),
		slog.String("leader_uuid", deleted.LeaderUUID),
	)
	return &model.DeletionSummary{
		ProjectID: deleted.ProjectID,
		Deleted:   true,
		Snapshot:  deleted.Snapshot(),
	}, nil
}

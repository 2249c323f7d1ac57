package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/miniproj/internal/middleware"
	"github.com/hitoshi/miniproj/internal/model"
	"github.com/hitoshi/miniproj/internal/project"
)

// ProjectServiceInterface はプロジェクトハンドラーが必要とするサービスインターフェース。
type ProjectServiceInterface interface {
	Create(ctx context.Context, in project.CreateInput) (*model.Project, error)
	QueryByLeader(ctx context.Context, leaderUUID string) ([]*model.Project, error)
	Update(ctx context.Context, projectID, requestingUUID string, fields map[string]any) (*model.Project, error)
	Delete(ctx context.Context, projectID string) (*model.DeletionSummary, error)
}

// ProjectHandler はプロジェクト管理のHTTPハンドラー。
type ProjectHandler struct {
	service ProjectServiceInterface
}

// NewProjectHandler はProjectHandlerを生成する。
func NewProjectHandler(service ProjectServiceInterface) *ProjectHandler {
	return &ProjectHandler{service: service}
}

// createProjectRequest はプロジェクト作成リクエストのボディ。
// peopleCountの型判定はサービス層の検証に任せる。
type createProjectRequest struct {
	OwnerUUID   string   `json:"ownerUuid" validate:"required"`
	Name        string   `json:"name" validate:"required"`
	GroupName   string   `json:"groupName" validate:"required"`
	PeopleCount any      `json:"peopleCount" validate:"required"`
	SubmitTime  string   `json:"submitTime" validate:"required"`
	Members     []string `json:"members"`
	LeaderUUID  *string  `json:"leaderUuid"`
}

// queryProjectsRequest はリーダー別検索リクエストのボディ。
type queryProjectsRequest struct {
	LeaderUUID string `json:"leaderUuid" validate:"required"`
}

// updateProjectRequest はプロジェクト更新リクエストのボディ。
type updateProjectRequest struct {
	ProjectID      string         `json:"projectId" validate:"required"`
	RequestingUUID string         `json:"requestingUuid" validate:"required"`
	Fields         map[string]any `json:"fields" validate:"required"`
}

// deleteProjectRequest はプロジェクト削除リクエストのボディ。
type deleteProjectRequest struct {
	ProjectID string `json:"projectId" validate:"required"`
}

// projectResponse はプロジェクト情報のAPIレスポンス。
type projectResponse struct {
	ProjectID   string     `json:"projectId"`
	Name        string     `json:"name"`
	GroupName   string     `json:"groupName"`
	PeopleCount int        `json:"peopleCount"`
	OwnerUUID   string     `json:"ownerUuid"`
	Members     []string   `json:"members"`
	LeaderUUID  string     `json:"leaderUuid"`
	SubmitTime  time.Time  `json:"submitTime"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
	Status      string     `json:"status"`
}

// queryProjectsResponse はリーダー別検索のAPIレスポンス。
type queryProjectsResponse struct {
	LeaderUUID string            `json:"leaderUuid"`
	Count      int               `json:"count"`
	Projects   []projectResponse `json:"projects"`
}

// snapshotResponse は削除したプロジェクトの要約。
type snapshotResponse struct {
	Name        string `json:"name"`
	GroupName   string `json:"groupName"`
	PeopleCount int    `json:"peopleCount"`
	LeaderUUID  string `json:"leaderUuid"`
}

// deleteProjectResponse はプロジェクト削除のAPIレスポンス。
type deleteProjectResponse struct {
	ProjectID string           `json:"projectId"`
	Deleted   bool             `json:"deleted"`
	Snapshot  snapshotResponse `json:"snapshot"`
}

// CreateProject はプロジェクトを作成する。
// POST /projects
func (h *ProjectHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := decodeRequest(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	p, err := h.service.Create(r.Context(), project.CreateInput{
		OwnerUUID:   req.OwnerUUID,
		Name:        req.Name,
		GroupName:   req.GroupName,
		PeopleCount: req.PeopleCount,
		SubmitTime:  req.SubmitTime,
		Members:     req.Members,
		LeaderUUID:  req.LeaderUUID,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toProjectResponse(p))
}

// QueryProjects はリーダー別にプロジェクトを検索する。
// POST /projects/query
func (h *ProjectHandler) QueryProjects(w http.ResponseWriter, r *http.Request) {
	var req queryProjectsRequest
	if err := decodeRequest(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	projects, err := h.service.QueryByLeader(r.Context(), req.LeaderUUID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := queryProjectsResponse{
		LeaderUUID: req.LeaderUUID,
		Count:      len(projects),
		Projects:   make([]projectResponse, len(projects)),
	}
	for i, p := range projects {
		resp.Projects[i] = toProjectResponse(p)
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdateProject はプロジェクトを更新する。
// POST /projects/update
//
// トークンで認証されている場合は、そのユーザーを更新者とする。
// ボディのrequestingUuidがトークンと異なる場合は403を返す。
func (h *ProjectHandler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	var req updateProjectRequest
	if err := decodeBody(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	if tokenUUID, err := middleware.UserUUIDFromContext(r.Context()); err == nil {
		if req.RequestingUUID != "" && req.RequestingUUID != tokenUUID {
			handleServiceError(w, r, model.NewForbiddenError())
			return
		}
		req.RequestingUUID = tokenUUID
	}
	if err := validateRequest(&req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	p, err := h.service.Update(r.Context(), req.ProjectID, req.RequestingUUID, req.Fields)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toProjectResponse(p))
}

// DeleteProject はプロジェクトを削除する。
// POST /projects/delete
func (h *ProjectHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	var req deleteProjectRequest
	if err := decodeRequest(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	summary, err := h.service.Delete(r.Context(), req.ProjectID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, deleteProjectResponse{
		ProjectID: summary.ProjectID,
		Deleted:   summary.Deleted,
		Snapshot: snapshotResponse{
			Name:        summary.Snapshot.Name,
			GroupName:   summary.Snapshot.GroupName,
			PeopleCount: summary.Snapshot.PeopleCount,
			LeaderUUID:  summary.Snapshot.LeaderUUID,
		},
	})
}

// toProjectResponse はmodel.ProjectからAPIレスポンスに変換する。
func toProjectResponse(p *model.Project) projectResponse {
	members := p.Members
	if members == nil {
		members = []string{}
	}
	return projectResponse{
		ProjectID:   p.ProjectID,
		Name:        p.Name,
		GroupName:   p.GroupName,
		PeopleCount: p.PeopleCount,
		OwnerUUID:   p.OwnerUUID,
		Members:     members,
		LeaderUUID:  p.LeaderUUID,
		SubmitTime:  p.SubmitTime,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
		Status:      string(p.Status),
	}
}

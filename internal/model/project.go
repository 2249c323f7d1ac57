package model

import (
	"slices"
	"time"
)

// ProjectStatus はプロジェクトの状態を表す。
type ProjectStatus string

// ProjectStatusSubmitted は提出済みを示す。現状これ以外の状態はない。
const ProjectStatusSubmitted ProjectStatus = "submitted"

// Project はユーザーが提出したプロジェクトを表す。
type Project struct {
	ProjectID   string
	Name        string
	GroupName   string
	PeopleCount int
	OwnerUUID   string
	Members     []string
	LeaderUUID  string
	SubmitTime  time.Time
	CreatedAt   time.Time
	UpdatedAt   *time.Time // 初回更新まではnil
	Status      ProjectStatus
}

// CanBeUpdatedBy は指定ユーザーがプロジェクトを更新できるかを返す。
// 更新できるのはリーダーとオーナーのみ。
func (p *Project) CanBeUpdatedBy(userUUID string) bool {
	if userUUID == "" {
		return false
	}
	return userUUID == p.LeaderUUID || userUUID == p.OwnerUUID
}

// HasMember は指定ユーザーがメンバーに含まれるかを返す。
func (p *Project) HasMember(userUUID string) bool {
	return slices.Contains(p.Members, userUUID)
}

// Snapshot は削除確認用のプロジェクト要約を返す。
func (p *Project) Snapshot() ProjectSnapshot {
	return ProjectSnapshot{
		Name:        p.Name,
		GroupName:   p.GroupName,
		PeopleCount: p.PeopleCount,
		LeaderUUID:  p.LeaderUUID,
	}
}

// ProjectPatch は検証済みの更新フィールド。nilのフィールドは変更しない。
type ProjectPatch struct {
	Name        *string
	GroupName   *string
	PeopleCount *int
}

// IsEmpty は更新対象のフィールドが1つもない場合にtrueを返す。
func (p ProjectPatch) IsEmpty() bool {
	return p.Name == nil && p.GroupName == nil && p.PeopleCount == nil
}

// ApplyTo はパッチの内容をプロジェクトに反映し、updatedAtを設定する。
func (p ProjectPatch) ApplyTo(project *Project, updatedAt time.Time) {
	if p.Name != nil {
		project.Name = *p.Name
	}
	if p.GroupName != nil {
		project.GroupName = *p.GroupName
	}
	if p.PeopleCount != nil {
		project.PeopleCount = *p.PeopleCount
	}
	project.UpdatedAt = &updatedAt
}

// ProjectSnapshot は削除されたプロジェクトの要約。
type ProjectSnapshot struct {
	Name        string
	GroupName   string
	PeopleCount int
	LeaderUUID  string
}

// DeletionSummary はプロジェクト削除の結果。
type DeletionSummary struct {
	ProjectID string
	Deleted   bool
	Snapshot  ProjectSnapshot
}

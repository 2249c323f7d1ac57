package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hitoshi/miniproj/internal/model"
)

// projectDocument はprojectsコレクションのドキュメント。
type projectDocument struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	ProjectID  string             `bson:"project_id"`
	Name       string             `bson:"name"`
	People     int                `bson:"people"`
	Group      string             `bson:"group"`
	UserUUID   string             `bson:"user_uuid"`
	Members    []string           `bson:"members"`
	Leader     string             `bson:"leader"`
	SubmitTime time.Time          `bson:"submit_time"`
	Status     string             `bson:"status"`
	CreatedAt  time.Time          `bson:"created_at"`
	UpdatedAt  *time.Time         `bson:"updated_at,omitempty"`
}

func newProjectDocument(p *model.Project) projectDocument {
	return projectDocument{
		ProjectID:  p.ProjectID,
		Name:       p.Name,
		People:     p.PeopleCount,
		Group:      p.GroupName,
		UserUUID:   p.OwnerUUID,
		Members:    p.Members,
		Leader:     p.LeaderUUID,
		SubmitTime: p.SubmitTime,
		Status:     string(p.Status),
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

func (d projectDocument) toModel() *model.Project {
	members := d.Members
	if members == nil {
		members = []string{}
	}
	return &model.Project{
		ProjectID:   d.ProjectID,
		Name:        d.Name,
		GroupName:   d.Group,
		PeopleCount: d.People,
		OwnerUUID:   d.UserUUID,
		Members:     members,
		LeaderUUID:  d.Leader,
		SubmitTime:  d.SubmitTime,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		Status:      model.ProjectStatus(d.Status),
	}
}

// MongoProjectRepo はMongoDBを使用したプロジェクトリポジトリ。
type MongoProjectRepo struct {
	coll *mongo.Collection
}

// NewMongoProjectRepo はMongoProjectRepoを生成する。
func NewMongoProjectRepo(db *mongo.Database) *MongoProjectRepo {
	return &MongoProjectRepo{coll: db.Collection(ProjectsCollection)}
}

func byProjectID(projectID string) bson.D {
	return bson.D{{Key: "project_id", Value: projectID}}
}

// Create はプロジェクトを作成する。
func (r *MongoProjectRepo) Create(ctx context.Context, project *model.Project) error {
	_, err := r.coll.InsertOne(ctx, newProjectDocument(project))
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

// FindByProjectID はプロジェクトIDでプロジェクトを取得する。見つからない場合はnilを返す。
func (r *MongoProjectRepo) FindByProjectID(ctx context.Context, projectID string) (*model.Project, error) {
	var doc projectDocument
	err := r.coll.FindOne(ctx, byProjectID(projectID)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find project: %w", err)
	}
	return doc.toModel(), nil
}

// ListByLeader は指定ユーザーがリーダーのプロジェクト一覧を取得する。
func (r *MongoProjectRepo) ListByLeader(ctx context.Context, leaderUUID string) ([]*model.Project, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "created_at", Value: 1},
		{Key: "project_id", Value: 1},
	})
	cur, err := r.coll.Find(ctx, bson.D{{Key: "leader", Value: leaderUUID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects by leader: %w", err)
	}
	defer cur.Close(ctx)

	projects := []*model.Project{}
	for cur.Next(ctx) {
		var doc projectDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode project: %w", err)
		}
		projects = append(projects, doc.toModel())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate projects: %w", err)
	}
	return projects, nil
}

// Update はパッチで指定されたフィールドとupdated_atを更新し、更新後の内容を返す。
// 対象が存在しない場合はnilを返す。
func (r *MongoProjectRepo) Update(ctx context.Context, projectID string, patch model.ProjectPatch, updatedAt time.Time) (*model.Project, error) {
	set := bson.D{{Key: "updated_at", Value: updatedAt}}
	if patch.Name != nil {
		set = append(set, bson.E{Key: "name", Value: *patch.Name})
	}
	if patch.GroupName != nil {
		set = append(set, bson.E{Key: "group", Value: *patch.GroupName})
	}
	if patch.PeopleCount != nil {
		set = append(set, bson.E{Key: "people", Value: *patch.PeopleCount})
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc projectDocument
	err := r.coll.FindOneAndUpdate(ctx, byProjectID(projectID), bson.D{{Key: "$set", Value: set}}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	return doc.toModel(), nil
}

// Delete はプロジェクトを削除し、削除前の内容を返す。対象が存在しない場合はnilを返す。
func (r *MongoProjectRepo) Delete(ctx context.Context, projectID string) (*model.Project, error) {
	var doc projectDocument
	err := r.coll.FindOneAndDelete(ctx, byProjectID(projectID)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete project: %w", err)
	}
	return doc.toModel(), nil
}

// EnsureMongoIndexes はusersとprojectsコレクションに必要なインデックスを作成する。
// 既に存在する場合は何もしない。
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	userIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "uuid", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "wechat_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "seq", Value: -1}}},
	}
	if _, err := db.Collection(UsersCollection).Indexes().CreateMany(ctx, userIndexes); err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}

	projectIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "project_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{
			{Key: "leader", Value: 1},
			{Key: "created_at", Value: 1},
			{Key: "project_id", Value: 1},
		}},
	}
	if _, err := db.Collection(ProjectsCollection).Indexes().CreateMany(ctx, projectIndexes); err != nil {
		return fmt.Errorf("failed to create project indexes: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ProjectRepository = (*MongoProjectRepo)(nil)

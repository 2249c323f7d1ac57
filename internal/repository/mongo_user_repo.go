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

// MongoDBのコレクション名。
const (
	UsersCollection    = "users"
	ProjectsCollection = "projects"
)

// userDocument はusersコレクションのドキュメント。
type userDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UUID      string             `bson:"uuid"`
	Seq       int64              `bson:"seq"`
	Username  string             `bson:"username"`
	Gender    string             `bson:"gender"`
	WechatID  string             `bson:"wechat_id"`
	AvatarURL string             `bson:"avatar_url"`
	CreatedAt time.Time          `bson:"created_at"`
}

func newUserDocument(u *model.User) userDocument {
	return userDocument{
		UUID:      u.UUID,
		Seq:       u.Seq,
		Username:  u.Username,
		Gender:    string(u.Gender),
		WechatID:  u.ExternalID,
		AvatarURL: u.AvatarURL,
		CreatedAt: u.CreatedAt,
	}
}

func (d userDocument) toModel() *model.User {
	return &model.User{
		UUID:       d.UUID,
		Seq:        d.Seq,
		Username:   d.Username,
		Gender:     model.Gender(d.Gender),
		ExternalID: d.WechatID,
		AvatarURL:  d.AvatarURL,
		CreatedAt:  d.CreatedAt,
	}
}

// MongoUserRepo はMongoDBを使用したユーザーリポジトリ。
type MongoUserRepo struct {
	coll *mongo.Collection
}

// NewMongoUserRepo はMongoUserRepoを生成する。
func NewMongoUserRepo(db *mongo.Database) *MongoUserRepo {
	return &MongoUserRepo{coll: db.Collection(UsersCollection)}
}

func (r *MongoUserRepo) findOne(ctx context.Context, filter bson.D) (*model.User, error) {
	var doc userDocument
	err := r.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.toModel(), nil
}

// FindByExternalID はIdPのサブジェクトIDでユーザーを取得する。見つからない場合はnilを返す。
func (r *MongoUserRepo) FindByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	user, err := r.findOne(ctx, bson.D{{Key: "wechat_id", Value: externalID}})
	if err != nil {
		return nil, fmt.Errorf("failed to find user by external ID: %w", err)
	}
	return user, nil
}

// FindByUUID は内部UUIDでユーザーを取得する。見つからない場合はnilを返す。
func (r *MongoUserRepo) FindByUUID(ctx context.Context, userUUID string) (*model.User, error) {
	user, err := r.findOne(ctx, bson.D{{Key: "uuid", Value: userUUID}})
	if err != nil {
		return nil, fmt.Errorf("failed to find user by uuid: %w", err)
	}
	return user, nil
}

// MaxSequence は採番済みUUIDの最大連番を返す。
func (r *MongoUserRepo) MaxSequence(ctx context.Context) (int64, error) {
	opts := options.FindOne().
		SetSort(bson.D{{Key: "seq", Value: -1}}).
		SetProjection(bson.D{{Key: "seq", Value: 1}})

	var doc userDocument
	err := r.coll.FindOne(ctx, bson.D{}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get max user sequence: %w", err)
	}
	return doc.Seq, nil
}

// Create はユーザーを作成する。
func (r *MongoUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.coll.InsertOne(ctx, newUserDocument(user))
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UpdateAvatar はユーザーのアバターURLを更新する。
func (r *MongoUserRepo) UpdateAvatar(ctx context.Context, userUUID, avatarURL string) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "uuid", Value: userUUID}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "avatar_url", Value: avatarURL}}}},
	)
	if err != nil {
		return fmt.Errorf("failed to update avatar: %w", err)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*MongoUserRepo)(nil)

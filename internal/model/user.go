// Package model はドメインモデルを定義する。
package model

import "time"

// DefaultUsername はプロフィールに表示名が含まれない場合のユーザー名。
const DefaultUsername = "WeChat User"

// Gender はユーザーの性別を表す。
type Gender string

const (
	GenderMale        Gender = "male"
	GenderFemale      Gender = "female"
	GenderUnspecified Gender = "unspecified"
)

// GenderFromCode はIdPの数値コード（1=男性, 2=女性）をGenderに変換する。
// それ以外の値はすべてGenderUnspecifiedになる。
func GenderFromCode(code int) Gender {
	switch code {
	case 1:
		return GenderMale
	case 2:
		return GenderFemale
	default:
		return GenderUnspecified
	}
}

// User はミニプログラムの利用ユーザーを表す。
// 初回ログイン時に作成され、以降は更新も削除もされない。
type User struct {
	UUID       string // u-001 形式の内部ID
	Seq        int64  // UUIDの連番部分。タイムスタンプ由来のUUIDでは0
	Username   string
	Gender     Gender
	ExternalID string // IdPが発行するサブジェクトID（openid）
	AvatarURL  string
	CreatedAt  time.Time
}

// Profile はログイン時にクライアントから渡されるプロフィール情報。
// すべて任意項目。
type Profile struct {
	NickName  string
	AvatarURL string
	Gender    int
}

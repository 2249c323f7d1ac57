package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/hitoshi/miniproj/internal/auth"
	"github.com/hitoshi/miniproj/internal/model"
)

// LoginServiceInterface はログインハンドラーが必要とするサービスインターフェース。
type LoginServiceInterface interface {
	Login(ctx context.Context, code string, profile model.Profile) (*auth.LoginResult, error)
}

// LoginHandler はログインのHTTPハンドラー。
type LoginHandler struct {
	service LoginServiceInterface
}

// NewLoginHandler はLoginHandlerを生成する。
func NewLoginHandler(service LoginServiceInterface) *LoginHandler {
	return &LoginHandler{service: service}
}

// profileFields はミニプログラムから送られるプロフィール項目。
type profileFields struct {
	NickName  string      `json:"nickName"`
	AvatarURL string      `json:"avatarUrl"`
	Gender    json.Number `json:"gender"`
}

// loginRequest はログインリクエストのボディ。
// プロフィールはトップレベルとuserInfoのどちらでも受け付け、トップレベルを優先する。
type loginRequest struct {
	Code string `json:"code" validate:"required"`
	profileFields
	UserInfo *profileFields `json:"userInfo"`
}

func (req *loginRequest) profile() model.Profile {
	merged := req.profileFields
	if req.UserInfo != nil {
		if merged.NickName == "" {
			merged.NickName = req.UserInfo.NickName
		}
		if merged.AvatarURL == "" {
			merged.AvatarURL = req.UserInfo.AvatarURL
		}
		if merged.Gender == "" {
			merged.Gender = req.UserInfo.Gender
		}
	}
	gender, _ := merged.Gender.Int64()
	return model.Profile{
		NickName:  merged.NickName,
		AvatarURL: merged.AvatarURL,
		Gender:    int(gender),
	}
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	UUID      string    `json:"uuid"`
	Username  string    `json:"username"`
	Gender    string    `json:"gender"`
	AvatarURL string    `json:"avatarUrl"`
	CreatedAt time.Time `json:"createdAt"`
}

// loginResponse はログイン成功時のAPIレスポンス。
type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      userResponse `json:"user"`
	IsNewUser bool         `json:"isNewUser"`
	LoginTime time.Time    `json:"loginTime"`
	Degraded  bool         `json:"degraded"`
}

// Login はログインコードを交換してアクセストークンを発行する。
// POST /login
func (h *LoginHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeRequest(r, &req); err != nil {
		// codeの欠落は専用のエラーコードで返す
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeValidation {
			err = model.NewMissingCodeError()
		}
		handleServiceError(w, r, err)
		return
	}

	result, err := h.service.Login(r.Context(), req.Code, req.profile())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		User:      toUserResponse(result.User),
		IsNewUser: result.IsNewUser,
		LoginTime: result.LoginTime,
		Degraded:  result.Degraded,
	})
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		UUID:      u.UUID,
		Username:  u.Username,
		Gender:    string(u.Gender),
		AvatarURL: u.AvatarURL,
		CreatedAt: u.CreatedAt,
	}
}

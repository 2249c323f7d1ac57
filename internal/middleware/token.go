// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/miniproj/internal/auth"
	"github.com/hitoshi/miniproj/internal/model"
)

const bearerPrefix = "Bearer "

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userUUIDContextKey はリクエストコンテキストにユーザーUUIDを格納するためのキー。
var userUUIDContextKey = contextKey("user_uuid")

// userUUIDSinkKey はログミドルウェアが認証結果を受け取るための格納先のキー。
var userUUIDSinkKey = contextKey("user_uuid_sink")

// TokenVerifier はアクセストークンの検証に必要なインターフェース。
// auth.TokenIssuerが満たす。
type TokenVerifier interface {
	Parse(token string) (*auth.Claims, error)
}

// NewTokenMiddleware はAuthorizationヘッダーのBearerトークンを検証し、
// ユーザーUUIDをリクエストコンテキストに注入するミドルウェアを返す。
// ヘッダーがないリクエストはそのまま通し、無効なトークンには401を返す。
func NewTokenMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := strings.CutPrefix(header, bearerPrefix)
			if !ok || strings.TrimSpace(token) == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			claims, err := verifier.Parse(strings.TrimSpace(token))
			if err != nil {
				slog.Warn("invalid access token",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			ctx := ContextWithUserUUID(r.Context(), claims.UUID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserUUIDFromContext はリクエストコンテキストからユーザーUUIDを取得する。
// トークンミドルウェアで認証されたリクエストでのみ有効。
func UserUUIDFromContext(ctx context.Context) (string, error) {
	userUUID, ok := ctx.Value(userUUIDContextKey).(string)
	if !ok || userUUID == "" {
		return "", fmt.Errorf("user UUID not found in context")
	}
	return userUUID, nil
}

// ContextWithUserUUID はコンテキストにユーザーUUIDを注入する。
// ログミドルウェアの内側で呼ばれた場合はリクエストログにも反映される。
func ContextWithUserUUID(ctx context.Context, userUUID string) context.Context {
	if sink, ok := ctx.Value(userUUIDSinkKey).(*string); ok {
		*sink = userUUID
	}
	return context.WithValue(ctx, userUUIDContextKey, userUUID)
}

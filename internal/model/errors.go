package model

import (
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string   // エラーコード
	Message  string   // エラーメッセージ
	Category string   // カテゴリ: auth, validation, project, system
	Action   string   // ユーザー向け対処方法
	Details  []string // 検証エラーの一覧など
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, strings.Join(e.Details, "; "))
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeMissingCode      = "MISSING_CODE"
	ErrCodeExchangeFailed   = "EXCHANGE_ERROR"
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeUserNotFound     = "USER_NOT_FOUND"
	ErrCodeProjectNotFound  = "PROJECT_NOT_FOUND"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeStoreUnavailable = "STORE_UNAVAILABLE"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// NewMissingCodeError はログインコード未指定エラーを生成する。
func NewMissingCodeError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingCode,
		Message:  "ログインコードが指定されていません。",
		Category: "auth",
		Action:   "wx.login で取得したcodeを指定してください。",
	}
}

// NewExchangeError はIdPがコード交換を拒否した場合のエラーを生成する。
// IdPのメッセージをそのまま返す。
func NewExchangeError(providerMessage string) *APIError {
	if providerMessage == "" {
		providerMessage = "コード交換に失敗しました。"
	}
	return &APIError{
		Code:     ErrCodeExchangeFailed,
		Message:  providerMessage,
		Category: "auth",
		Action:   "ログインコードを再取得してから再度お試しください。",
	}
}

// NewValidationError は入力検証エラーを生成する。
// violationsには検出したすべての違反を含める。
func NewValidationError(violations []string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  "入力内容に誤りがあります。",
		Category: "validation",
		Action:   "詳細を確認して入力内容を修正してください。",
		Details:  violations,
	}
}

// NewInvalidRequestError はリクエストボディが解析できない場合のエラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError(userUUID string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("ユーザーが見つかりません: %s", userUUID),
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewProjectNotFoundError はプロジェクトが見つからない場合のエラーを生成する。
func NewProjectNotFoundError(projectID string) *APIError {
	return &APIError{
		Code:     ErrCodeProjectNotFound,
		Message:  fmt.Sprintf("指定されたプロジェクトが見つかりません: %s", projectID),
		Category: "project",
		Action:   "プロジェクトIDを確認してください。",
	}
}

// NewForbiddenError はプロジェクトの更新権限がない場合のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "このプロジェクトを更新する権限がありません。",
		Category: "project",
		Action:   "プロジェクトのリーダーまたはオーナーに依頼してください。",
	}
}

// NewUnauthorizedError はトークンが無効な場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証トークンが無効です。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewStoreUnavailableError はデータストアに接続できない場合のエラーを生成する。
func NewStoreUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeStoreUnavailable,
		Message:  "データストアに接続できません。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

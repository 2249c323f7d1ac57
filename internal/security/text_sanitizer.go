// Package security はユーザー入力の無害化を提供する。
//
// TextSanitizer はプロジェクト名やユーザー名などの表示用テキストから
// HTMLタグを除去する。ミニプログラム側はテキストとして表示するため、
// マークアップは一切許可しない。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer は表示用テキストの無害化インターフェース。
type Sanitizer interface {
	// Clean はタグを除去し前後の空白を取り除いたテキストを返す。
	Clean(s string) string
}

// TextSanitizer はbluemondayのStrictPolicyでタグを除去する。
// ポリシーはスレッドセーフに共有できる。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// Clean はタグを除去し前後の空白を取り除いたテキストを返す。
// script/styleは中身ごと除去される。
// StrictPolicyはエスケープ済みHTMLを返すため、プレーンテキストに戻してから返す。
func (s *TextSanitizer) Clean(in string) string {
	if in == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(in)))
}

// compile-time interface check
var _ Sanitizer = (*TextSanitizer)(nil)

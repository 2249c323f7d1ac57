package project

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

const projectIDSuffixLen = 6

// NewProjectID はproj-<epochミリ秒>-<英小文字と数字6桁>形式のプロジェクトIDを生成する。
func NewProjectID(now time.Time) string {
	return fmt.Sprintf("proj-%d-%s", now.UnixMilli(), randomSuffix())
}

// randomSuffix はUUIDv4の末尾48ビットを36進数にした下位6桁を返す。
func randomSuffix() string {
	id := uuid.New()
	s := new(big.Int).SetBytes(id[10:]).Text(36)
	if len(s) < projectIDSuffixLen {
		s = strings.Repeat("0", projectIDSuffixLen-len(s)) + s
	}
	return s[len(s)-projectIDSuffixLen:]
}

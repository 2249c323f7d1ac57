package handler

import (
	"net/http"
	"time"
)

// StoreStatus はデータストアの接続状態を返すインターフェース。
// repository.StoreProviderが満たす。
type StoreStatus interface {
	Connected() bool
}

// healthResponse はヘルスチェックのAPIレスポンス。
type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Store     string    `json:"store"`
}

// NewHealthHandler はヘルスチェックのハンドラーを返す。
// ストアに接続できていなくてもプロセスが応答できれば200を返す。
// GET /health
func NewHealthHandler(store StoreStatus, now func() time.Time) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:    "ok",
			Timestamp: now().UTC(),
			Store:     "unavailable",
		}
		if store != nil && store.Connected() {
			resp.Store = "connected"
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

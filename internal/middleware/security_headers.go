package middleware

import "net/http"

// apiSecurityHeaders はすべてのJSONレスポンスに付与するヘッダー。
// レスポンスはトークンや個人情報を含むためキャッシュさせない。
var apiSecurityHeaders = map[string]string{
	"X-Content-Type-Options":  "nosniff",
	"X-Frame-Options":         "DENY",
	"Referrer-Policy":         "no-referrer",
	"Cache-Control":           "no-store",
	"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
}

// NewSecurityHeadersMiddleware はAPIレスポンス向けのセキュリティヘッダーを付与するミドルウェアを返す。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for key, value := range apiSecurityHeaders {
				h.Set(key, value)
			}
			next.ServeHTTP(w, r)
		})
	}
}

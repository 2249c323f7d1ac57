// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ログイン結果のラベル値。
const (
	LoginResultExisting      = "existing"
	LoginResultCreated       = "created"
	LoginResultDegraded      = "degraded"
	LoginResultExchangeError = "exchange_error"
	LoginResultError         = "error"
)

// プロジェクト操作結果のラベル値。
const (
	ResultSuccess          = "success"
	ResultValidationError  = "validation_error"
	ResultNotFound         = "not_found"
	ResultForbidden        = "forbidden"
	ResultStoreUnavailable = "store_unavailable"
	ResultError            = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とミドルウェアから利用する。
type MetricsCollector interface {
	RecordLogin(result string)
	RecordUserCreated()
	RecordExchangeLatency(duration time.Duration)
	RecordProjectOperation(operation, result string)
	RecordStoreUnavailable(component string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins           *prometheus.CounterVec
	usersCreated     prometheus.Counter
	exchangeLatency  prometheus.Histogram
	projectOps       *prometheus.CounterVec
	storeUnavailable *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "miniproj_login_total",
			Help: "結果別のログイン数",
		}, []string{"result"}),
		usersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "miniproj_users_created_total",
			Help: "作成されたユーザーの合計数",
		}),
		exchangeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "miniproj_exchange_latency_seconds",
			Help:    "ログインコード交換のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		projectOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "miniproj_project_operations_total",
			Help: "操作と結果別のプロジェクト操作数",
		}, []string{"operation", "result"}),
		storeUnavailable: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "miniproj_store_unavailable_total",
			Help: "ストアに接続できなかった回数",
		}, []string{"component"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "miniproj_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.logins,
		c.usersCreated,
		c.exchangeLatency,
		c.projectOps,
		c.storeUnavailable,
		c.httpStatus,
	)

	return c
}

// RecordLogin はログイン結果を記録する。
func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

// RecordUserCreated はユーザー作成を記録する。
func (c *Collector) RecordUserCreated() {
	c.usersCreated.Inc()
}

// RecordExchangeLatency はコード交換のレイテンシを記録する。
func (c *Collector) RecordExchangeLatency(duration time.Duration) {
	c.exchangeLatency.Observe(duration.Seconds())
}

// RecordProjectOperation はプロジェクト操作の結果を記録する。
func (c *Collector) RecordProjectOperation(operation, result string) {
	c.projectOps.WithLabelValues(operation, result).Inc()
}

// RecordStoreUnavailable はストア接続失敗を記録する。
func (c *Collector) RecordStoreUnavailable(component string) {
	c.storeUnavailable.WithLabelValues(component).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。メトリクスを使わない構成とテストで使う。
type Nop struct{}

func (Nop) RecordLogin(string) {}
func (Nop) RecordUserCreated() {}
func (Nop) RecordExchangeLatency(time.Duration) {}
func (Nop) RecordProjectOperation(string, string) {}
func (Nop) RecordStoreUnavailable(string) {}
func (Nop) RecordHTTPStatus(int) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// statusRecorder はレスポンスのステータスコードを記録するResponseWriter。
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// NewHTTPStatusMiddleware はレスポンスのステータスコードを記録するミドルウェアを返す。
func NewHTTPStatusMiddleware(c MetricsCollector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			c.RecordHTTPStatus(rec.status)
		})
	}
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// TestHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLogin(LoginResultCreated)
	c.RecordUserCreated()
	c.RecordProjectOperation("create", ResultSuccess)
	c.RecordStoreUnavailable("project")
	c.RecordHTTPStatus(200)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	for _, metric := range []string{
		"miniproj_login_total",
		"miniproj_users_created_total",
		"miniproj_project_operations_total",
		"miniproj_store_unavailable_total",
		"miniproj_http_status_total",
	} {
		if !strings.Contains(string(body), metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

// TestHTTPStatusMiddleware_RecordsStatus はハンドラーが返したステータスコードが記録されることを検証する。
func TestHTTPStatusMiddleware_RecordsStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	mw := NewHTTPStatusMiddleware(c)
	notFound := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	implicitOK := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	notFound.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	implicitOK.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	mf := findFamily(t, reg, "miniproj_http_status_total")
	got := map[string]float64{}
	for _, m := range mf.GetMetric() {
		got[labelValue(m, "status_code")] = m.GetCounter().GetValue()
	}
	if got["404"] != 1 {
		t.Errorf("status 404 count = %v, want 1", got["404"])
	}
	if got["200"] != 1 {
		t.Errorf("status 200 count = %v, want 1", got["200"])
	}
}

// TestNop_ImplementsInterface はNopがMetricsCollectorとして使えることを検証する。
func TestNop_ImplementsInterface(t *testing.T) {
	var c MetricsCollector = Nop{}
	c.RecordLogin(LoginResultError)
	c.RecordHTTPStatus(500)
}

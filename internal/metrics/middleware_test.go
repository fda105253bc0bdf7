package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatusWriterWriteHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec}

	sw.WriteHeader(http.StatusNotFound)

	if sw.status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", sw.status)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("underlying code = %d, want 404", rec.Code)
	}
}

func TestStatusWriterWriteDefaultsTo200(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec}

	n, err := sw.Write([]byte("hello"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != 5 || sw.n != 5 {
		t.Fatalf("n = %d, bytes = %d, want 5", n, sw.n)
	}
	if sw.status != http.StatusOK {
		t.Fatalf("status = %d, want 200", sw.status)
	}
}

func TestMiddlewareCountsRequests(t *testing.T) {
	m := New()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("body"))
	}))

	for i := 0; i < 3; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/index.html", http.NoBody))
	}

	fam := gatherFamily(t, m, "http_requests_total")
	if fam == nil {
		t.Fatal("http_requests_total not gathered")
	}
	metric := fam.GetMetric()[0]
	if metric.GetCounter().GetValue() != 3 {
		t.Fatalf("count = %v, want 3", metric.GetCounter().GetValue())
	}
	if labelValue(metric, "method") != "GET" || labelValue(metric, "status") != "200" {
		t.Fatalf("labels = %v", metric.GetLabel())
	}
	// no chi pattern for asset paths; route falls back to the URL path
	if labelValue(metric, "route") != "/index.html" {
		t.Fatalf("route = %q", labelValue(metric, "route"))
	}
}

func TestMiddlewareCounts5xxAsErrors(t *testing.T) {
	m := New()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", http.NoBody))

	fam := gatherFamily(t, m, "http_errors_total")
	if fam == nil || fam.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Fatal("5xx not counted in http_errors_total")
	}
}

func TestMiddleware404NotAnError(t *testing.T) {
	m := New()
	h := m.Middleware(http.NotFoundHandler())

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", http.NoBody))

	if fam := gatherFamily(t, m, "http_errors_total"); fam != nil && len(fam.GetMetric()) > 0 {
		t.Fatal("404 counted in http_errors_total")
	}
}

func TestMiddlewareObservesSize(t *testing.T) {
	m := New()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 2048))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/big.css", http.NoBody))

	fam := gatherFamily(t, m, "http_response_size_bytes")
	if fam == nil {
		t.Fatal("http_response_size_bytes not gathered")
	}
	if got := fam.GetMetric()[0].GetHistogram().GetSampleSum(); got != 2048 {
		t.Fatalf("sample sum = %v, want 2048", got)
	}
}

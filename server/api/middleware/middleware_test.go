package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestMetrics_LabelsByRouteTemplate(t *testing.T) {
	m := NewHTTPMetrics()
	r := mux.NewRouter()
	r.Use(Metrics(m))
	r.HandleFunc("/v1/scans/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}).Methods(http.MethodGet)

	before := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/v1/scans/{id}", http.MethodGet, "404"))
	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/scans/"+id, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}
	after := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/v1/scans/{id}", http.MethodGet, "404"))
	require.Equal(t, before+2, after)
}

func TestLogger_LevelsByStatus(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	h := RequestID()(Logger(log)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	require.Contains(t, out, `"level":"error"`)
	require.Contains(t, out, `"request_id":"fixed-id"`)
	require.Contains(t, out, `"status":503`)
}

func TestLogger_IncludesRouteAndSessionID(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	r := mux.NewRouter()
	r.Use(Route())
	r.HandleFunc("/v1/scans/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	h := Logger(log)(r)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/scans/abc-123", nil))
	out := buf.String()
	require.Contains(t, out, `"route":"/v1/scans/{id}"`)
	require.Contains(t, out, `"session_id":"abc-123"`)

	buf.Reset()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	out = buf.String()
	require.Contains(t, out, `"status":404`)
	require.NotContains(t, out, "session_id")
}

func TestRequestID_RejectsOversizedHeader(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", string(bytes.Repeat([]byte("x"), 200)))
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.NotEmpty(t, seen)
	require.Less(t, len(seen), 200)
}

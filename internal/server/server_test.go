package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/drivesim/internal/features"
	"github.com/mbd888/drivesim/internal/featurestore"
	"github.com/mbd888/drivesim/internal/health"
	"github.com/mbd888/drivesim/internal/pipeline"
	"github.com/mbd888/drivesim/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		checks     []health.Status
		wantCode   int
		wantStatus string
	}{
		{"no checks", nil, http.StatusOK, "healthy"},
		{"all healthy", []health.Status{{Name: "store", Healthy: true}}, http.StatusOK, "healthy"},
		{"degraded", []health.Status{{Name: "providers", Healthy: true, Degraded: true}}, http.StatusOK, "degraded"},
		{"unhealthy", []health.Status{{Name: "store", Healthy: false}}, http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := health.NewRegistry()
			for _, st := range tt.checks {
				reg.Register(st.Name, func(context.Context) health.Status { return st })
			}
			s := New(WithHealth(reg))

			w := get(t, s, "/health")
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantStatus, decode(t, w)["status"])
		})
	}
}

func TestLiveness(t *testing.T) {
	w := get(t, New(), "/health/live")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := New()
	_ = get(t, s, "/health/live")

	w := get(t, s, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "drivesim_http_requests_total")
}

func TestRequestIDEchoed(t *testing.T) {
	s := New()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))

	w = get(t, s, "/health/live")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestLatestRun(t *testing.T) {
	s := New()

	w := get(t, s, "/v1/runs/latest")
	assert.Equal(t, http.StatusNotFound, w.Code)

	s.RunStarted("run_1")
	w = get(t, s, "/v1/runs/latest")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "run_1", decode(t, w)["run_id"])

	s.RunFinished(&pipeline.Summary{RunID: "run_1", DriversRequested: 3, DriversCompleted: 3, RecordsEmitted: 36})
	w = get(t, s, "/v1/runs/latest")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "completed", body["status"])
	summary := body["summary"].(map[string]any)
	assert.Equal(t, "run_1", summary["run_id"])
	assert.EqualValues(t, 36, summary["records_emitted"])
}

func TestRunStatus(t *testing.T) {
	assert.Equal(t, "canceled", runStatus(&pipeline.Summary{Canceled: true, DriversFailed: 1}))
	assert.Equal(t, "partial", runStatus(&pipeline.Summary{DriversFailed: 1}))
	assert.Equal(t, "completed", runStatus(&pipeline.Summary{}))
}

func TestDriverFeatures(t *testing.T) {
	store := featurestore.NewMemoryStore()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Write(context.Background(), "run_1", testutil.Records(2, 3, start)))
	s := New(WithStore(store))

	w := get(t, s, "/v1/drivers/DRV-00002/features")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		DriverID string            `json:"driver_id"`
		Months   []features.Record `json:"months"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, "DRV-00002", list.DriverID)
	require.Len(t, list.Months, 3)
	assert.Equal(t, "2024-03", list.Months[2].Month)

	w = get(t, s, "/v1/drivers/DRV-00001/features/2024-02")
	require.Equal(t, http.StatusOK, w.Code)
	var rec features.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, testutil.Record("DRV-00001", "2024-02"), rec)

	assert.Equal(t, http.StatusNotFound, get(t, s, "/v1/drivers/DRV-00001/features/2025-01").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/v1/drivers/nobody/features").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/v1/drivers/DRV-00001/features/March").Code)
}

type brokenStore struct{ featurestore.Store }

func (brokenStore) ListByDriver(context.Context, string) ([]features.Record, error) {
	return nil, errors.New("connection reset")
}

func TestDriverFeatures_StoreError(t *testing.T) {
	s := New(WithStore(brokenStore{}))
	assert.Equal(t, http.StatusInternalServerError, get(t, s, "/v1/drivers/x/features").Code)
}

func TestDriverFeatures_NoStore(t *testing.T) {
	s := New()
	assert.Equal(t, http.StatusNotImplemented, get(t, s, "/v1/drivers/x/features").Code)
	assert.Equal(t, http.StatusNotImplemented, get(t, s, "/v1/drivers/x/features/2024-01").Code)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health/live"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url) //nolint:gosec // test URL
		if err != nil {
			return false
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"codeberg.org/mutker/coherentd/internal/logger"
	"codeberg.org/mutker/coherentd/internal/runtime"
	"codeberg.org/mutker/coherentd/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	status runtime.Status
}

func (f *fakeSource) Status() runtime.Status {
	return f.status
}

func healthyStatus() runtime.Status {
	return runtime.Status{
		OpsTotal:    7,
		OpsByDomain: map[string]uint64{"compute": 7},
		RootScore:   0.96,
		RootHealth:  runtime.HealthExcellent,
		Domains: map[string]runtime.DomainStatus{
			"compute": {Score: 0.96, Health: runtime.HealthExcellent, Ops: 7},
		},
	}
}

func TestStatusHandler(t *testing.T) {
	src := &fakeSource{status: healthyStatus()}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)

	server.StatusHandler(src).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got runtime.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, uint64(7), got.OpsTotal)
	assert.Equal(t, runtime.HealthExcellent, got.RootHealth)
	assert.Equal(t, uint64(7), got.Domains["compute"].Ops)
}

func TestStatusHandlerRejectsNonGet(t *testing.T) {
	src := &fakeSource{status: healthyStatus()}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/status", nil)

	server.StatusHandler(src).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthHandlerHealthy(t *testing.T) {
	src := &fakeSource{status: healthyStatus()}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	server.HealthHandler(src).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), runtime.HealthExcellent)
}

func TestHealthHandlerDegraded(t *testing.T) {
	st := healthyStatus()
	st.RootScore = 0.4
	st.RootHealth = runtime.HealthCritical
	src := &fakeSource{status: st}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	server.HealthHandler(src).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNewRequiresAddr(t *testing.T) {
	logger.Init(false, false, true)
	_, err := server.New("", &fakeSource{}, logger.Default())
	require.Error(t, err)
}

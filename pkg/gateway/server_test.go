package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upperfaas/upperfaas/pkg/launcher"
	"github.com/upperfaas/upperfaas/pkg/registry"
)

func newTestServer(t *testing.T) (*Server, registry.Store, *launcher.MockRuntime) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := registry.NewMemoryStore()
	runtime := launcher.NewMockRuntime(store, logger)
	return NewServer("localhost:0", store, runtime, logger), store, runtime
}

func registerToupper(t *testing.T, s *Server) {
	t.Helper()
	body := `{"image_tag":"upperfaas/toupper:latest","config":{"timeout_seconds":30}}`
	req := httptest.NewRequest(http.MethodPut, "/registry/function/toupper", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
}

func startInstance(t *testing.T, s *Server) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/function/toupper/start", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["instance_id"])
	return resp["instance_id"]
}

func TestInvokeEndToEnd(t *testing.T) {
	s, _, runtime := newTestServer(t)
	registerToupper(t, s)
	instanceId := startInstance(t, s)
	defer runtime.Stop(context.Background(), instanceId)

	req := httptest.NewRequest(http.MethodPost, "/function/toupper", strings.NewReader(`{"input":"Welcome to happy land!"}`))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"result":"WELCOME TO HAPPY LAND!"}`, rec.Body.String())
}

func TestInvokeValidationErrorIsRelayed(t *testing.T) {
	s, _, runtime := newTestServer(t)
	registerToupper(t, s)
	instanceId := startInstance(t, s)
	defer runtime.Stop(context.Background(), instanceId)

	req := httptest.NewRequest(http.MethodPost, "/function/toupper", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing input field")
}

func TestInvokeUnknownFunction(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/function/nope", strings.NewReader(`{"input":"x"}`))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvokeNoInstances(t *testing.T) {
	s, _, _ := newTestServer(t)
	registerToupper(t, s)

	req := httptest.NewRequest(http.MethodPost, "/function/toupper", strings.NewReader(`{"input":"x"}`))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestInvokeUnreachableInstance(t *testing.T) {
	s, store, _ := newTestServer(t)
	registerToupper(t, s)

	// Register an instance nobody is serving on.
	require.NoError(t, store.AddInstance(context.Background(), "toupper", registry.Instance{
		Id:      "dead",
		Address: "127.0.0.1:1",
	}))

	req := httptest.NewRequest(http.MethodPost, "/function/toupper", strings.NewReader(`{"input":"x"}`))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestReadySignalRegistersInstance(t *testing.T) {
	s, store, _ := newTestServer(t)
	registerToupper(t, s)

	body := `{"function":"toupper","instance_id":"inst-1","address":"10.0.0.1:8050"}`
	req := httptest.NewRequest(http.MethodPost, "/registry/ready", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	instances, err := store.ListInstances(context.Background(), "toupper")
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, "inst-1", instances[0].Id)
	assert.Equal(t, "10.0.0.1:8050", instances[0].Address)
}

func TestReadySignalValidation(t *testing.T) {
	s, _, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"not json", `nope`, http.StatusBadRequest},
		{"missing fields", `{"function":"toupper"}`, http.StatusBadRequest},
		{"unknown function", `{"function":"nope","instance_id":"i","address":"a:1"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/registry/ready", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			s.Router().ServeHTTP(rec, req)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestFunctionLifecycle(t *testing.T) {
	s, _, _ := newTestServer(t)
	registerToupper(t, s)

	req := httptest.NewRequest(http.MethodGet, "/registry/functions", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var functions []registry.FunctionMetadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &functions))
	require.Len(t, functions, 1)
	assert.Equal(t, "toupper", functions[0].Name)

	req = httptest.NewRequest(http.MethodDelete, "/registry/function/toupper", nil)
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/registry/function/toupper", nil)
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPutFunctionRequiresImage(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPut, "/registry/function/toupper", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStopInstance(t *testing.T) {
	s, store, _ := newTestServer(t)
	registerToupper(t, s)
	instanceId := startInstance(t, s)

	req := httptest.NewRequest(http.MethodDelete, "/function/toupper/instance/"+instanceId, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	instances, err := store.ListInstances(context.Background(), "toupper")
	require.NoError(t, err)
	assert.Empty(t, instances)
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)
	registerToupper(t, s)

	// One invocation so the counters exist.
	req := httptest.NewRequest(http.MethodPost, "/function/toupper", strings.NewReader(`{"input":"x"}`))
	s.Router().ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "upperfaas_gateway_invocations_total")
}

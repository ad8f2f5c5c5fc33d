package launcher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/upperfaas/upperfaas/pkg/handler"
	"github.com/upperfaas/upperfaas/pkg/registry"
	"github.com/upperfaas/upperfaas/pkg/transform"
)

var _ ContainerRuntime = &MockRuntime{}

// MockRuntime serves the built-in toupper handler on a loopback listener per
// instance, so the full gateway path can run without Docker.
type MockRuntime struct {
	store  registry.Store
	logger *slog.Logger

	mu      sync.Mutex
	running map[string]*http.Server
}

func NewMockRuntime(store registry.Store, logger *slog.Logger) *MockRuntime {
	return &MockRuntime{
		store:   store,
		logger:  logger,
		running: make(map[string]*http.Server),
	}
}

func (m *MockRuntime) Start(ctx context.Context, meta *registry.FunctionMetadata) (string, error) {
	if meta == nil {
		return "", registry.ErrMetadataIsNil
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}

	instanceId := uuid.New().String()[:8]

	h := handler.NewToUpper(transform.New())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /invoke", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		defer r.Body.Close()

		out, err := h.HandleRaw(r.Context(), body)
		if err != nil {
			var vErr *handler.ValidationError
			if errors.As(err, &vErr) {
				writeError(w, vErr.HTTPStatus(), err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "function failed")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(out)
	})

	server := &http.Server{Handler: mux}

	m.mu.Lock()
	m.running[instanceId] = server
	m.mu.Unlock()

	go func() {
		if err := server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("Mock instance failed", "instance", instanceId, "error", err)
		}
	}()

	instance := registry.Instance{
		Id:        instanceId,
		Address:   lis.Addr().String(),
		StartedAt: time.Now(),
	}
	if err := m.store.AddInstance(ctx, meta.Name, instance); err != nil {
		server.Close()
		m.mu.Lock()
		delete(m.running, instanceId)
		m.mu.Unlock()
		return "", err
	}

	m.logger.Info("Started mock instance", "function", meta.Name, "instance", instanceId, "address", instance.Address)
	return instanceId, nil
}

func (m *MockRuntime) Stop(_ context.Context, instanceId string) error {
	m.mu.Lock()
	server, ok := m.running[instanceId]
	delete(m.running, instanceId)
	m.mu.Unlock()

	if !ok {
		return registry.ErrInstanceNotFound
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return server.Close()
	}

	m.logger.Info("Stopped mock instance", "instance", instanceId)
	return nil
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

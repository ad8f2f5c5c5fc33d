// Package gateway is the invocation boundary of the platform: it accepts the
// external JSON request, routes it to a running instance of the target
// function and relays the JSON response.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/upperfaas/upperfaas/pkg/launcher"
	"github.com/upperfaas/upperfaas/pkg/registry"
	"github.com/upperfaas/upperfaas/pkg/scheduler"
)

type Server struct {
	address   string
	store     registry.Store
	runtime   launcher.ContainerRuntime
	picker    *scheduler.RoundRobin
	forwarder *ForwardingClient
	logger    *slog.Logger
	router    chi.Router

	promRegistry       *prometheus.Registry
	invocationsTotal   *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec
}

func NewServer(address string, store registry.Store, runtime launcher.ContainerRuntime, logger *slog.Logger) *Server {
	s := &Server{
		address:   address,
		store:     store,
		runtime:   runtime,
		picker:    scheduler.NewRoundRobin(),
		forwarder: NewForwardingClient(logger),
		logger:    logger,
	}

	s.promRegistry = prometheus.NewRegistry()
	s.promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.invocationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "upperfaas_gateway_invocations_total",
		Help: "Invocations relayed through the gateway, by function and status code.",
	}, []string{"function", "code"})
	s.invocationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "upperfaas_gateway_invocation_duration_seconds",
		Help:    "End-to-end invocation latency as seen by the gateway.",
		Buckets: prometheus.DefBuckets,
	}, []string{"function"})
	s.promRegistry.MustRegister(s.invocationsTotal, s.invocationDuration)

	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	}))
	r.Use(s.requestLogger)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{}))

	r.Post("/function/{name}", s.handleInvoke)
	r.Post("/function/{name}/start", s.handleStartInstance)
	r.Delete("/function/{name}/instance/{id}", s.handleStopInstance)

	r.Post("/registry/ready", s.handleReady)
	r.Put("/registry/function/{name}", s.handlePutFunction)
	r.Get("/registry/functions", s.handleListFunctions)
	r.Delete("/registry/function/{name}", s.handleDeleteFunction)

	return r
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.address,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Gateway starting", "address", s.address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Gateway shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return server.Close()
	}
	return nil
}

// handleInvoke is the single synchronous call of the platform: input JSON in
// the body, output JSON in the response.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	start := time.Now()

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		s.observe(name, http.StatusBadRequest, start)
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	defer r.Body.Close()

	if _, err := s.store.GetFunction(r.Context(), name); err != nil {
		if errors.Is(err, registry.ErrFunctionNotFound) || errors.Is(err, registry.ErrFunctionNameIsEmpty) {
			s.observe(name, http.StatusNotFound, start)
			writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown function %q", name))
			return
		}
		s.observe(name, http.StatusInternalServerError, start)
		writeJSONError(w, http.StatusInternalServerError, "registry lookup failed")
		return
	}

	instances, err := s.store.ListInstances(r.Context(), name)
	if err != nil {
		s.observe(name, http.StatusInternalServerError, start)
		writeJSONError(w, http.StatusInternalServerError, "registry lookup failed")
		return
	}

	instance, err := s.picker.Pick(name, instances)
	if err != nil {
		s.observe(name, http.StatusServiceUnavailable, start)
		writeJSONError(w, http.StatusServiceUnavailable, fmt.Sprintf("no running instances of %q", name))
		return
	}

	result, err := s.forwarder.Invoke(r.Context(), instance.Address, payload)
	if err != nil {
		s.logger.Error("Instance unreachable", "function", name, "instance", instance.Id, "error", err)
		s.observe(name, http.StatusBadGateway, start)
		writeJSONError(w, http.StatusBadGateway, "function instance unreachable")
		return
	}

	s.logger.Debug("Invocation relayed",
		"function", name,
		"instance", instance.Id,
		"invocation", result.InvocationId,
		"code", result.StatusCode)

	s.observe(name, result.StatusCode, start)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.StatusCode)
	if _, err := w.Write(result.Body); err != nil {
		s.logger.Error("Failed to write response", "function", name, "error", err)
	}
}

func (s *Server) handleStartInstance(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	meta, err := s.store.GetFunction(r.Context(), name)
	if err != nil {
		if errors.Is(err, registry.ErrFunctionNotFound) {
			writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown function %q", name))
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "registry lookup failed")
		return
	}

	instanceId, err := s.runtime.Start(r.Context(), meta)
	if err != nil {
		s.logger.Error("Failed to start instance", "function", name, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to start instance")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"instance_id": instanceId})
}

func (s *Server) handleStopInstance(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	instanceId := chi.URLParam(r, "id")

	if err := s.runtime.Stop(r.Context(), instanceId); err != nil {
		s.logger.Error("Failed to stop instance", "instance", instanceId, "error", err)
	}

	if err := s.store.RemoveInstance(r.Context(), name, instanceId); err != nil {
		if errors.Is(err, registry.ErrInstanceNotFound) {
			writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown instance %q", instanceId))
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "failed to remove instance")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"instance_id": instanceId})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	var signal struct {
		Function   string `json:"function"`
		InstanceId string `json:"instance_id"`
		Address    string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&signal); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid ready signal")
		return
	}
	if signal.Function == "" || signal.InstanceId == "" || signal.Address == "" {
		writeJSONError(w, http.StatusBadRequest, "ready signal requires function, instance_id and address")
		return
	}

	instance := registry.Instance{
		Id:        signal.InstanceId,
		Address:   signal.Address,
		StartedAt: time.Now(),
	}
	if err := s.store.AddInstance(r.Context(), signal.Function, instance); err != nil {
		if errors.Is(err, registry.ErrFunctionNotFound) {
			writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown function %q", signal.Function))
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "failed to register instance")
		return
	}

	s.logger.Info("Instance registered", "function", signal.Function, "instance", signal.InstanceId, "address", signal.Address)
	writeJSON(w, http.StatusOK, map[string]string{"instance_id": signal.InstanceId})
}

func (s *Server) handlePutFunction(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var meta registry.FunctionMetadata
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid function metadata")
		return
	}
	meta.Name = name

	if meta.ImageTag == "" {
		writeJSONError(w, http.StatusBadRequest, "image_tag is required")
		return
	}

	if err := s.store.PutFunction(r.Context(), &meta); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to store function")
		return
	}

	s.logger.Info("Function registered", "function", name, "image", meta.ImageTag)
	writeJSON(w, http.StatusCreated, meta)
}

func (s *Server) handleListFunctions(w http.ResponseWriter, r *http.Request) {
	functions, err := s.store.ListFunctions(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to list functions")
		return
	}
	writeJSON(w, http.StatusOK, functions)
}

func (s *Server) handleDeleteFunction(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := s.store.DeleteFunction(r.Context(), name); err != nil {
		if errors.Is(err, registry.ErrFunctionNotFound) {
			writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown function %q", name))
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "failed to delete function")
		return
	}

	s.picker.Forget(name)
	s.logger.Info("Function deleted", "function", name)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	})
}

func (s *Server) observe(function string, code int, start time.Time) {
	s.invocationsTotal.WithLabelValues(function, strconv.Itoa(code)).Inc()
	s.invocationDuration.WithLabelValues(function).Observe(time.Since(start).Seconds())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

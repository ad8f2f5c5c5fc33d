// Package runtime is the adapter a function binary links against to run on
// the platform. It owns the invocation server, the ready signal to the
// gateway and the idle shutdown; the function itself only supplies a handler.
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

type handler func(context.Context, *Request) (*Response, error)

// Request is one invocation as delivered by the gateway: the raw payload
// bytes plus the invocation id assigned at the boundary.
type Request struct {
	Data []byte
	Id   string
}

type Response struct {
	Data []byte
	Id   string
}

// statusError is implemented by handler errors that map to a specific HTTP
// status (validation failures map to 400). Anything else is an instance
// failure.
type statusError interface {
	error
	HTTPStatus() int
}

const invocationIDHeader = "X-Invocation-Id"

// Function hosts a single handler behind the platform invocation contract.
type Function struct {
	timeoutSeconds   int
	listenAddress    string
	advertiseAddress string
	gatewayAddress   string
	functionName     string
	instanceId       string

	logger *slog.Logger

	server       *http.Server
	lastActivity time.Time
	activityMu   sync.RWMutex
}

// New builds a Function from the environment. timeoutSeconds is how long the
// instance may sit idle before it shuts itself down; the platform overrides
// it through FUNCTION_TIMEOUT when the function was registered with one.
func New(timeoutSeconds int) *Function {
	settings := loadRuntimeSettings()
	if settings.timeoutSeconds > 0 {
		timeoutSeconds = settings.timeoutSeconds
	}
	return &Function{
		timeoutSeconds:   timeoutSeconds,
		listenAddress:    settings.listenAddress,
		advertiseAddress: settings.advertiseAddress,
		gatewayAddress:   settings.gatewayAddress,
		functionName:     settings.functionName,
		instanceId:       getID(),
	}
}

// Ready starts serving invocations and blocks until the instance shuts down,
// either from idling past the timeout or from SIGTERM.
func (f *Function) Ready(h handler) {
	if h == nil {
		panic("runtime: handler must not be nil")
	}

	logger := configLog(
		fmt.Sprintf("/logs/%s-%s.log", time.Now().Format("2006-01-02-15-04-05"), f.instanceId),
	)
	f.logger = logger
	f.updateActivity()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /invoke", f.invokeHandler(h))

	f.server = &http.Server{
		Addr:    f.listenAddress,
		Handler: mux,
	}

	lis, err := net.Listen("tcp", f.listenAddress)
	if err != nil {
		logger.Error("Failed to listen", "error", err)
		os.Exit(1)
	}

	go f.monitorTimeout()
	go f.watchSignals()

	logger.Info("Sending ready signal to gateway", "gateway", f.gatewayAddress)
	go f.sendReadySignal()

	logger.Info("Invocation server starting", "address", f.listenAddress, "timeout", f.timeoutSeconds)

	if serveErr := f.server.Serve(lis); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		logger.Error("Failed to serve", "error", serveErr)
		os.Exit(1)
	}

	logger.Info("Instance stopped")
}

func (f *Function) invokeHandler(h handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.updateActivity()

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		defer r.Body.Close()

		req := &Request{Data: body, Id: r.Header.Get(invocationIDHeader)}
		f.logger.Debug("Received invocation", "id", req.Id)

		resp, err := h(r.Context(), req)
		if err != nil {
			var sErr statusError
			if errors.As(err, &sErr) {
				f.logger.Debug("Invocation rejected", "id", req.Id, "error", err)
				writeError(w, sErr.HTTPStatus(), err.Error())
				return
			}
			f.logger.Error("Function failed", "id", req.Id, "error", err)
			writeError(w, http.StatusInternalServerError, "function failed")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(resp.Data); err != nil {
			f.logger.Error("Failed to write response", "id", req.Id, "error", err)
		}
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (f *Function) updateActivity() {
	f.activityMu.Lock()
	f.lastActivity = time.Now()
	f.activityMu.Unlock()
}

func (f *Function) monitorTimeout() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		f.activityMu.RLock()
		inactive := time.Since(f.lastActivity)
		f.activityMu.RUnlock()

		if inactive >= time.Duration(f.timeoutSeconds)*time.Second {
			if f.logger != nil {
				f.logger.Info("Idle timeout reached, shutting down",
					"timeout", f.timeoutSeconds,
					"last_activity", inactive)
			}
			f.shutdown()
			return
		}
	}
}

func (f *Function) watchSignals() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	if f.logger != nil {
		f.logger.Info("Received stop signal, shutting down")
	}
	f.shutdown()
}

func (f *Function) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.server.Shutdown(ctx); err != nil {
		f.server.Close()
	}
}

func configLog(logFile string) *slog.Logger {
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		console := slog.New(slog.NewTextHandler(os.Stdout, nil))
		console.Error("Failed to create log file, using stdout", "error", err)
		return console
	}

	return slog.New(slog.NewTextHandler(file, nil))
}

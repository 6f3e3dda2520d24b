package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"codeberg.org/mutker/coherentd/internal/errors"
	"codeberg.org/mutker/coherentd/internal/logger"
	"codeberg.org/mutker/coherentd/internal/runtime"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const readHeaderTimeout = 5 * time.Second

// StatusSource provides read-only runtime snapshots. *runtime.Runtime
// satisfies it.
type StatusSource interface {
	Status() runtime.Status
}

// Server exposes the runtime's status over HTTP. Cleartext HTTP/2 (h2c)
// is supported alongside HTTP/1.1.
type Server struct {
	httpSrv *http.Server
	log     logger.Logger
}

func New(addr string, src StatusSource, log logger.Logger) (*Server, error) {
	errFactory := errors.New()
	if addr == "" {
		return nil, errFactory.WithData(errors.ErrInitServer, "empty listen address")
	}

	mux := http.NewServeMux()
	mux.Handle("/status", StatusHandler(src))
	mux.Handle("/healthz", HealthHandler(src))

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return &Server{
		httpSrv: httpSrv,
		log:     log,
	}, nil
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	s.log.Info().Str("addr", s.httpSrv.Addr).Msg("Status server listening")

	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("Status server failed")
		}
	}()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	errFactory := errors.New()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return errFactory.Wrap(errors.ErrShutdownFailed, err)
	}

	return nil
}

// StatusHandler serves the full runtime snapshot as JSON.
func StatusHandler(src StatusSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(src.Status()); err != nil {
			http.Error(w, "encoding failed", http.StatusInternalServerError)
		}
	})
}

// HealthHandler serves the root health label, returning 503 once the
// root score has fallen below the stable band.
func HealthHandler(src StatusSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		st := src.Status()
		code := http.StatusOK
		switch st.RootHealth {
		case runtime.HealthDegraded, runtime.HealthCritical, runtime.HealthFailing:
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"health":     st.RootHealth,
			"root_score": st.RootScore,
		})
	})
}

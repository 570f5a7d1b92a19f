// Package httpserver implements the HTTP service adapter : one POST route per
// registered flow plus a liveness check, translating request/response bodies
// and SSE framing but implementing no flow logic itself.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/flowllm-go/flowllm/pkg/flow"
	"github.com/flowllm-go/flowllm/pkg/svcctx"
)

// Server is the chi-routed HTTP adapter in front of a ServiceContext's
// registered flows.
type Server struct {
	sc         *svcctx.ServiceContext
	router     chi.Router
	logger     *slog.Logger
	httpServer *http.Server
}

// Option configures a Server at construction.
type Option func(*Server)

func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.logger = l } }

// New builds a Server that dispatches `POST /{flow}` to sc's flow registry
// and serves `GET /health`.
func New(sc *svcctx.ServiceContext, opts ...Option) *Server {
	s := &Server{sc: sc, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)
	r.Get("/health", s.handleHealth)
	r.Post("/{flow}", s.handleFlow)
	s.router = r
	return s
}

// ServeHTTP satisfies http.Handler, so Server can be used directly with
// httptest or an external listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe starts the HTTP server on addr and blocks until it stops.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming responses can run indefinitely
		IdleTimeout:  120 * time.Second,
	}
	s.logger.Info("http server starting", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server, if started.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func (s *Server) handleFlow(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "flow")

	var kwargs map[string]any
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&kwargs); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	f, err := s.sc.Flow(name, nil)
	if err != nil {
		http.Error(w, "unknown flow: "+name, http.StatusNotFound)
		return
	}

	stream, _ := kwargs["stream"].(bool)
	if stream {
		s.handleStream(w, r, f, kwargs)
		return
	}

	resp, err := f.Call(kwargs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if !resp.Success {
		w.WriteHeader(http.StatusInternalServerError)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, f *flow.Flow, kwargs map[string]any) {
	q, err := f.CallStream(kwargs, 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, canFlush := w.(http.Flusher)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-q.C():
			if !ok {
				return
			}
			if chunk.Done {
				_, _ = w.Write([]byte(flow.DoneSentinel))
				if canFlush {
					flusher.Flush()
				}
				return
			}
			payload, encErr := flow.EncodeChunk(chunk)
			if encErr != nil {
				s.logger.Error("encode stream chunk", "error", encErr)
				continue
			}
			_, _ = w.Write([]byte(payload))
			if canFlush {
				flusher.Flush()
			}
		}
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"
	"golang.org/x/sync/errgroup"

	"github.com/onkernel/workspace-companion/lib/files"
	"github.com/onkernel/workspace-companion/lib/fswatch"
	"github.com/onkernel/workspace-companion/lib/logger"
	"github.com/onkernel/workspace-companion/lib/metrics"
	"github.com/onkernel/workspace-companion/lib/oapi"
	"github.com/onkernel/workspace-companion/lib/terminal"
)

// Options carries the settings ApiService needs beyond its components.
type Options struct {
	Version string
	// AllowedOrigins are coder/websocket origin patterns for upgrades.
	AllowedOrigins []string
	// MaxBodyBytes caps JSON request bodies. Zero means no limit.
	MaxBodyBytes int64
}

type ApiService struct {
	store       *files.Store
	broadcaster *fswatch.Broadcaster
	terminals   *terminal.Manager
	opts        Options

	// upgrade bookkeeping, guarded by mu
	mu      sync.Mutex
	closing bool
	sockets sync.WaitGroup
}

func New(store *files.Store, broadcaster *fswatch.Broadcaster, terminals *terminal.Manager, opts Options) *ApiService {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	return &ApiService{
		store:       store,
		broadcaster: broadcaster,
		terminals:   terminals,
		opts:        opts,
	}
}

// Handler builds the router. Every websocket upgrade, whatever its path, goes through
// the gateway; everything else is plain HTTP.
func (s *ApiService) Handler(slogger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(
		chiMiddleware.Logger,
		chiMiddleware.Recoverer,
		metrics.Middleware,
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctxWithLogger := logger.AddToContext(r.Context(), slogger)
				next.ServeHTTP(w, r.WithContext(ctxWithLogger))
			})
		},
		s.upgradeGateway,
	)

	strictHandler := oapi.NewStrictHandlerWithOptions(s, []oapi.StrictMiddlewareFunc{logOperation}, oapi.StrictHTTPServerOptions{
		RequestErrorHandlerFunc:  requestError,
		ResponseErrorHandlerFunc: responseError,
	})
	r.Group(func(r chi.Router) {
		r.Use(
			func(next http.Handler) http.Handler { return gzhttp.GzipHandler(next) },
			s.limitBody,
		)
		oapi.HandlerFromMux(strictHandler, r)
	})

	r.Handle("/metrics", metrics.Handler())
	r.Get("/spec.yaml", s.handleSpecYAML)
	r.Get("/spec.json", s.handleSpecJSON)

	return r
}

// Shutdown closes every terminal session, stops the watcher (which closes every file
// subscriber) and refuses further upgrades. It waits for open sockets to finish until
// ctx expires. Safe with no live sockets.
func (s *ApiService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	var g errgroup.Group
	g.Go(func() error {
		if err := s.terminals.CloseAll(ctx); err != nil {
			return fmt.Errorf("close terminals: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.broadcaster.Close(); err != nil {
			return fmt.Errorf("close watcher: %w", err)
		}
		return nil
	})
	var errs []error
	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}

	done := make(chan struct{})
	go func() {
		s.sockets.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("wait for sockets: %w", ctx.Err()))
	}
	return errors.Join(errs...)
}

// acquireSocket registers an upgrade unless shutdown has begun.
func (s *ApiService) acquireSocket() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.sockets.Add(1)
	return true
}

// limitBody caps request bodies at MaxBodyBytes.
func (s *ApiService) limitBody(next http.Handler) http.Handler {
	if s.opts.MaxBodyBytes <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

// logOperation tags the request logger with the operation being served.
func logOperation(f oapi.StrictHandlerFunc, operationID string) oapi.StrictHandlerFunc {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request, request interface{}) (interface{}, error) {
		ctx = logger.AddToContext(ctx, logger.FromContext(ctx).With("operation", operationID))
		return f(ctx, w, r, request)
	}
}

// requestError reports a body that could not be decoded. Oversized bodies get 413.
func requestError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadRequest
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		status = http.StatusRequestEntityTooLarge
	}
	writeError(w, status, err.Error())
}

func responseError(w http.ResponseWriter, r *http.Request, err error) {
	logger.FromContext(r.Context()).Error("rendering response failed", "path", r.URL.Path, "err", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(oapi.Error{Error: msg})
}

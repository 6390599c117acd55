package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/confluence-client/pkg/client"
	"github.com/Sternrassler/confluence-client/pkg/domain"
	"github.com/Sternrassler/confluence-client/pkg/logging"
	"github.com/Sternrassler/confluence-client/pkg/metrics"
	"github.com/Sternrassler/confluence-client/pkg/pagination"
	"github.com/Sternrassler/confluence-client/pkg/ratelimit"
	"github.com/Sternrassler/confluence-client/pkg/search"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
)

// searcher runs one search. *search.Client implements it.
type searcher interface {
	Search(ctx context.Context, req search.Request) (*domain.SearchResult, error)
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve CQL searches over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default from config, :8080)",
			},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.IsSet("addr") {
		cfg.Server.Addr = cmd.String("addr")
	}

	conf, cleanup, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	logger := logging.NewLogger("confluence-server")
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      newRouter(conf.Search(), cfg.Search.DefaultLimit, logger),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	logger.Info().Msg("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownSec)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
		return err
	}
	logger.Info().Msg("Server stopped gracefully")
	return nil
}

func newRouter(s searcher, defaultLimit int, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/health", healthHandler)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/search", searchHandler(s, defaultLimit, logger))
	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// searchHandler serves GET /search?cql=...&limit=&start=&all=&expand=&excerpt=&cqlcontext=
func searchHandler(s searcher, defaultLimit int, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := requestFromQuery(r.URL.Query(), defaultLimit)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err)
			return
		}

		result, err := s.Search(r.Context(), req)
		if err != nil {
			status, kind := statusForError(err)
			logger.Warn().
				Err(err).
				Str("request_id", middleware.GetReqID(r.Context())).
				Int("status_code", status).
				Msg("Search request failed")
			writeError(w, status, kind, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func requestFromQuery(q url.Values, defaultLimit int) (search.Request, error) {
	intParam := func(name string, def int) (int, error) {
		raw := q.Get(name)
		if raw == "" {
			return def, nil
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return 0, fmt.Errorf("%s: %q is not a number", name, raw)
		}
		return n, nil
	}

	limit, err := intParam(search.ParamLimit, defaultLimit)
	if err != nil {
		return search.Request{}, err
	}
	start, err := intParam(search.ParamStart, 0)
	if err != nil {
		return search.Request{}, err
	}
	all := false
	if raw := q.Get("all"); raw != "" {
		if all, err = strconv.ParseBool(raw); err != nil {
			return search.Request{}, fmt.Errorf("all: %q is not a boolean", raw)
		}
	}

	opts := []search.Option{
		search.WithCQLContext(q.Get(search.ParamCQLContext)),
		search.WithLimit(limit),
		search.WithStart(start),
		search.WithRetrieveAll(all),
	}
	if raw := q.Get(search.ParamExpand); raw != "" {
		opts = append(opts, search.WithExpand(strings.Split(raw, ",")...))
	}
	if raw := q.Get(search.ParamExcerpt); raw != "" {
		excerpt, err := domain.ParseExcerpt(raw)
		if err != nil {
			return search.Request{}, err
		}
		opts = append(opts, search.WithExcerpt(excerpt))
	}
	return search.NewRequest(q.Get(search.ParamCQL), opts...)
}

// statusForError maps a search failure to the status returned to callers
// of the service and a short machine-readable kind.
func statusForError(err error) (int, string) {
	var (
		valErr       *client.ValidationError
		authErr      *client.AuthenticationError
		apiErr       *client.APIError
		transportErr *client.TransportError
	)
	switch {
	case errors.As(err, &valErr):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, ratelimit.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.As(err, &authErr):
		return http.StatusBadGateway, "upstream_auth"
	case errors.As(err, &apiErr) && apiErr.ErrorClass == client.ErrorClassRateLimit:
		return http.StatusTooManyRequests, "rate_limited"
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest:
		return http.StatusBadRequest, "invalid_query"
	case errors.Is(err, pagination.ErrPageLimit):
		return http.StatusUnprocessableEntity, "page_limit"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.As(err, &transportErr):
		return http.StatusBadGateway, "upstream_unreachable"
	default:
		return http.StatusBadGateway, "upstream_error"
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, kind string, err error) {
	writeJSON(w, status, errorResponse{Error: kind, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestLogger logs one line per request with zerolog.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status_code", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("HTTP request")
		})
	}
}

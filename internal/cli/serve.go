package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ivnvaldz7/pokeclient"
	"github.com/ivnvaldz7/pokeclient/pokeapi"
)

const (
	prefetchTimeout = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

func newServeCmd(getApp func() *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the Pokédex as a JSON API.",
		Long: `Serve the Pokédex as a JSON API.

Endpoints:
  GET /pokemon?offset=&limit=&type=&generation=&sort=&dir=
  GET /pokemon/{name}
  GET /types
  GET /generations
  GET /suggest?q=
  GET /metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := getApp()
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			l, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", addr, err)
			}
			return a.serve(cmd.Context(), l)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	return cmd
}

// serve runs the API on l until ctx is done.
func (a *app) serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           a.handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("api server started", zap.Stringer("addr", l.Addr()))
		errCh <- srv.Serve(l)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("api server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *app) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /pokemon", a.handleBrowse)
	mux.HandleFunc("GET /pokemon/{name}", a.handlePokemon)
	mux.HandleFunc("GET /types", func(w http.ResponseWriter, r *http.Request) {
		v, err := a.svc.Types(r.Context())
		a.reply(w, r, v, err)
	})
	mux.HandleFunc("GET /generations", func(w http.ResponseWriter, r *http.Request) {
		v, err := a.svc.Generations(r.Context())
		a.reply(w, r, v, err)
	})
	mux.HandleFunc("GET /suggest", func(w http.ResponseWriter, r *http.Request) {
		v, err := a.svc.Suggest(r.Context(), r.URL.Query().Get("q"))
		a.reply(w, r, v, err)
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.metricsReg, promhttp.HandlerOpts{}))
	return mux
}

func (a *app) handlePokemon(w http.ResponseWriter, r *http.Request) {
	v, err := a.svc.PokemonByName(r.Context(), r.PathValue("name"))
	a.reply(w, r, v, err)
}

func (a *app) handleBrowse(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	page, err := a.svc.Browse(r.Context(), q)
	if err == nil && page.NextOffset != nil {
		a.prefetchNext(q, *page.NextOffset)
	}
	a.reply(w, r, page, err)
}

// prefetchNext builds the following page in the background so paging
// forward is served from the page store.
func (a *app) prefetchNext(q pokeapi.Query, next int) {
	q.Offset = next
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), prefetchTimeout)
		defer cancel()
		if _, err := a.svc.Browse(ctx, q); err != nil {
			a.logger.Debug("prefetch failed", zap.Int("offset", next), zap.Error(err))
		}
	}()
}

func parseQuery(r *http.Request) (pokeapi.Query, error) {
	v := r.URL.Query()
	q := pokeapi.Query{
		Filters: pokeapi.Filters{Type: v.Get("type"), Generation: v.Get("generation")},
		SortKey: pokeapi.SortKey(v.Get("sort")),
		SortDir: pokeapi.SortDirection(v.Get("dir")),
	}
	var err error
	if s := v.Get("offset"); s != "" {
		if q.Offset, err = strconv.Atoi(s); err != nil {
			return q, fmt.Errorf("invalid offset %q", s)
		}
	}
	if s := v.Get("limit"); s != "" {
		if q.Limit, err = strconv.Atoi(s); err != nil {
			return q, fmt.Errorf("invalid limit %q", s)
		}
	}
	return q, nil
}

func (a *app) reply(w http.ResponseWriter, r *http.Request, v interface{}, err error) {
	if err != nil {
		a.writeError(w, r, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("failed to write response", zap.String("path", r.URL.Path), zap.Error(err))
	}
}

func (a *app) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		a.logger.Warn("request failed", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// statusFor maps a service error to the status returned to API callers.
func statusFor(err error) int {
	var clientErr *pokeclient.ClientError
	switch {
	case pokeclient.IsNotFound(err):
		return http.StatusNotFound
	case pokeclient.IsCanceled(err):
		return 499
	case errors.Is(err, pokeclient.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &clientErr):
		if clientErr.Type == pokeclient.ErrorTypeValidation {
			return http.StatusBadRequest
		}
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

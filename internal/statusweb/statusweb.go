// Package statusweb exposes a tiny read-only HTTP surface reporting
// scheduler occupancy, grounded on the teacher's cmd/server/main.go chi
// wiring and internal/api/handler.go health handler. It never gates
// process shutdown and is only started when configured.
package statusweb

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Reporter is the status source, satisfied by webtiles.Manager and
// tv.Manager alike.
type Reporter interface {
	Status() string
}

// Server is a minimal HTTP server serving /healthz and /status.
type Server struct {
	addr string
	srv  *http.Server
}

// New builds a Server bound to addr, reporting wt/tv status if non-nil.
func New(addr string, wt, tv Reporter) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/healthz"))

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		body := struct {
			Webtiles string `json:"webtiles,omitempty"`
			Twitch   string `json:"twitch,omitempty"`
		}{}
		if wt != nil {
			body.Webtiles = wt.Status()
		}
		if tv != nil {
			body.Twitch = tv.Status()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Run starts serving until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

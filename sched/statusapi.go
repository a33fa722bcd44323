package sched

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// serveStatus exposes the daemon state on the configured localhost
// address while the loop runs.
func (d *Daemon) serveStatus(ctx context.Context) (func(), error) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(d.status())
	})
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:              d.config.StatusAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	// Give an immediate bind failure the chance to surface.
	select {
	case err := <-errc:
		return nil, err
	case <-time.After(50 * time.Millisecond):
	}

	d.config.Logger.Info("sched: status listener up", "addr", d.config.StatusAddr)
	return func() {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	}, nil
}

// Package debug serves metrics and the log tail over HTTP for local
// troubleshooting.
package debug

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	logging "github.com/ipfs/go-log/v2"

	"github.com/petervdpas/volmix/internal/logs"
	"github.com/petervdpas/volmix/internal/metrics"
	"github.com/petervdpas/volmix/internal/session"
)

var log = logging.Logger("volmix/debug")

// Deps are the sources the server reads from. Any of them may be nil.
type Deps struct {
	Metrics  *metrics.Metrics
	Logs     *logs.Buffer
	Sessions func() []session.Session
}

// NewRouter builds the debug routes.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}

	if d.Logs != nil {
		r.Route("/api/logs", func(r chi.Router) {
			r.Get("/", d.Logs.ServeJSON)
			r.Get("/stream", d.Logs.ServeSSE)
		})
	}

	if d.Sessions != nil {
		r.Get("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
			ss := d.Sessions()
			if ss == nil {
				ss = []session.Session{}
			}
			writeJSON(w, ss)
		})
	}

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}

// Serve listens on addr until ctx is done. An empty addr disables the
// server and returns immediately.
func Serve(ctx context.Context, addr string, d Deps) error {
	if addr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return serve(ctx, ln, NewRouter(d))
}

func serve(ctx context.Context, ln net.Listener, h http.Handler) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Infof("DEBUG: listening on http://%s", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

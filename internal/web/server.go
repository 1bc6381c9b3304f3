// Package web serves the motion sensor status over HTTP: an HTML page, the
// JSON snapshot and the bare power state for scripts.
package web

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/sweeney/motion-sensor/internal/status"
)

// Snapshotter is the read side of status.Tracker.
type Snapshotter interface {
	Snapshot() status.Snapshot
}

// Server serves the status endpoints.
type Server struct {
	httpServer *http.Server
	src        Snapshotter
}

// New creates a Server on addr reading from src.
func New(addr string, src Snapshotter) *Server {
	s := &Server{src: src}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /index.html", s.handleIndex)
	mux.HandleFunc("GET /index.json", s.handleJSON)
	mux.HandleFunc("GET /state", s.handleState)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           noStore(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// noStore marks every response as live data.
func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, s.src.Snapshot())
}

func (s *Server) handleJSON(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.src.Snapshot()))
}

// handleState writes the power state alone, e.g. "CONNECTED_ACTIVE\n".
func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	snap := s.src.Snapshot()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Boot-Id", snap.BootID)
	io.WriteString(w, string(snap.State)+"\n")
}

package livereload

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Script is the browser client. It swaps <link rel="stylesheet"> elements
// whose path ends with the changed file and falls back to a full reload when
// nothing on the page matches.
const Script = `(() => {
  if (window.__STYLEPIPE_LR__) return;
  window.__STYLEPIPE_LR__ = true;
  const origin = document.currentScript ? new URL(document.currentScript.src).origin : '';
  function swap(path) {
    let swapped = false;
    document.querySelectorAll('link[rel="stylesheet"]').forEach((link) => {
      const url = new URL(link.href, location.href);
      if (!url.pathname.endsWith('/' + path) && url.pathname !== path) return;
      url.searchParams.set('livereload', Date.now().toString());
      const next = link.cloneNode();
      next.href = url.toString();
      next.onload = () => link.remove();
      link.after(next);
      swapped = true;
    });
    return swapped;
  }
  function connect() {
    const es = new EventSource(origin + '/livereload');
    es.onmessage = (e) => {
      try {
        const p = JSON.parse(e.data);
        if (p.path && !swap(p.path)) location.reload();
      } catch (_) {}
    };
    es.onerror = () => { es.close(); setTimeout(connect, 2000); };
  }
  connect();
})();
`

// Server serves the SSE endpoint, the client script and optionally metrics
type Server struct {
	hub     *Hub
	metrics http.Handler
	srv     *http.Server
}

// NewServer wires the hub and an optional metrics handler to addr
func NewServer(addr string, hub *Hub, metrics http.Handler) *Server {
	s := &Server{hub: hub, metrics: metrics}
	// No read/write timeouts: SSE connections are long-lived
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       300 * time.Second,
	}
	return s
}

// Handler returns the routing mux
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/livereload", cors(s.hub))
	mux.HandleFunc("/livereload.js", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		_, _ = w.Write([]byte(Script))
	})
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

// Serve accepts connections on ln until ctx is canceled
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("livereload server: %w", err)
	case <-ctx.Done():
		s.hub.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("livereload shutdown: %w", err)
		}
		return nil
	}
}

// ListenAndServe listens on the configured address and serves until ctx is canceled
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ctx, ln)
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

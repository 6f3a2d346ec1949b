// Package livereload pushes rebuilt stylesheet paths to connected browsers
// over server-sent events.
package livereload

import (
	"bufio"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	charmlog "github.com/charmbracelet/log"

	"github.com/yacobolo/stylepipe/internal/logger"
	"github.com/yacobolo/stylepipe/internal/metrics"
)

// HeartbeatInterval is how often idle connections receive a keep-alive comment
var HeartbeatInterval = 30 * time.Second

// clientBuffer is the number of pending events a client may lag behind
// before it is dropped
const clientBuffer = 16

// Event is the SSE payload sent for each changed stylesheet
type Event struct {
	Path string `json:"path"`
}

// Hub manages SSE clients and fans out change events
type Hub struct {
	mu       sync.RWMutex
	nextID   int
	clients  map[int]*client
	closed   bool
	log      *charmlog.Logger
	recorder metrics.Recorder
}

type client struct {
	id   int
	ch   chan Event
	done chan struct{}
}

// NewHub creates a hub. Nil arguments fall back to a discarding logger and a
// no-op recorder.
func NewHub(log *charmlog.Logger, recorder metrics.Recorder) *Hub {
	if log == nil {
		log = logger.Discard()
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Hub{clients: map[int]*client{}, log: log, recorder: recorder}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP implements the SSE endpoint
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	c := &client{ch: make(chan Event, clientBuffer), done: make(chan struct{})}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "livereload shutting down", http.StatusServiceUnavailable)
		return
	}
	c.id = h.nextID
	h.nextID++
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.recorder.SetLiveReloadClients(n)
	defer h.removeClient(c.id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	bw := bufio.NewWriter(w)
	send := func(s string) bool {
		if _, err := bw.WriteString(s); err != nil {
			h.log.Debug("livereload write", "err", err)
			return false
		}
		if err := bw.Flush(); err != nil {
			h.log.Debug("livereload flush", "err", err)
			return false
		}
		flusher.Flush()
		return true
	}

	if !send(": connected\n\n") {
		return
	}

	hb := time.NewTicker(HeartbeatInterval)
	defer hb.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-c.done:
			return
		case <-hb.C:
			if !send(": ping\n\n") {
				return
			}
		case ev := <-c.ch:
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if !send("data: " + string(data) + "\n\n") {
				return
			}
		}
	}
}

func (h *Hub) removeClient(id int) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		close(c.done)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.recorder.SetLiveReloadClients(n)
	}
}

// Notify broadcasts a changed stylesheet path. Clients whose buffers are full
// are dropped; Notify never blocks.
func (h *Hub) Notify(path string) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	snapshot := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	ev := Event{Path: path}
	dropped := 0
	for _, c := range snapshot {
		select {
		case c.ch <- ev:
		default:
			dropped++
			h.removeClient(c.id)
		}
	}
	h.log.Debug("livereload broadcast", "path", path, "clients", len(snapshot), "dropped", dropped)
}

// Shutdown disconnects all clients and ignores later notifications
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = map[int]*client{}
	h.mu.Unlock()

	for _, c := range clients {
		close(c.done)
	}
	h.recorder.SetLiveReloadClients(0)
}

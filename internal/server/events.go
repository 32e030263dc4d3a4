package server

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"sosinternet/internal/models"
)

const (
	streamBacklog        = 20
	streamBuffer         = 64
	overviewPushInterval = 60 * time.Second
	streamWriteTimeout   = 5 * time.Second
)

var eventsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(strings.TrimSpace(r.Host))
		originHost := strings.ToLower(strings.TrimSpace(u.Host))
		return host == originHost
	},
}

// Hub fans watchdog events out to connected stream clients. It satisfies the
// watchdog sink interface. Slow clients miss events rather than block the loop.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan models.Event]struct{}
	closed bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan models.Event]struct{})}
}

// Emit delivers ev to every subscriber with room in its buffer.
func (h *Hub) Emit(ev models.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a listener. The channel closes when the hub does or
// after the returned cancel func runs.
func (h *Hub) Subscribe() (<-chan models.Event, func()) {
	ch := make(chan models.Event, streamBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
}

// Subscribers reports how many listeners are attached.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

// streamMessage is one websocket frame: either an event or an overview.
type streamMessage struct {
	Type     string            `json:"type"`
	Event    *models.Event     `json:"event,omitempty"`
	Overview *overviewSnapshot `json:"overview,omitempty"`
}

func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := eventsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	events, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()
	s.serveEventStream(conn, events, parseLimit(r, streamBacklog))
}

func (s *Server) serveEventStream(conn *websocket.Conn, events <-chan models.Event, backlog int) {
	defer conn.Close()

	for _, ev := range s.recorder.Events(backlog) {
		if err := writeStreamMessage(conn, streamMessage{Type: "event", Event: &ev}); err != nil {
			return
		}
	}
	if err := s.pushOverview(conn); err != nil {
		return
	}

	ticker := time.NewTicker(overviewPushInterval)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(streamWriteTimeout))
				return
			}
			if err := writeStreamMessage(conn, streamMessage{Type: "event", Event: &ev}); err != nil {
				s.logger.Debug("event stream write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := s.pushOverview(conn); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (s *Server) pushOverview(conn *websocket.Conn) error {
	overview := s.buildOverviewSnapshot()
	return writeStreamMessage(conn, streamMessage{Type: "overview", Overview: &overview})
}

func writeStreamMessage(conn *websocket.Conn, msg streamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return conn.WriteJSON(msg)
}

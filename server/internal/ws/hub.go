package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vizor/fleethealth/pkg/types"
	"github.com/vizor/fleethealth/server/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origins are checked at the reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub streams report events to WebSocket subscribers.
type Hub struct {
	store    *store.Store
	interval time.Duration

	mu   sync.RWMutex
	subs map[*subscriber]struct{}

	// announced is the report set the last report_loaded event described.
	annMu     sync.Mutex
	announced types.Snapshot
}

// New returns a Hub that serves st and re-sends the full snapshot every
// interval.
func New(st *store.Store, interval time.Duration) *Hub {
	return &Hub{
		store:    st,
		interval: interval,
		subs:     make(map[*subscriber]struct{}),
	}
}

// Notify publishes a report_loaded event describing how e differs from the
// report set announced before. A reload that changed nothing publishes
// nothing. Safe to call from a store listener.
func (h *Hub) Notify(e *store.Entry) {
	h.annMu.Lock()
	ev := diffReports(h.announced, e)
	h.announced = e.Snapshot
	h.annMu.Unlock()

	if ev.Empty() {
		return
	}
	slog.Debug("ws: report loaded", "changed", len(ev.Changed), "removed", len(ev.Removed))
	h.publish(Envelope{Event: EventReportLoaded, Data: ev})
}

// Run re-sends the snapshot every interval until ctx is cancelled, then
// disconnects every subscriber.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			h.dropAll()
			return
		case <-t.C:
			h.publish(snapshotEnvelope(h.store))
		}
	}
}

// ServeHTTP upgrades the request and streams events until the peer goes
// away. The current snapshot is the first frame.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s := newSubscriber(conn)
	// Queued before joining so no published event can overtake it.
	if frame, err := json.Marshal(snapshotEnvelope(h.store)); err == nil {
		s.out <- frame
	}
	h.join(s)
	defer h.leave(s)

	go s.writeLoop()
	s.readLoop()
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) join(s *subscriber) {
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) leave(s *subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.out)
	}
	h.mu.Unlock()
}

// publish queues env on every subscriber. A subscriber whose queue is full
// is disconnected.
func (h *Hub) publish(env Envelope) {
	frame, err := json.Marshal(env)
	if err != nil {
		slog.Error("ws: encode event", "event", env.Event, "err", err)
		return
	}

	var lagging []*subscriber
	h.mu.RLock()
	for s := range h.subs {
		if !s.offer(frame) {
			lagging = append(lagging, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range lagging {
		slog.Warn("ws: dropping lagging subscriber", "remote", s.conn.RemoteAddr().String())
		h.leave(s)
	}
}

func (h *Hub) dropAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		close(s.out)
		delete(h.subs, s)
	}
}

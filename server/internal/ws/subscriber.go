package ws

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingEvery    = pongWait * 9 / 10

	// queueDepth bounds the frames waiting for a slow subscriber.
	queueDepth = 16

	// Subscribers only send control frames.
	maxInbound = 512
)

// subscriber is one connected client. out is closed by the hub when the
// subscriber leaves.
type subscriber struct {
	conn *websocket.Conn
	out  chan []byte
}

func newSubscriber(conn *websocket.Conn) *subscriber {
	return &subscriber{conn: conn, out: make(chan []byte, queueDepth)}
}

// offer queues frame without blocking and reports whether it fit.
func (s *subscriber) offer(frame []byte) bool {
	select {
	case s.out <- frame:
		return true
	default:
		return false
	}
}

func (s *subscriber) write(kind int, data []byte) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(kind, data)
}

// writeLoop forwards queued frames and keeps the connection alive with
// pings. It sends a close frame once out is closed.
func (s *subscriber) writeLoop() {
	ping := time.NewTicker(pingEvery)
	defer func() {
		ping.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.out:
			if !ok {
				s.write(websocket.CloseMessage, nil) //nolint:errcheck
				return
			}
			if err := s.write(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ping.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop consumes control frames until the peer disconnects or stops
// answering pings.
func (s *subscriber) readLoop() {
	defer s.conn.Close()
	s.conn.SetReadLimit(maxInbound)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

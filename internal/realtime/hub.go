package realtime

import (
	"encoding/json"

	"github.com/sirupsen/logrus"
)

// Conn is the slice of a websocket connection the hub needs. The fiber
// handler passes the real connection; tests pass a fake.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

const textMessage = 1

// How many frames a single client may fall behind before it is dropped.
const sessionBuffer = 32

type Session struct {
	conn Conn
	send chan []byte
}

// Hub fans committed-mutation events out to every connected client. It is
// created once at process start and injected into the handlers that emit
// events. A single dispatch goroutine (Run) owns the session set; all
// connect/disconnect/broadcast traffic flows through its channels, so no
// lock is needed.
//
// Delivery is fire-and-forget: a client that is disconnected, or that
// cannot keep up, simply misses events and reconciles with a full refetch
// on reconnect.
type Hub struct {
	log *logrus.Logger

	register   chan *Session
	unregister chan *Session
	broadcast  chan []byte
	stop       chan struct{}
}

func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		log:        log,
		register:   make(chan *Session),
		unregister: make(chan *Session),
		broadcast:  make(chan []byte, 64),
		stop:       make(chan struct{}),
	}
}

// Run is the dispatch loop. Start it once, as a goroutine, before the HTTP
// server begins accepting connections.
func (h *Hub) Run() {
	sessions := make(map[*Session]struct{})

	for {
		select {
		case s := <-h.register:
			sessions[s] = struct{}{}
			go s.writeLoop()
			h.log.WithField("clients", len(sessions)).Info("websocket client connected")

		case s := <-h.unregister:
			if _, ok := sessions[s]; ok {
				delete(sessions, s)
				close(s.send)
			}
			h.log.WithField("clients", len(sessions)).Info("websocket client disconnected")

		case msg := <-h.broadcast:
			for s := range sessions {
				select {
				case s.send <- msg:
				default:
					// Client too slow; drop it rather than stall the loop.
					delete(sessions, s)
					close(s.send)
					h.log.Warn("dropping slow websocket client")
				}
			}

		case <-h.stop:
			for s := range sessions {
				delete(sessions, s)
				close(s.send)
			}
			return
		}
	}
}

// Broadcast queues one event for delivery to all connected clients. It never
// blocks the caller: if the hub's queue is full the event is dropped.
func (h *Hub) Broadcast(e Event) {
	msg, err := json.Marshal(e)
	if err != nil {
		h.log.WithField("event", e.Name).WithError(err).Error("event marshal failed")
		return
	}

	select {
	case h.broadcast <- msg:
	default:
		h.log.WithField("event", e.Name).Warn("broadcast queue full, event dropped")
	}
}

func (h *Hub) Stop() {
	close(h.stop)
}

// Attach hands a new connection to the dispatch loop and returns its
// session. The caller owns the read side; call Detach when the read loop
// exits.
func (h *Hub) Attach(c Conn) *Session {
	s := &Session{conn: c, send: make(chan []byte, sessionBuffer)}
	h.register <- s
	return s
}

func (h *Hub) Detach(s *Session) {
	h.unregister <- s
}

func (s *Session) writeLoop() {
	defer s.conn.Close()
	for msg := range s.send {
		if err := s.conn.WriteMessage(textMessage, msg); err != nil {
			return
		}
	}
}

package broadcast

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Auth happens upstream; the coordinator trusts its callers.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsListener adapts one websocket connection to the Listener interface.
// Writes go through a buffered channel drained by a single write pump.
type wsListener struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

func (l *wsListener) ID() string { return l.id }

func (l *wsListener) Send(data []byte) error {
	select {
	case l.send <- data:
		return nil
	default:
		return websocket.ErrCloseSent
	}
}

func (l *wsListener) writePump(done func()) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		l.conn.Close()
		done()
	}()
	for {
		select {
		case data, ok := <-l.send:
			l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				l.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Handler upgrades HTTP requests to websocket listeners and joins them to
// the group named by the "group" query parameter.
func Handler(hub *Hub, log *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		groupID := r.URL.Query().Get("group")
		if groupID == "" {
			http.Error(w, "missing group", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		l := &wsListener{
			id:   uuid.NewString(),
			conn: conn,
			send: make(chan []byte, sendBufferSize),
		}
		hub.Join(groupID, l)
		log.Info("listener joined",
			zap.String("group_id", groupID), zap.String("listener_id", l.id))

		go l.writePump(func() {
			hub.Leave(groupID, l.id)
			log.Info("listener left",
				zap.String("group_id", groupID), zap.String("listener_id", l.id))
		})

		// Read pump only services control frames; inbound data is ignored.
		go func() {
			defer close(l.send)
			conn.SetReadLimit(512)
			conn.SetReadDeadline(time.Now().Add(pongWait))
			conn.SetPongHandler(func(string) error {
				conn.SetReadDeadline(time.Now().Add(pongWait))
				return nil
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})
}

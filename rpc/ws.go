package rpc

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ndidplatform/idp-agent/notify"
	"github.com/ndidplatform/idp-agent/proto"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin is enforced by the CORS layer; the socket itself carries
	// no credentials.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const wsWriteTimeout = 10 * time.Second

// wsEvent is the frame pushed for each newly arrived request.
type wsEvent struct {
	Type    string            `json:"type"`
	Request proto.AuthRequest `json:"request"`
}

type wsSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

var _ notify.Session = (*wsSession)(nil)

func (s *wsSession) Send(req proto.AuthRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteJSON(wsEvent{Type: "newRequest", Request: req})
}

func (s *wsSession) Close() error {
	return s.conn.Close()
}

// serveWS upgrades the connection and installs it as the active push
// session. A newly connected client supersedes the previous one.
func (s *RPC) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Warn().Err(err).Msg("ws: upgrade failed")
		return
	}

	session := &wsSession{conn: conn}
	s.Channel.Attach(session)
	s.Log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("ws: session attached")

	// Inbound frames are ignored; the read loop only notices the peer
	// going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.Channel.Detach(session)
	_ = conn.Close()
	s.Log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("ws: session detached")
}

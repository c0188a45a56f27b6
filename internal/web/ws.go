package web

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/raine/listing-studio/internal/listing"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// The default origin check applies: the page is served from the same host.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// wsMessage is pushed to the browser. "state" carries a platform view on
// connect and after a session change, "copy" the current confirmations and
// toast.
type wsMessage struct {
	Type     string           `json:"type"`
	Platform listing.Platform `json:"platform,omitempty"`
	View     *platformView    `json:"view,omitempty"`
	Copied   []string         `json:"copied,omitempty"`
	Toast    string           `json:"toast,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, unsubscribe := s.workspace.Subscribe()
	defer unsubscribe()
	copies, unsubscribeCopies := s.subscribeCopy()
	defer unsubscribeCopies()

	// The reader only drains control frames and notices the close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug().Err(err).Msg("websocket closed unexpectedly")
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	send := func(msg wsMessage) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			log.Debug().Err(err).Msg("websocket write failed")
			return false
		}
		return true
	}

	// Current state first, so a page rendered before a change it missed reloads
	for _, p := range listing.Platforms() {
		view, err := s.platformView(p)
		if err != nil {
			log.Warn().Err(err).Msg("failed to build platform view")
			return
		}
		if !send(wsMessage{Type: "state", Platform: p, View: &view}) {
			return
		}
	}

	for {
		select {
		case <-closed:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			view, err := s.platformView(ev.Platform)
			if err != nil {
				log.Warn().Err(err).Msg("failed to build platform view")
				continue
			}
			if !send(wsMessage{Type: "state", Platform: ev.Platform, View: &view}) {
				return
			}
		case <-copies:
			if !send(wsMessage{Type: "copy", Copied: s.copier.ConfirmedIDs(), Toast: s.copier.Toast()}) {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

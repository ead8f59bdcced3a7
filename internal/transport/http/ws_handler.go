package http

import (
	"net/http"
	"time"

	"trivia-quiz-service/internal/app"
	"trivia-quiz-service/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// WSHandler streams leaderboard snapshots over a websocket.
type WSHandler struct {
	leaderboard *app.LeaderboardService
	upgrader    websocket.Upgrader
}

func NewWSHandler(leaderboard *app.LeaderboardService) *WSHandler {
	return &WSHandler{
		leaderboard: leaderboard,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS upgrades the request and pushes a leaderboard message after every completed
// session. When the caller is identified their rank is attached to each snapshot. The feed
// is read-only; inbound frames are drained only to notice the peer going away.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())

	updates, cancel, err := h.leaderboard.Subscribe(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case lb, ok := <-updates:
			if !ok {
				return
			}
			if id.UserID != "" {
				lb = h.withUserRank(r, lb, id.UserID)
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(outboundMessage[domain.Leaderboard]{Type: "leaderboard", Payload: lb}); err != nil {
				log.Debug().Err(err).Msg("ws write error")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readerDone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (h *WSHandler) withUserRank(r *http.Request, lb domain.Leaderboard, userID string) domain.Leaderboard {
	ranked, err := h.leaderboard.GetLeaderboard(r.Context(), userID)
	if err != nil {
		return lb
	}
	lb.UserRank = ranked.UserRank
	return lb
}

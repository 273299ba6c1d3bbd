package websocket

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxCommandSize = 4 << 10
)

// Handler upgrades GET /ws and streams hub events as JSON text frames.
type Handler struct {
	hub      *Hub
	upgrader gorillawebsocket.Upgrader
}

// NewHandler accepts browser connections only from allowedOrigins; "*"
// allows any origin and requests without an Origin header always pass.
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	anyOrigin := lo.Contains(allowedOrigins, "*")
	return &Handler{
		hub: hub,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get(echo.HeaderOrigin)
				return origin == "" || anyOrigin || lo.Contains(allowedOrigins, origin)
			},
		},
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", h.connect)
}

// connect follows the comma-separated ?topics= list, then serves the
// connection until either side goes away.
func (h *Handler) connect(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the error response.
		return nil
	}

	sub := h.hub.Join(splitTopics(c.QueryParam("topics"))...)
	h.hub.logger.Debug().Str("subscriber", sub.ID).Strs("topics", sub.Topics()).Msg("subscriber connected")

	go h.write(sub, conn)
	go h.read(sub, conn)
	return nil
}

func splitTopics(raw string) []string {
	return lo.Compact(lo.Map(strings.Split(raw, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	}))
}

// read applies control commands and keeps the read deadline alive on pongs.
// Leaving the hub closes the outbox, which stops write.
func (h *Handler) read(sub *Subscriber, conn *gorillawebsocket.Conn) {
	defer h.hub.Leave(sub)

	conn.SetReadLimit(maxCommandSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var cmd Command
		if err := conn.ReadJSON(&cmd); err != nil {
			if isMalformed(err) {
				continue
			}
			h.hub.logger.Debug().Err(err).Str("subscriber", sub.ID).Msg("subscriber disconnected")
			return
		}
		sub.Apply(cmd)
	}
}

// isMalformed reports a frame that arrived intact but did not decode as a
// Command.
func isMalformed(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF)
}

func (h *Handler) write(sub *Subscriber, conn *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case ev, ok := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package websocket

import (
	"time"

	"github.com/gofiber/websocket/v2"

	"loan-intake-be/internal/entity"
	"loan-intake-be/internal/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client bridges one session's event channel to a websocket connection. At
// most one client is active per session; the stream's takeover policy closes
// the previous one when a new connection arrives.
type Client struct {
	Conn      *websocket.Conn
	SessionID string
	Events    <-chan entity.Event

	release func()
	logger  logger.ILogger
}

func NewClient(conn *websocket.Conn, sessionID string, events <-chan entity.Event, release func(), log logger.ILogger) *Client {
	return &Client{
		Conn:      conn,
		SessionID: sessionID,
		Events:    events,
		release:   release,
		logger:    log,
	}
}

// writePump forwards events to the connection in sequence order, pinging to
// keep the peer alive. It returns when the event channel closes (terminal
// event or takeover) or the peer goes away.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.release()
		c.Conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.Events:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(ev); err != nil {
				c.logger.Warn("Stream", "Write failed, dropping subscriber", map[string]interface{}{
					"session_id": c.SessionID,
					"error":      err.Error(),
				})
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the connection so close frames and pongs are processed.
func (c *Client) readPump() {
	defer func() {
		c.release()
		c.Conn.Close()
	}()
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			return
		}
	}
}

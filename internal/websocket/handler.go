package websocket

import (
	"context"

	"github.com/gofiber/websocket/v2"

	"loan-intake-be/internal/pkg/logger"
	"loan-intake-be/internal/stream"
)

// ServeStream attaches a websocket connection as the session's subscriber and
// pumps events until terminal. Runs on the connection's goroutine.
func ServeStream(events *stream.Stream, conn *websocket.Conn, sessionID string, log logger.ILogger) {
	ch, release, err := events.Subscribe(context.Background(), sessionID)
	if err != nil {
		log.Error("Stream", "Subscribe failed", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
		conn.Close()
		return
	}

	client := NewClient(conn, sessionID, ch, release, log)
	go client.writePump()
	client.readPump()
}

package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/best07008/kujibiki/internal/models"
	"github.com/best07008/kujibiki/internal/services"
	"github.com/best07008/kujibiki/internal/ws"
)

// streamBuffer bounds how far a slow client may fall behind before events
// are dropped for it; broadcasts must never block on one subscriber.
const streamBuffer = 16

type StreamHandler struct {
	manager *services.SessionManager
	hub     *ws.Hub
}

func NewStreamHandler(manager *services.SessionManager, hub *ws.Hub) *StreamHandler {
	return &StreamHandler{manager: manager, hub: hub}
}

// HandleStream godoc
// @Summary      Server-sent event stream for a session
// @Description  Replays the current session state, then forwards every broadcast
// @Description  until the client disconnects
// @Tags         stream
// @Produce      text/event-stream
// @Param        id path string true "Session ID"
// @Success      200
// @Failure      404 {object} ErrorResponse
// @Router       /session/{id}/stream [get]
func (h *StreamHandler) HandleStream(c *gin.Context) {
	sessionID := c.Param("id")
	snapshot, ok := h.manager.GetSession(c.Request.Context(), sessionID)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	initial, err := initialStateEvent(snapshot)
	if err != nil {
		log.Printf("stream: marshal initial state for session %s: %v", sessionID, err)
		c.Status(http.StatusInternalServerError)
		return
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", initial)
	c.Writer.Flush()

	events := make(chan []byte, streamBuffer)
	unsubscribe := h.hub.Subscribe(sessionID, func(message []byte) {
		select {
		case events <- message:
		default:
			log.Printf("stream: client on session %s too slow, dropping event", sessionID)
		}
	})
	defer unsubscribe()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case message := <-events:
			fmt.Fprintf(c.Writer, "data: %s\n\n", message)
			c.Writer.Flush()
		}
	}
}

// initialStateEvent builds the synthetic session-state event sent on connect.
// The per-participant result fields carry any assigned labels; the aggregate
// results map is left to the session-started broadcast and GET responses.
func initialStateEvent(snapshot *models.SessionSnapshot) ([]byte, error) {
	state := *snapshot
	state.Results = nil
	return json.Marshal(ws.Event{
		Event:     services.EventSessionState,
		Data:      &state,
		Timestamp: time.Now().UTC(),
	})
}

package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/best07008/kujibiki/internal/services"
	"github.com/best07008/kujibiki/internal/ws"
)

type WSHandler struct {
	manager *services.SessionManager
	hub     *ws.Hub
}

func NewWSHandler(manager *services.SessionManager, hub *ws.Hub) *WSHandler {
	return &WSHandler{manager: manager, hub: hub}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWebSocket godoc
// @Summary      WebSocket stream for a session
// @Description  Same event feed as the SSE stream, over a websocket
// @Tags         stream
// @Param        id path string true "Session ID"
// @Router       /ws/session/{id} [get]
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	sessionID := c.Param("id")
	snapshot, ok := h.manager.GetSession(c.Request.Context(), sessionID)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws: upgrade error: %v", err)
		return
	}
	defer conn.Close()

	// Subscriber callbacks run on the broadcast goroutine while the read
	// loop runs here; gorilla conns allow one concurrent writer.
	var writeMu sync.Mutex
	write := func(message []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteMessage(websocket.TextMessage, message)
	}

	state := *snapshot
	state.Results = nil
	initial, err := json.Marshal(ws.Event{
		Event:     services.EventSessionState,
		Data:      &state,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		log.Printf("ws: marshal initial state for session %s: %v", sessionID, err)
		return
	}
	if err := write(initial); err != nil {
		return
	}

	unsubscribe := h.hub.Subscribe(sessionID, func(message []byte) {
		if err := write(message); err != nil {
			log.Printf("ws: write error on session %s: %v", sessionID, err)
		}
	})
	defer unsubscribe()
	log.Printf("ws: client connected to session %s", sessionID)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	log.Printf("ws: client disconnected from session %s", sessionID)
}

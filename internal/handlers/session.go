package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/best07008/kujibiki/internal/services"
)

type SessionHandler struct {
	manager *services.SessionManager
}

func NewSessionHandler(manager *services.SessionManager) *SessionHandler {
	return &SessionHandler{manager: manager}
}

type CreateSessionRequest struct {
	ParticipantCount int    `json:"participantCount" example:"5"`
	Title            string `json:"title" example:"Office lottery"`
}

type CreateSessionResponse struct {
	SessionID string `json:"sessionId" example:"K3X9A2"`
}

// CreateSession godoc
// @Summary      Create a draw session
// @Description  Create a new session with a fixed number of participant positions
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Param        request body CreateSessionRequest true "Session data"
// @Success      200 {object} CreateSessionResponse
// @Failure      400 {object} ErrorResponse
// @Router       /session/create [post]
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	sessionID, err := h.manager.CreateSession(c.Request.Context(), req.ParticipantCount, strings.TrimSpace(req.Title))
	if err != nil {
		if errors.Is(err, services.ErrInvalidParticipantCount) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid participant count"})
			return
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, CreateSessionResponse{SessionID: sessionID})
}

// GetSession godoc
// @Summary      Get session state
// @Description  Get the current snapshot of a session, including results once started
// @Tags         sessions
// @Produce      json
// @Param        id path string true "Session ID"
// @Success      200 {object} models.SessionSnapshot
// @Failure      404 {object} ErrorResponse
// @Router       /session/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	snapshot, ok := h.manager.GetSession(c.Request.Context(), c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

type JoinSessionRequest struct {
	Name     string `json:"name" example:"Alice"`
	Position int    `json:"position" example:"3"`
}

type JoinSessionResponse struct {
	ParticipantID string `json:"participantId"`
}

// JoinSession godoc
// @Summary      Join a session
// @Description  Claim a free position in a forming session
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Param        id path string true "Session ID"
// @Param        request body JoinSessionRequest true "Participant data"
// @Success      200 {object} JoinSessionResponse
// @Failure      400 {object} ErrorResponse
// @Router       /session/{id}/join [post]
func (h *SessionHandler) JoinSession(c *gin.Context) {
	var req JoinSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid name"})
		return
	}

	participantID, joinErr := h.manager.JoinSession(c.Request.Context(), c.Param("id"), name, req.Position)
	if joinErr != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: joinErr.Message, Code: joinErr.Code})
		return
	}

	c.JSON(http.StatusOK, JoinSessionResponse{ParticipantID: participantID})
}

type ReadyRequest struct {
	ParticipantID string `json:"participantId"`
}

// MarkReady godoc
// @Summary      Mark a participant ready
// @Description  Flag a participant as ready; idempotent
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Param        id path string true "Session ID"
// @Param        request body ReadyRequest true "Participant id"
// @Success      200 {object} SuccessResponse
// @Failure      400 {object} ErrorResponse
// @Router       /session/{id}/ready [post]
func (h *SessionHandler) MarkReady(c *gin.Context) {
	var req ReadyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ParticipantID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing participantId"})
		return
	}

	if !h.manager.MarkParticipantReady(c.Request.Context(), c.Param("id"), req.ParticipantID) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "failed to mark as ready"})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// StartSession godoc
// @Summary      Start the draw
// @Description  Assign shuffled labels to participants; requires a full, all-ready session
// @Tags         sessions
// @Produce      json
// @Param        id path string true "Session ID"
// @Success      200 {object} SuccessResponse
// @Failure      400 {object} ErrorResponse
// @Router       /session/{id}/start [post]
func (h *SessionHandler) StartSession(c *gin.Context) {
	if !h.manager.StartSession(c.Request.Context(), c.Param("id")) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot start session: not all participants are ready"})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

type HeartbeatResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId"`
	Timestamp string `json:"timestamp"`
}

// Heartbeat godoc
// @Summary      Keep a session alive
// @Description  Refresh the session's activity timestamp. Always returns 200 so
// @Description  clients never enter retry loops over a missing session.
// @Tags         sessions
// @Produce      json
// @Param        id path string true "Session ID"
// @Success      200 {object} HeartbeatResponse
// @Router       /session/{id}/heartbeat [post]
func (h *SessionHandler) Heartbeat(c *gin.Context) {
	sessionID := c.Param("id")
	touchedAt, ok := h.manager.Heartbeat(c.Request.Context(), sessionID)
	if !ok {
		touchedAt = time.Now()
	}

	c.JSON(http.StatusOK, HeartbeatResponse{
		Success:   ok,
		SessionID: sessionID,
		Timestamp: touchedAt.UTC().Format(time.RFC3339Nano),
	})
}

// DeleteSession godoc
// @Summary      Delete a session
// @Description  Remove a session from the registry and every backing store
// @Tags         sessions
// @Produce      json
// @Param        id path string true "Session ID"
// @Success      200 {object} SuccessResponse
// @Failure      404 {object} ErrorResponse
// @Router       /session/{id} [delete]
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	if !h.manager.DeleteSession(c.Request.Context(), c.Param("id")) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

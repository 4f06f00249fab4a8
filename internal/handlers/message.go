package handlers

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/huangang/projecthub/internal/middleware"
	"github.com/huangang/projecthub/internal/services"
	"github.com/huangang/projecthub/pkg/logger"
	"github.com/huangang/projecthub/pkg/response"
)

type MessageHandler struct {
	messageService *services.MessageService
}

func NewMessageHandler(messageService *services.MessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

// List returns a project's board, oldest first
// GET /api/projects/:id/messages
func (h *MessageHandler) List(c *gin.Context) {
	messages, err := h.messageService.List(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, messages)
}

// Post adds a message to a project's board
// POST /api/projects/:id/messages
func (h *MessageHandler) Post(c *gin.Context) {
	var req services.PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	msg, err := h.messageService.Post(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Created(c, msg)
}

// Stream pushes newly posted messages as Server-Sent Events
// GET /api/projects/:id/messages/stream
func (h *MessageHandler) Stream(c *gin.Context) {
	projectID := c.Param("id")
	clientID := uuid.New().String()

	events, err := h.messageService.Subscribe(c.Request.Context(), middleware.GetUserID(c), projectID, clientID)
	if err != nil {
		respondError(c, err)
		return
	}
	defer h.messageService.Unsubscribe(clientID)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	log := logger.FromGin(c).With().Str("client_id", clientID).Str("project_id", projectID).Logger()
	log.Info().Msg("message stream connected")

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			data, err := json.Marshal(event)
			if err != nil {
				log.Error().Err(err).Msg("message stream marshal error")
				return true
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
			c.Writer.Flush()
			return true
		case <-c.Request.Context().Done():
			log.Info().Msg("message stream disconnected")
			return false
		}
	})
}

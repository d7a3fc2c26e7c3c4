package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"fleetops/internal/domain"
	"fleetops/internal/service"
)

// ChatHandler handles HTTP requests for chat messages.
type ChatHandler struct {
	chatService    *service.ChatService
	maxUploadBytes int64
}

// NewChatHandler creates a new ChatHandler. maxUploadBytes bounds the
// request body of a send; zero disables the limit.
func NewChatHandler(chatService *service.ChatService, maxUploadBytes int64) *ChatHandler {
	return &ChatHandler{chatService: chatService, maxUploadBytes: maxUploadBytes}
}

// SendMessageRequest is the JSON body for a text-only message. Messages with
// an image are sent as multipart/form-data with the same field names and the
// file under "image".
type SendMessageRequest struct {
	RecipientID string  `json:"recipient_id" form:"recipient_id"`
	TripID      *string `json:"trip_id,omitempty" form:"trip_id"`
	Text        *string `json:"text,omitempty" form:"text"`
}

// AttachmentResponse is a stored image reference.
type AttachmentResponse struct {
	URL      string `json:"url"`
	MIMEType string `json:"mime_type"`
	Size     int64  `json:"size,omitempty"`
}

// ChatMessageResponse is the HTTP response for a chat message.
type ChatMessageResponse struct {
	ID            string              `json:"id"`
	SenderID      string              `json:"sender_id"`
	SenderRole    string              `json:"sender_role"`
	RecipientID   string              `json:"recipient_id"`
	RecipientRole string              `json:"recipient_role"`
	TripID        *string             `json:"trip_id,omitempty"`
	Text          *string             `json:"text,omitempty"`
	Attachment    *AttachmentResponse `json:"attachment,omitempty"`
	Status        string              `json:"status"`
	CreatedAt     string              `json:"created_at"`
	UpdatedAt     string              `json:"updated_at"`
}

// SendMessageResponse returns the stored message with the refreshed
// conversation.
type SendMessageResponse struct {
	Message      ChatMessageResponse   `json:"message"`
	Conversation []ChatMessageResponse `json:"conversation"`
}

func toChatMessageResponse(m *domain.ChatMessage) ChatMessageResponse {
	resp := ChatMessageResponse{
		ID:            m.ID,
		SenderID:      m.SenderID,
		SenderRole:    string(m.SenderRole),
		RecipientID:   m.RecipientID,
		RecipientRole: string(m.RecipientRole),
		TripID:        m.TripID,
		Text:          m.Text,
		Status:        string(m.Status),
		CreatedAt:     formatTime(m.CreatedAt),
		UpdatedAt:     formatTime(m.UpdatedAt),
	}
	if a := m.Attachment; a != nil {
		resp.Attachment = &AttachmentResponse{URL: a.URL, MIMEType: a.MIMEType, Size: a.Size}
	}
	return resp
}

func toChatMessageResponses(msgs []*domain.ChatMessage) []ChatMessageResponse {
	out := make([]ChatMessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toChatMessageResponse(m))
	}
	return out
}

// SendMessage handles POST /v1/chat/messages
func (h *ChatHandler) SendMessage(c *gin.Context) {
	id, ok := currentUser(c)
	if !ok {
		return
	}

	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	var (
		req   SendMessageRequest
		image io.Reader
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBind(&req); err != nil {
			h.badBody(c, err)
			return
		}
		fh, err := c.FormFile("image")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			h.badBody(c, err)
			return
		default:
			f, err := fh.Open()
			if err != nil {
				h.badBody(c, err)
				return
			}
			defer f.Close()
			image = f
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		h.badBody(c, err)
		return
	}

	if req.TripID != nil && *req.TripID == "" {
		req.TripID = nil
	}

	res, err := h.chatService.SendMessage(c.Request.Context(), service.SendMessageRequest{
		Sender:      id,
		RecipientID: req.RecipientID,
		TripID:      req.TripID,
		Text:        req.Text,
		Image:       image,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, SendMessageResponse{
		Message:      toChatMessageResponse(res.Message),
		Conversation: toChatMessageResponses(res.Conversation),
	})
}

// ListMessages handles GET /v1/chat/messages?with=<user id>&limit=<n>
func (h *ChatHandler) ListMessages(c *gin.Context) {
	id, ok := currentUser(c)
	if !ok {
		return
	}

	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}

	msgs, err := h.chatService.Conversation(c.Request.Context(), id, c.Query("with"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"messages": toChatMessageResponses(msgs)})
}

// MarkRead handles POST /v1/chat/messages/:id/read
func (h *ChatHandler) MarkRead(c *gin.Context) {
	id, ok := currentUser(c)
	if !ok {
		return
	}

	msg, err := h.chatService.MarkRead(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toChatMessageResponse(msg))
}

// DeleteMessage handles DELETE /v1/chat/messages/:id
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	id, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.chatService.DeleteMessage(c.Request.Context(), id, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ChatHandler) badBody(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "request body too large"})
		return
	}
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
}

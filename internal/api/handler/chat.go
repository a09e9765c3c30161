package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/eliamaps/elia/internal/api/middleware"
	"github.com/eliamaps/elia/internal/api/response"
	"github.com/eliamaps/elia/internal/domain"
	"github.com/eliamaps/elia/internal/service"
)

// ChatHandler handles chat endpoints
type ChatHandler struct {
	chatService *service.ChatService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Chat handles one conversational turn
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req domain.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	if err := validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	result, err := h.chatService.HandleTurn(r.Context(), userID, req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAccessDenied):
			response.Forbidden(w, err.Error())
		case errors.Is(err, domain.ErrHistoryPersistence):
			response.InternalError(w, "failed to record the conversation, please retry")
		default:
			response.InternalError(w, err.Error())
		}
		return
	}

	response.OK(w, result)
}

// Suggestions returns the user's most frequent prior questions
func (h *ChatHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	suggestions, err := h.chatService.SuggestedQuestions(r.Context(), userID)
	if err != nil {
		response.InternalError(w, err.Error())
		return
	}

	response.OK(w, map[string]any{"suggestions": suggestions})
}

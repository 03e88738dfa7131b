package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/ShopPipe/internal/chat"
	"github.com/BTreeMap/ShopPipe/internal/models"
	"github.com/BTreeMap/ShopPipe/internal/store"
)

// startConversationHandler handles POST /api/chat/conversations
func (s *Server) startConversationHandler(w http.ResponseWriter, r *http.Request) {
	var req models.StartConversationRequest
	if !decodeRequest(w, r, "startConversationHandler", &req) {
		return
	}
	started, err := s.chat.StartConversation(r.Context(), req)
	if errors.Is(err, store.ErrStoreNotFound) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Store not found"))
		return
	}
	if err != nil {
		slog.Error("Server.startConversationHandler: start failed", "error", err, "store_id", req.StoreID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to start conversation"))
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.Success(started))
}

// postMessageHandler handles POST /api/chat/conversations/{id}/messages
func (s *Server) postMessageHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.ChatMessageRequest
	if !decodeRequest(w, r, "postMessageHandler", &req) {
		return
	}

	reply, err := s.chat.HandleMessage(r.Context(), id, req)
	switch {
	case errors.Is(err, store.ErrConversationNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error("Conversation not found"))
		return
	case errors.Is(err, chat.ErrDuplicateMessage):
		writeJSONResponse(w, http.StatusConflict, models.Error("Message already received"))
		return
	case err != nil:
		slog.Error("Server.postMessageHandler: handling failed", "error", err, "conversation_id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(reply))
}

// listMessagesHandler handles GET /api/chat/conversations/{id}/messages
func (s *Server) listMessagesHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	conv, err := s.st.GetConversation(id)
	if err != nil {
		slog.Error("Server.listMessagesHandler: load conversation failed", "error", err, "conversation_id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load conversation"))
		return
	}
	if conv == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Conversation not found"))
		return
	}
	msgs, err := s.st.ListMessages(id)
	if err != nil {
		slog.Error("Server.listMessagesHandler: list failed", "error", err, "conversation_id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list messages"))
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(msgs))
}

package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BTreeMap/ShopPipe/internal/models"
	"github.com/BTreeMap/ShopPipe/internal/store"
	"github.com/BTreeMap/ShopPipe/internal/tone"
)

// createStoreHandler handles POST /api/stores
func (s *Server) createStoreHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateStoreRequest
	if !decodeRequest(w, r, "createStoreHandler", &req) {
		return
	}
	created, err := s.st.CreateStore(models.Store{
		Name:   strings.TrimSpace(req.Name),
		Domain: strings.ToLower(strings.TrimSpace(req.Domain)),
	})
	if err != nil {
		slog.Error("Server.createStoreHandler: create failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create store"))
		return
	}
	slog.Info("Server.createStoreHandler: store created", "store_id", created.ID, "domain", created.Domain)
	writeJSONResponse(w, http.StatusCreated, models.Success(created))
}

// listStoresHandler handles GET /api/stores
func (s *Server) listStoresHandler(w http.ResponseWriter, r *http.Request) {
	stores, err := s.st.ListStores()
	if err != nil {
		slog.Error("Server.listStoresHandler: list failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list stores"))
		return
	}
	if stores == nil {
		stores = []models.Store{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(stores))
}

// requireStore loads the {storeID} store and writes a 404 when it is missing.
func (s *Server) requireStore(w http.ResponseWriter, r *http.Request, handler string) (*models.Store, bool) {
	storeID, ok := pathID(w, r, "storeID")
	if !ok {
		return nil, false
	}
	st, err := s.st.GetStore(storeID)
	if err != nil {
		slog.Error("Server."+handler+": load store failed", "error", err, "store_id", storeID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load store"))
		return nil, false
	}
	if st == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Store not found"))
		return nil, false
	}
	return st, true
}

// getChatSettingsHandler handles GET /api/stores/{storeID}/chat-settings
func (s *Server) getChatSettingsHandler(w http.ResponseWriter, r *http.Request) {
	st, ok := s.requireStore(w, r, "getChatSettingsHandler")
	if !ok {
		return
	}
	cs, err := s.st.GetChatSettings(st.ID)
	if err != nil {
		slog.Error("Server.getChatSettingsHandler: load failed", "error", err, "store_id", st.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load chat settings"))
		return
	}
	if cs == nil {
		defaults := models.DefaultChatSettings(st.ID)
		cs = &defaults
	}
	writeJSONResponse(w, http.StatusOK, models.Success(cs))
}

// saveChatSettingsHandler handles PUT /api/stores/{storeID}/chat-settings
func (s *Server) saveChatSettingsHandler(w http.ResponseWriter, r *http.Request) {
	storeID, ok := pathID(w, r, "storeID")
	if !ok {
		return
	}
	var req models.ChatSettingsRequest
	if !decodeRequest(w, r, "saveChatSettingsHandler", &req) {
		return
	}
	cs := req.ToSettings(storeID)
	if err := tone.Validate(&cs); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if strings.TrimSpace(cs.WelcomeMessage) == "" {
		cs.WelcomeMessage = models.DefaultChatSettings(storeID).WelcomeMessage
	}

	saved, err := s.st.SaveChatSettings(cs)
	if errors.Is(err, store.ErrStoreNotFound) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Store not found"))
		return
	}
	if err != nil {
		slog.Error("Server.saveChatSettingsHandler: save failed", "error", err, "store_id", storeID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save chat settings"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(saved))
}

// listFAQsHandler handles GET /api/stores/{storeID}/faqs
func (s *Server) listFAQsHandler(w http.ResponseWriter, r *http.Request) {
	storeID, ok := pathID(w, r, "storeID")
	if !ok {
		return
	}
	faqs, err := s.st.ListFAQs(storeID)
	if err != nil {
		slog.Error("Server.listFAQsHandler: list failed", "error", err, "store_id", storeID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list FAQs"))
		return
	}
	if faqs == nil {
		faqs = []models.FAQ{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(faqs))
}

// createFAQHandler handles POST /api/stores/{storeID}/faqs
func (s *Server) createFAQHandler(w http.ResponseWriter, r *http.Request) {
	storeID, ok := pathID(w, r, "storeID")
	if !ok {
		return
	}
	var req models.FAQRequest
	if !decodeRequest(w, r, "createFAQHandler", &req) {
		return
	}
	faq, err := s.st.CreateFAQ(models.FAQ{
		StoreID:  storeID,
		Question: strings.TrimSpace(req.Question),
		Answer:   strings.TrimSpace(req.Answer),
		Category: strings.TrimSpace(req.Category),
	})
	if errors.Is(err, store.ErrStoreNotFound) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Store not found"))
		return
	}
	if err != nil {
		slog.Error("Server.createFAQHandler: create failed", "error", err, "store_id", storeID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create FAQ"))
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.Success(faq))
}

// deleteFAQHandler handles DELETE /api/faqs/{id}
func (s *Server) deleteFAQHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	deleted, err := s.st.DeleteFAQ(id)
	if err != nil {
		slog.Error("Server.deleteFAQHandler: delete failed", "error", err, "id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete FAQ"))
		return
	}
	if !deleted {
		writeJSONResponse(w, http.StatusNotFound, models.Error("FAQ not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("FAQ deleted", nil))
}

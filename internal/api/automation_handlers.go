package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/ShopPipe/internal/models"
	"github.com/BTreeMap/ShopPipe/internal/store"
)

// runAutomationHandler handles POST /api/automation/run
func (s *Server) runAutomationHandler(w http.ResponseWriter, r *http.Request) {
	result := s.runner.RunOnce(r.Context())
	if !result.Success {
		slog.Error("Server.runAutomationHandler: run failed", "error", result.Error)
		writeJSONResponse(w, http.StatusInternalServerError, models.APIResponse{
			Status:  string(models.APIStatusError),
			Message: result.Error,
			Result:  result,
		})
		return
	}
	msg := "Automation run completed"
	if result.Skipped {
		msg = "Automation run already in progress"
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage(msg, result))
}

// getAutomationSettingsHandler handles GET /api/stores/{storeID}/automation-settings
func (s *Server) getAutomationSettingsHandler(w http.ResponseWriter, r *http.Request) {
	storeID, ok := pathID(w, r, "storeID")
	if !ok {
		return
	}
	settings, err := s.st.GetAutomationSettings(storeID)
	if err != nil {
		slog.Error("Server.getAutomationSettingsHandler: load failed", "error", err, "store_id", storeID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load automation settings"))
		return
	}
	if settings == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Automation settings not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(settings))
}

// createAutomationSettingsHandler handles POST /api/automation-settings
func (s *Server) createAutomationSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var req models.AutomationSettingsCreateRequest
	if !decodeRequest(w, r, "createAutomationSettingsHandler", &req) {
		return
	}
	settings := req.Settings()
	if err := settings.Check(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	created, err := s.st.CreateAutomationSettings(settings)
	switch {
	case errors.Is(err, store.ErrStoreNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error("Store not found"))
		return
	case errors.Is(err, store.ErrSettingsExist):
		writeJSONResponse(w, http.StatusConflict, models.Error("Automation settings already exist for this store"))
		return
	case err != nil:
		slog.Error("Server.createAutomationSettingsHandler: create failed", "error", err, "store_id", req.StoreID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create automation settings"))
		return
	}
	slog.Info("Server.createAutomationSettingsHandler: settings created", "store_id", created.StoreID, "enabled", created.IsEnabled)
	writeJSONResponse(w, http.StatusCreated, models.Success(created))
}

// updateAutomationSettingsHandler handles PATCH /api/automation-settings/{id}
func (s *Server) updateAutomationSettingsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.AutomationSettingsUpdate
	if !decodeRequest(w, r, "updateAutomationSettingsHandler", &req) {
		return
	}

	current, err := s.st.GetAutomationSettingsByID(id)
	if err != nil {
		slog.Error("Server.updateAutomationSettingsHandler: load failed", "error", err, "id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load automation settings"))
		return
	}
	if current == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Automation settings not found"))
		return
	}
	req.Apply(current)
	if err := current.Check(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	updated, err := s.st.UpdateAutomationSettings(*current)
	if err != nil {
		slog.Error("Server.updateAutomationSettingsHandler: update failed", "error", err, "id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update automation settings"))
		return
	}
	if updated == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Automation settings not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(updated))
}

package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BTreeMap/ShopPipe/internal/cartrecovery"
	"github.com/BTreeMap/ShopPipe/internal/models"
	"github.com/BTreeMap/ShopPipe/internal/store"
)

// simulateRequest is the optional body of POST /carts/simulate.
type simulateRequest struct {
	Count int `json:"count"`
}

// syncCartHandler handles POST /api/stores/{storeID}/carts
func (s *Server) syncCartHandler(w http.ResponseWriter, r *http.Request) {
	storeID, ok := pathID(w, r, "storeID")
	if !ok {
		return
	}
	var req models.CartSyncRequest
	if !decodeRequest(w, r, "syncCartHandler", &req) {
		return
	}

	cart, err := s.st.UpsertCart(req.ToCart(storeID))
	if errors.Is(err, store.ErrStoreNotFound) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Store not found"))
		return
	}
	if err != nil {
		slog.Error("Server.syncCartHandler: upsert failed", "error", err, "store_id", storeID, "checkout", req.ExternalCheckoutID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to sync cart"))
		return
	}
	slog.Debug("Server.syncCartHandler: cart synced", "cart_id", cart.ID, "store_id", storeID)
	writeJSONResponse(w, http.StatusOK, models.Success(cart))
}

// listCartsHandler handles GET /api/stores/{storeID}/carts
func (s *Server) listCartsHandler(w http.ResponseWriter, r *http.Request) {
	storeID, ok := pathID(w, r, "storeID")
	if !ok {
		return
	}
	carts, err := s.st.ListCarts(storeID)
	if err != nil {
		slog.Error("Server.listCartsHandler: list failed", "error", err, "store_id", storeID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list carts"))
		return
	}
	if carts == nil {
		carts = []models.AbandonedCart{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(carts))
}

// simulateCartsHandler handles POST /api/stores/{storeID}/carts/simulate
func (s *Server) simulateCartsHandler(w http.ResponseWriter, r *http.Request) {
	storeID, ok := pathID(w, r, "storeID")
	if !ok {
		return
	}
	var req simulateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		slog.Warn("Server.simulateCartsHandler: invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	carts, err := cartrecovery.Simulate(s.st, storeID, req.Count, s.clock())
	if errors.Is(err, store.ErrStoreNotFound) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Store not found"))
		return
	}
	if err != nil {
		slog.Error("Server.simulateCartsHandler: simulate failed", "error", err, "store_id", storeID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to simulate carts"))
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Simulated abandoned carts", carts))
}

// listStoreAttemptsHandler handles GET /api/stores/{storeID}/recovery-attempts?cartId=&status=
func (s *Server) listStoreAttemptsHandler(w http.ResponseWriter, r *http.Request) {
	storeID, ok := pathID(w, r, "storeID")
	if !ok {
		return
	}
	var filter models.AttemptFilter
	q := r.URL.Query()
	if raw := strings.TrimSpace(q.Get("cartId")); raw != "" {
		cartID, err := parseID(raw)
		if err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid cartId: "+err.Error()))
			return
		}
		filter.CartID = &cartID
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status := models.AttemptStatus(strings.ToLower(raw))
		if !models.IsValidAttemptStatus(status) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrInvalidAttemptStatus.Error()))
			return
		}
		filter.Status = status
	}

	attempts, err := s.ledger.ListByStore(storeID, filter)
	if err != nil {
		slog.Error("Server.listStoreAttemptsHandler: list failed", "error", err, "store_id", storeID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list recovery attempts"))
		return
	}
	if attempts == nil {
		attempts = []models.RecoveryAttempt{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(attempts))
}

// listCartAttemptsHandler handles GET /api/carts/{cartID}/recovery-attempts
func (s *Server) listCartAttemptsHandler(w http.ResponseWriter, r *http.Request) {
	cartID, ok := pathID(w, r, "cartID")
	if !ok {
		return
	}
	cart, err := s.st.GetCart(cartID)
	if err != nil {
		slog.Error("Server.listCartAttemptsHandler: load cart failed", "error", err, "cart_id", cartID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load cart"))
		return
	}
	if cart == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Cart not found"))
		return
	}
	attempts, err := s.ledger.ListByCart(cartID)
	if err != nil {
		slog.Error("Server.listCartAttemptsHandler: list failed", "error", err, "cart_id", cartID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list recovery attempts"))
		return
	}
	if attempts == nil {
		attempts = []models.RecoveryAttempt{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(attempts))
}

// updateAttemptStatusHandler handles PATCH /api/recovery-attempts/{id}/status
func (s *Server) updateAttemptStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.AttemptStatusUpdate
	if !decodeRequest(w, r, "updateAttemptStatusHandler", &req) {
		return
	}

	attempt, err := s.ledger.UpdateStatus(id, req.Status)
	switch {
	case errors.Is(err, models.ErrBackwardTransition):
		writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
		return
	case errors.Is(err, models.ErrInvalidAttemptStatus):
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	case err != nil:
		slog.Error("Server.updateAttemptStatusHandler: update failed", "error", err, "id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update recovery attempt"))
		return
	case attempt == nil:
		writeJSONResponse(w, http.StatusNotFound, models.Error("Recovery attempt not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(attempt))
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/BTreeMap/ShopPipe/internal/models"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Pre-marshaled fallback responses to avoid runtime JSON encoding failures
var (
	fallbackErrorResponse []byte
)

func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	// Marshal first so encoding errors surface before headers are written
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// validatable is implemented by every request payload in models.
type validatable interface {
	Validate() error
}

// decodeRequest decodes the JSON body into dst and validates it. On failure it
// writes a 400 and returns false.
func decodeRequest(w http.ResponseWriter, r *http.Request, handler string, dst validatable) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		slog.Warn("Server."+handler+": invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return false
	}
	if err := dst.Validate(); err != nil {
		slog.Warn("Server."+handler+": validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return false
	}
	return true
}

var errInvalidID = errors.New("id must be a positive integer")

// pathID parses a positive integer URL parameter. On failure it writes a 400.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := parseID(chi.URLParam(r, name))
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(fmt.Sprintf("invalid %s: %v", name, err)))
		return 0, false
	}
	return id, true
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}

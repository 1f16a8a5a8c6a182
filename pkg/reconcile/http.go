package reconcile

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/skuflow/platform/pkg/common/logger"
	"github.com/skuflow/platform/pkg/ledger"
)

type HTTPHandler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *HTTPHandler {
	return &HTTPHandler{service: service}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/products/{key}/versions", h.handleVersions).Methods(http.MethodGet)
	router.HandleFunc("/products/{key}/compare", h.handleCompare).Methods(http.MethodGet)
	router.HandleFunc("/uploads/{id}/validate", h.handleValidate).Methods(http.MethodGet)
	router.HandleFunc("/status", h.handleStatus).Methods(http.MethodGet)
}

func (h *HTTPHandler) handleVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.service.VersionsFor(r.Context(), mux.Vars(r)["key"])
	if err != nil {
		logger.Log.WithError(err).Error("failed to load versions")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

func (h *HTTPHandler) handleCompare(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Compare(r.Context(), mux.Vars(r)["key"])
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			http.Error(w, "product not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to compare versions")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) handleValidate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid upload id", http.StatusBadRequest)
		return
	}

	var keys []string
	if raw := r.URL.Query().Get("keys"); raw != "" {
		keys = strings.Split(raw, ",")
	}

	result, err := h.service.ValidateUpload(r.Context(), id, keys)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			http.Error(w, "upload not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to validate upload")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.SystemStatus(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("failed to build status")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Log.WithError(err).Warn("failed to encode response")
	}
}

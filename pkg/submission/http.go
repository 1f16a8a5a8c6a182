package submission

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/skuflow/platform/pkg/common/logger"
	"github.com/skuflow/platform/pkg/common/models"
	"github.com/skuflow/platform/pkg/ingestion"
	"github.com/skuflow/platform/pkg/ledger"
)

const multipartMemory = 32 << 20

type HTTPHandler struct {
	service *Service
	maxBody int64
}

func NewHTTPHandler(service *Service, maxBody int64) *HTTPHandler {
	return &HTTPHandler{service: service, maxBody: maxBody}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/uploads", h.handleUpload).Methods(http.MethodPost)
	router.HandleFunc("/uploads", h.handleRecent).Methods(http.MethodGet)
	router.HandleFunc("/uploads/{id}", h.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/uploads/{id}/retry", h.handleRetry).Methods(http.MethodPost)
}

func (h *HTTPHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		// Headroom for the multipart envelope around the file itself.
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody+1<<20)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	part, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer part.Close()

	data, err := io.ReadAll(part)
	if err != nil {
		logger.Log.WithError(err).Warn("failed to read upload")
		http.Error(w, "failed to read file", http.StatusBadRequest)
		return
	}

	file, err := h.service.Submit(r.Context(), header.Filename, data)
	if err != nil {
		var dup *DuplicateError
		switch {
		case IsValidationError(err):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.As(err, &dup):
			writeJSON(w, http.StatusConflict, models.ErrorResponse{Error: ErrDuplicate.Error(), ExistingID: &dup.Existing.ID})
		case errors.Is(err, ErrDuplicate):
			writeJSON(w, http.StatusConflict, models.ErrorResponse{Error: ErrDuplicate.Error()})
		default:
			logger.Log.WithError(err).Error("failed to accept upload")
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusAccepted, models.UploadResponse{
		ID:        file.ID,
		FileName:  file.FileName,
		Checksum:  file.Checksum,
		Status:    file.Status,
		Message:   "file accepted for processing",
		Timestamp: time.Now().UTC(),
	})
}

func (h *HTTPHandler) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	files, err := h.service.Recent(r.Context(), limit)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list uploads")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (h *HTTPHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid upload id", http.StatusBadRequest)
		return
	}

	file, err := h.service.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			http.Error(w, "upload not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to fetch upload status")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, file)
}

func (h *HTTPHandler) handleRetry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid upload id", http.StatusBadRequest)
		return
	}

	file, err := h.service.Retry(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			http.Error(w, "upload not found", http.StatusNotFound)
		case errors.Is(err, ErrBlobMissing), errors.Is(err, ingestion.ErrAlreadyRunning):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, ingestion.ErrRunnerClosed):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		default:
			logger.Log.WithError(err).Error("failed to schedule retry")
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusAccepted, file)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Log.WithError(err).Warn("failed to encode response")
	}
}

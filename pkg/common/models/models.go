package models

import (
	"time"

	"github.com/google/uuid"
)

// Event Bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // catalog.file.processing, catalog.file.progress, ...
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// Event types emitted by the ingestion pipeline and consumed by the retry listener.
const (
	EventFileProcessing = "catalog.file.processing"
	EventFileProgress   = "catalog.file.progress"
	EventFileCompleted  = "catalog.file.completed"
	EventFileFailed     = "catalog.file.failed"
	EventFileRetry      = "catalog.file.retry"
)

// Upload API models
type UploadResponse struct {
	ID        uuid.UUID `json:"id"`
	FileName  string    `json:"file_name"`
	Checksum  string    `json:"checksum"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorResponse struct {
	Error      string     `json:"error"`
	ExistingID *uuid.UUID `json:"existing_id,omitempty"`
}

// Validation of an ingested file against keys the operator expects.
type UploadValidation struct {
	FileID        uuid.UUID                `json:"file_id"`
	FileName      string                   `json:"file_name"`
	Status        string                   `json:"status"`
	TotalUploaded int64                    `json:"total_uploaded"`
	ExpectedKeys  []string                 `json:"expected_keys"`
	FoundKeys     []string                 `json:"found_keys"`
	MissingKeys   []string                 `json:"missing_keys"`
	SampleRecords []map[string]interface{} `json:"sample_records"`
}

type SystemStatus struct {
	UploadedFiles   int64                    `json:"uploaded_files"`
	ProductsPerFile map[string]int64         `json:"products_per_file"`
	UniqueProducts  int64                    `json:"unique_products"`
	SampleProducts  []map[string]interface{} `json:"sample_products"`
}

package ledger

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// maxErrorMessage bounds the diagnostic persisted on failure.
const maxErrorMessage = 500

// UploadedFile is the ledger record for one submitted file.
type UploadedFile struct {
	ID            uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey;column:id"`
	FileName      string     `json:"file_name" gorm:"column:file_name;not null"`
	Checksum      string     `json:"checksum" gorm:"column:checksum;uniqueIndex;not null"`
	StoragePath   string     `json:"storage_path" gorm:"column:storage_path"`
	Status        string     `json:"status" gorm:"column:status;index;not null"`
	ProcessedRows int        `json:"processed_rows" gorm:"column:processed_rows"`
	TotalRows     int        `json:"total_rows" gorm:"column:total_rows"`
	ErrorMessage  *string    `json:"error_message" gorm:"column:error_message"`
	Attempts      int        `json:"attempts" gorm:"column:attempts"`
	CreatedAt     time.Time  `json:"created_at" gorm:"column:created_at;index"`
	UpdatedAt     time.Time  `json:"updated_at" gorm:"column:updated_at"`
	StartedAt     *time.Time `json:"started_at,omitempty" gorm:"column:started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" gorm:"column:completed_at"`
}

func (UploadedFile) TableName() string {
	return "uploaded_files"
}

// IsTerminal reports whether a run for the file has finished.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// TruncateMessage shortens a diagnostic to what the ledger keeps.
func TruncateMessage(msg string) string {
	if len(msg) <= maxErrorMessage {
		return msg
	}
	return msg[:maxErrorMessage-3] + "..."
}

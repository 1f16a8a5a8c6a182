package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound          = errors.New("uploaded file not found")
	ErrDuplicateChecksum = errors.New("uploaded file checksum already exists")
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&UploadedFile{})
}

func (r *Repository) Create(ctx context.Context, file *UploadedFile) error {
	now := time.Now().UTC()
	if file.CreatedAt.IsZero() {
		file.CreatedAt = now
	}
	file.UpdatedAt = now
	err := r.db.WithContext(ctx).Create(file).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateChecksum
	}
	return err
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*UploadedFile, error) {
	var file UploadedFile
	result := r.db.WithContext(ctx).First(&file, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &file, nil
}

func (r *Repository) FindByChecksum(ctx context.Context, checksum string) (*UploadedFile, error) {
	var file UploadedFile
	result := r.db.WithContext(ctx).First(&file, "checksum = ?", checksum)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &file, nil
}

func (r *Repository) ListRecent(ctx context.Context, limit int) ([]UploadedFile, error) {
	if limit <= 0 {
		limit = 50
	}
	var files []UploadedFile
	result := r.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&files)
	return files, result.Error
}

func (r *Repository) ListByStatus(ctx context.Context, statuses ...string) ([]UploadedFile, error) {
	var files []UploadedFile
	result := r.db.WithContext(ctx).Where("status IN ?", statuses).Order("created_at asc").Find(&files)
	return files, result.Error
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&UploadedFile{}).Count(&count).Error
	return count, err
}

// MarkProcessing opens a new attempt and clears the previous outcome.
func (r *Repository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	return r.update(ctx, id, map[string]interface{}{
		"status":         StatusProcessing,
		"attempts":       gorm.Expr("attempts + 1"),
		"error_message":  nil,
		"processed_rows": 0,
		"total_rows":     0,
		"started_at":     now,
		"completed_at":   nil,
		"updated_at":     now,
	})
}

func (r *Repository) MarkCompleted(ctx context.Context, id uuid.UUID, processedRows, totalRows int) error {
	now := time.Now().UTC()
	return r.update(ctx, id, map[string]interface{}{
		"status":         StatusCompleted,
		"processed_rows": processedRows,
		"total_rows":     totalRows,
		"error_message":  nil,
		"completed_at":   now,
		"updated_at":     now,
	})
}

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	now := time.Now().UTC()
	return r.update(ctx, id, map[string]interface{}{
		"status":        StatusFailed,
		"error_message": TruncateMessage(message),
		"completed_at":  now,
		"updated_at":    now,
	})
}

func (r *Repository) update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&UploadedFile{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

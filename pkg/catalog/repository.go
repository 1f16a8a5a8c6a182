package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/skuflow/platform/pkg/ledger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound = errors.New("product not found")
	ErrEmptyKey = errors.New("empty unique key")
)

var productUpdateColumns = []string{
	"product_title",
	"product_description",
	"style_number",
	"mainframe_color",
	"size",
	"color_name",
	"piece_price",
	"extra",
	"uploaded_file_id",
	"updated_at",
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Product{}, &Version{})
}

// Upsert writes row globally by unique key, repoints ownership to file and
// appends a version entry, all in one transaction.
func (r *Repository) Upsert(ctx context.Context, file *ledger.UploadedFile, row Row) (Outcome, error) {
	if row.UniqueKey == "" {
		return "", ErrEmptyKey
	}

	outcome := OutcomeInserted
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Product
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("unique_key = ?", row.UniqueKey).
			Take(&existing).Error
		switch {
		case err == nil:
			outcome = OutcomeUpdated
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}

		now := time.Now().UTC()
		product := Product{
			UniqueKey:      row.UniqueKey,
			Attributes:     row.Attributes,
			UploadedFileID: file.ID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "unique_key"}},
			DoUpdates: clause.AssignmentColumns(productUpdateColumns),
		}).Create(&product).Error; err != nil {
			return err
		}

		version := Version{
			UniqueKey:      row.UniqueKey,
			Attributes:     row.Attributes,
			UploadedFileID: file.ID,
			FileName:       file.FileName,
			FileCreatedAt:  file.CreatedAt,
			Operation:      outcome,
			CreatedAt:      now,
		}
		return tx.Create(&version).Error
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// DeleteByFile removes the live rows owned by the file and the history it
// wrote. Returns the number of live rows removed.
func (r *Repository) DeleteByFile(ctx context.Context, fileID uuid.UUID) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("uploaded_file_id = ?", fileID).Delete(&Product{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected
		return tx.Where("uploaded_file_id = ?", fileID).Delete(&Version{}).Error
	})
	return deleted, err
}

func (r *Repository) FindByUniqueKey(ctx context.Context, key string) (*Product, error) {
	var product Product
	result := r.db.WithContext(ctx).First(&product, "unique_key = ?", key)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &product, nil
}

func (r *Repository) FindByFile(ctx context.Context, fileID uuid.UUID, limit int) ([]Product, error) {
	var products []Product
	query := r.db.WithContext(ctx).Where("uploaded_file_id = ?", fileID).Order("id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	result := query.Find(&products)
	return products, result.Error
}

func (r *Repository) FindByFileAndKeys(ctx context.Context, fileID uuid.UUID, keys []string) ([]Product, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	var products []Product
	result := r.db.WithContext(ctx).
		Where("uploaded_file_id = ? AND unique_key IN ?", fileID, keys).
		Find(&products)
	return products, result.Error
}

func (r *Repository) CountByFile(ctx context.Context, fileID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Product{}).Where("uploaded_file_id = ?", fileID).Count(&count).Error
	return count, err
}

func (r *Repository) CountPerFile(ctx context.Context) (map[uuid.UUID]int64, error) {
	var rows []struct {
		UploadedFileID uuid.UUID
		Count          int64
	}
	err := r.db.WithContext(ctx).Model(&Product{}).
		Select("uploaded_file_id, count(*) as count").
		Group("uploaded_file_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[uuid.UUID]int64, len(rows))
	for _, row := range rows {
		counts[row.UploadedFileID] = row.Count
	}
	return counts, nil
}

func (r *Repository) CountDistinctKeys(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Product{}).Distinct("unique_key").Count(&count).Error
	return count, err
}

func (r *Repository) Sample(ctx context.Context, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = 10
	}
	var products []Product
	result := r.db.WithContext(ctx).Order("id asc").Limit(limit).Find(&products)
	return products, result.Error
}

// Versions returns the history of a key ordered by the owning file's creation
// time, then by write order.
func (r *Repository) Versions(ctx context.Context, key string) ([]Version, error) {
	var versions []Version
	result := r.db.WithContext(ctx).
		Where("unique_key = ?", key).
		Order("file_created_at asc").
		Order("id asc").
		Find(&versions)
	return versions, result.Error
}

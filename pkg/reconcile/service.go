// Package reconcile answers audit questions about the catalog: the version
// history of a business key and what an ingested file actually wrote.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/skuflow/platform/pkg/catalog"
	"github.com/skuflow/platform/pkg/common/models"
	"github.com/skuflow/platform/pkg/ledger"
	"github.com/skuflow/platform/pkg/sanitize"
)

var ErrKeyNotFound = errors.New("no versions found for unique key")

const (
	validationSampleSize = 5
	statusSampleSize     = 10
)

type Catalog interface {
	Versions(ctx context.Context, key string) ([]catalog.Version, error)
	CountByFile(ctx context.Context, fileID uuid.UUID) (int64, error)
	FindByFile(ctx context.Context, fileID uuid.UUID, limit int) ([]catalog.Product, error)
	FindByFileAndKeys(ctx context.Context, fileID uuid.UUID, keys []string) ([]catalog.Product, error)
	CountPerFile(ctx context.Context) (map[uuid.UUID]int64, error)
	CountDistinctKeys(ctx context.Context) (int64, error)
	Sample(ctx context.Context, limit int) ([]catalog.Product, error)
}

type Ledger interface {
	Get(ctx context.Context, id uuid.UUID) (*ledger.UploadedFile, error)
	Count(ctx context.Context) (int64, error)
}

// Comparison is the delta between the two most recent versions of a key.
type Comparison struct {
	UniqueKey    string            `json:"unique_key"`
	Message      string            `json:"message,omitempty"`
	Latest       *catalog.Version  `json:"latest"`
	Previous     *catalog.Version  `json:"previous,omitempty"`
	Changed      bool              `json:"changed"`
	PriceChanged bool              `json:"price_changed"`
	TitleChanged bool              `json:"title_changed"`
	Versions     []catalog.Version `json:"versions"`
}

type Service struct {
	catalog Catalog
	ledger  Ledger
}

func NewService(c Catalog, l Ledger) *Service {
	return &Service{catalog: c, ledger: l}
}

// VersionsFor returns the key's history, oldest owning file first. Keys are
// sanitized the same way ingestion stores them.
func (s *Service) VersionsFor(ctx context.Context, key string) ([]catalog.Version, error) {
	return s.catalog.Versions(ctx, sanitize.Text(key))
}

func (s *Service) Compare(ctx context.Context, key string) (*Comparison, error) {
	key = sanitize.Text(key)
	versions, err := s.catalog.Versions(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("loading versions: %w", err)
	}
	if len(versions) == 0 {
		return nil, ErrKeyNotFound
	}

	result := &Comparison{
		UniqueKey: key,
		Latest:    &versions[len(versions)-1],
		Versions:  versions,
	}
	if len(versions) == 1 {
		result.Message = "only one version found"
		return result, nil
	}

	result.Previous = &versions[len(versions)-2]
	result.PriceChanged = !samePrice(result.Previous.PiecePrice, result.Latest.PiecePrice)
	result.TitleChanged = !sameText(result.Previous.Title, result.Latest.Title)
	result.Changed = result.PriceChanged || result.TitleChanged
	return result, nil
}

// ValidateUpload checks which of the expected keys the file currently owns.
func (s *Service) ValidateUpload(ctx context.Context, fileID uuid.UUID, expectedKeys []string) (*models.UploadValidation, error) {
	file, err := s.ledger.Get(ctx, fileID)
	if err != nil {
		return nil, err
	}

	total, err := s.catalog.CountByFile(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("counting products: %w", err)
	}

	expected := normalizeKeys(expectedKeys)
	found, err := s.catalog.FindByFileAndKeys(ctx, fileID, expected)
	if err != nil {
		return nil, fmt.Errorf("looking up expected keys: %w", err)
	}
	present := make(map[string]struct{}, len(found))
	for _, p := range found {
		present[p.UniqueKey] = struct{}{}
	}

	result := &models.UploadValidation{
		FileID:        file.ID,
		FileName:      file.FileName,
		Status:        file.Status,
		TotalUploaded: total,
		ExpectedKeys:  expected,
		FoundKeys:     []string{},
		MissingKeys:   []string{},
	}
	for _, key := range expected {
		if _, ok := present[key]; ok {
			result.FoundKeys = append(result.FoundKeys, key)
		} else {
			result.MissingKeys = append(result.MissingKeys, key)
		}
	}

	sample, err := s.catalog.FindByFile(ctx, fileID, validationSampleSize)
	if err != nil {
		return nil, fmt.Errorf("sampling products: %w", err)
	}
	result.SampleRecords = summarize(sample)
	return result, nil
}

func (s *Service) SystemStatus(ctx context.Context) (*models.SystemStatus, error) {
	files, err := s.ledger.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting uploaded files: %w", err)
	}
	perFile, err := s.catalog.CountPerFile(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting products per file: %w", err)
	}
	unique, err := s.catalog.CountDistinctKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting unique products: %w", err)
	}
	sample, err := s.catalog.Sample(ctx, statusSampleSize)
	if err != nil {
		return nil, fmt.Errorf("sampling products: %w", err)
	}

	status := &models.SystemStatus{
		UploadedFiles:   files,
		ProductsPerFile: make(map[string]int64, len(perFile)),
		UniqueProducts:  unique,
		SampleProducts:  summarize(sample),
	}
	for id, count := range perFile {
		status.ProductsPerFile[id.String()] = count
	}
	return status, nil
}

func samePrice(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}

func sameText(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func normalizeKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = sanitize.Text(k)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func summarize(products []catalog.Product) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(products))
	for _, p := range products {
		out = append(out, map[string]interface{}{
			"id":               p.ID,
			"unique_key":       p.UniqueKey,
			"title":            p.Title,
			"piece_price":      p.PiecePrice,
			"uploaded_file_id": p.UploadedFileID,
		})
	}
	return out
}

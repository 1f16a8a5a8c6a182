package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/skuflow/platform/pkg/catalog"
	"github.com/skuflow/platform/pkg/ledger"
	"github.com/skuflow/platform/pkg/store/memory"
)

type fixture struct {
	ledger  *memory.Ledger
	catalog *memory.Catalog
	service *Service
}

func newFixture() *fixture {
	l := memory.NewLedger()
	c := memory.NewCatalog()
	return &fixture{ledger: l, catalog: c, service: NewService(c, l)}
}

func (f *fixture) file(t *testing.T, name string, createdAt time.Time) *ledger.UploadedFile {
	t.Helper()
	file := &ledger.UploadedFile{
		ID:        uuid.New(),
		FileName:  name,
		Checksum:  uuid.NewString(),
		Status:    ledger.StatusCompleted,
		CreatedAt: createdAt,
	}
	if err := f.ledger.Create(context.Background(), file); err != nil {
		t.Fatalf("failed to create file record: %v", err)
	}
	return file
}

func (f *fixture) upsert(t *testing.T, file *ledger.UploadedFile, key, title, price string) {
	t.Helper()
	row := catalog.Row{UniqueKey: key}
	if title != "" {
		row.Title = &title
	}
	if price != "" {
		row.PiecePrice = decimal.NewNullDecimal(decimal.RequireFromString(price))
	}
	if _, err := f.catalog.Upsert(context.Background(), file, row); err != nil {
		t.Fatalf("upsert %s: %v", key, err)
	}
}

func TestCompareDetectsPriceChange(t *testing.T) {
	f := newFixture()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	a := f.file(t, "a.csv", base)
	b := f.file(t, "b.csv", base.Add(time.Hour))
	f.upsert(t, a, "K1", "Shirt", "10.00")
	f.upsert(t, b, "K1", "Shirt", "12.50")

	result, err := f.service.Compare(context.Background(), "K1")
	if err != nil {
		t.Fatalf("compare failed: %v", err)
	}
	if !result.Changed || !result.PriceChanged || result.TitleChanged {
		t.Fatalf("unexpected change flags: %+v", result)
	}
	if result.Previous == nil || result.Previous.UploadedFileID != a.ID {
		t.Fatalf("expected previous from a.csv, got %+v", result.Previous)
	}
	if result.Latest.UploadedFileID != b.ID {
		t.Fatalf("expected latest from b.csv, got %s", result.Latest.FileName)
	}
	if len(result.Versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(result.Versions))
	}
}

func TestCompareIgnoresUntrackedColumns(t *testing.T) {
	f := newFixture()
	base := time.Now().UTC()
	a := f.file(t, "a.csv", base)
	b := f.file(t, "b.csv", base.Add(time.Minute))
	f.upsert(t, a, "K1", "Shirt", "10.00")

	size := "XL"
	row := catalog.Row{UniqueKey: "K1"}
	title := "Shirt"
	row.Title = &title
	row.Size = &size
	row.PiecePrice = decimal.NewNullDecimal(decimal.RequireFromString("10.0"))
	if _, err := f.catalog.Upsert(context.Background(), b, row); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	result, err := f.service.Compare(context.Background(), "K1")
	if err != nil {
		t.Fatalf("compare failed: %v", err)
	}
	if result.Changed {
		t.Fatalf("size-only difference should not count as changed: %+v", result)
	}
}

func TestCompareTitleAndMissingPrice(t *testing.T) {
	f := newFixture()
	base := time.Now().UTC()
	a := f.file(t, "a.csv", base)
	b := f.file(t, "b.csv", base.Add(time.Minute))
	f.upsert(t, a, "K1", "Shirt", "")
	f.upsert(t, b, "K1", "", "")

	result, err := f.service.Compare(context.Background(), "K1")
	if err != nil {
		t.Fatalf("compare failed: %v", err)
	}
	if !result.TitleChanged || result.PriceChanged {
		t.Fatalf("expected title-only change, got %+v", result)
	}
}

func TestCompareSingleVersion(t *testing.T) {
	f := newFixture()
	a := f.file(t, "a.csv", time.Now().UTC())
	f.upsert(t, a, "K1", "Shirt", "10.00")

	result, err := f.service.Compare(context.Background(), "K1")
	if err != nil {
		t.Fatalf("compare failed: %v", err)
	}
	if result.Previous != nil || result.Changed {
		t.Fatalf("single version should have no previous: %+v", result)
	}
	if result.Message == "" || result.Latest == nil {
		t.Fatalf("expected message and latest, got %+v", result)
	}
}

func TestCompareUnknownKey(t *testing.T) {
	f := newFixture()
	if _, err := f.service.Compare(context.Background(), "nope"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestVersionsOrderedByFileCreation(t *testing.T) {
	f := newFixture()
	base := time.Now().UTC()
	older := f.file(t, "older.csv", base)
	newer := f.file(t, "newer.csv", base.Add(time.Hour))

	// Newer file ingested first; history still follows file creation time.
	f.upsert(t, newer, "K1", "New", "2")
	f.upsert(t, older, "K1", "Old", "1")

	versions, err := f.service.VersionsFor(context.Background(), " K1 ")
	if err != nil {
		t.Fatalf("versions failed: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(versions))
	}
	if versions[0].FileName != "older.csv" || versions[1].FileName != "newer.csv" {
		t.Fatalf("unexpected order: %s, %s", versions[0].FileName, versions[1].FileName)
	}
}

func TestValidateUpload(t *testing.T) {
	f := newFixture()
	base := time.Now().UTC()
	a := f.file(t, "a.csv", base)
	b := f.file(t, "b.csv", base.Add(time.Minute))
	f.upsert(t, a, "K1", "One", "1")
	f.upsert(t, a, "K2", "Two", "2")
	f.upsert(t, b, "K2", "Two", "3")

	result, err := f.service.ValidateUpload(context.Background(), a.ID, []string{"K1", "K2", "K3", "K1", " "})
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if result.TotalUploaded != 1 {
		t.Fatalf("expected a.csv to own 1 product, got %d", result.TotalUploaded)
	}
	if len(result.ExpectedKeys) != 3 {
		t.Fatalf("expected keys not normalized: %v", result.ExpectedKeys)
	}
	if len(result.FoundKeys) != 1 || result.FoundKeys[0] != "K1" {
		t.Fatalf("unexpected found keys: %v", result.FoundKeys)
	}
	if len(result.MissingKeys) != 2 || result.MissingKeys[0] != "K2" || result.MissingKeys[1] != "K3" {
		t.Fatalf("unexpected missing keys: %v", result.MissingKeys)
	}
	if len(result.SampleRecords) != 1 {
		t.Fatalf("expected 1 sample record, got %d", len(result.SampleRecords))
	}
}

func TestValidateUploadUnknownFile(t *testing.T) {
	f := newFixture()
	if _, err := f.service.ValidateUpload(context.Background(), uuid.New(), nil); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ledger.ErrNotFound, got %v", err)
	}
}

func TestSystemStatus(t *testing.T) {
	f := newFixture()
	base := time.Now().UTC()
	a := f.file(t, "a.csv", base)
	b := f.file(t, "b.csv", base.Add(time.Minute))
	f.upsert(t, a, "K1", "One", "1")
	f.upsert(t, a, "K2", "Two", "2")
	f.upsert(t, b, "K2", "Two", "3")

	status, err := f.service.SystemStatus(context.Background())
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.UploadedFiles != 2 || status.UniqueProducts != 2 {
		t.Fatalf("unexpected totals: %+v", status)
	}
	if status.ProductsPerFile[a.ID.String()] != 1 || status.ProductsPerFile[b.ID.String()] != 1 {
		t.Fatalf("unexpected per-file counts: %v", status.ProductsPerFile)
	}
	if len(status.SampleProducts) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(status.SampleProducts))
	}
}

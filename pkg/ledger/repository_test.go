package ledger

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/skuflow/platform/pkg/common/database"
)

func openTestRepository(t *testing.T) *Repository {
	t.Helper()
	dsn := os.Getenv("CATALOG_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CATALOG_TEST_POSTGRES_DSN not set")
	}
	db, err := database.OpenPostgres(dsn)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	repo := NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return repo
}

func TestTruncateMessage(t *testing.T) {
	long := strings.Repeat("x", 600)
	if got := TruncateMessage(long); len(got) != 500 {
		t.Fatalf("expected 500 characters, got %d", len(got))
	}
	if got := TruncateMessage("short"); got != "short" {
		t.Fatalf("short message changed: %q", got)
	}
}

func TestRepositoryLifecycle(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	file := &UploadedFile{
		ID:          uuid.New(),
		FileName:    "catalog.csv",
		Checksum:    uuid.NewString(),
		StoragePath: "uploads/catalog.csv",
		Status:      StatusPending,
	}
	if err := repo.Create(ctx, file); err != nil {
		t.Fatalf("create: %v", err)
	}

	dup := &UploadedFile{ID: uuid.New(), FileName: "copy.csv", Checksum: file.Checksum, Status: StatusPending}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrDuplicateChecksum) {
		t.Fatalf("expected ErrDuplicateChecksum, got %v", err)
	}

	if err := repo.MarkProcessing(ctx, file.ID); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	if err := repo.MarkFailed(ctx, file.ID, "boom"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := repo.MarkProcessing(ctx, file.ID); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	if err := repo.MarkCompleted(ctx, file.ID, 9, 10); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	got, err := repo.FindByChecksum(ctx, file.Checksum)
	if err != nil {
		t.Fatalf("find by checksum: %v", err)
	}
	if got.Status != StatusCompleted || got.Attempts != 2 || got.ErrorMessage != nil {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.ProcessedRows != 9 || got.TotalRows != 10 {
		t.Fatalf("unexpected row counts: %d/%d", got.ProcessedRows, got.TotalRows)
	}

	if _, err := repo.Get(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.MarkFailed(ctx, uuid.New(), "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}
}

// Package memory provides process-local ledger and catalog stores with the
// same semantics as the Postgres repositories. Used for single-node
// development runs and in tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/skuflow/platform/pkg/ledger"
)

type Ledger struct {
	mu         sync.RWMutex
	files      map[uuid.UUID]*ledger.UploadedFile
	byChecksum map[string]uuid.UUID
}

func NewLedger() *Ledger {
	return &Ledger{
		files:      make(map[uuid.UUID]*ledger.UploadedFile),
		byChecksum: make(map[string]uuid.UUID),
	}
}

func (l *Ledger) Create(ctx context.Context, file *ledger.UploadedFile) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.byChecksum[file.Checksum]; ok {
		return ledger.ErrDuplicateChecksum
	}
	now := time.Now().UTC()
	if file.CreatedAt.IsZero() {
		file.CreatedAt = now
	}
	file.UpdatedAt = now
	stored := *file
	l.files[file.ID] = &stored
	l.byChecksum[file.Checksum] = file.ID
	return nil
}

func (l *Ledger) Get(ctx context.Context, id uuid.UUID) (*ledger.UploadedFile, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	file, ok := l.files[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	out := *file
	return &out, nil
}

func (l *Ledger) FindByChecksum(ctx context.Context, checksum string) (*ledger.UploadedFile, error) {
	l.mu.RLock()
	id, ok := l.byChecksum[checksum]
	l.mu.RUnlock()
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return l.Get(ctx, id)
}

func (l *Ledger) ListRecent(ctx context.Context, limit int) ([]ledger.UploadedFile, error) {
	if limit <= 0 {
		limit = 50
	}
	files := l.snapshot(func(*ledger.UploadedFile) bool { return true })
	sort.SliceStable(files, func(i, j int) bool { return files[i].CreatedAt.After(files[j].CreatedAt) })
	if len(files) > limit {
		files = files[:limit]
	}
	return files, nil
}

func (l *Ledger) ListByStatus(ctx context.Context, statuses ...string) ([]ledger.UploadedFile, error) {
	wanted := make(map[string]struct{}, len(statuses))
	for _, s := range statuses {
		wanted[s] = struct{}{}
	}
	files := l.snapshot(func(f *ledger.UploadedFile) bool {
		_, ok := wanted[f.Status]
		return ok
	})
	sort.SliceStable(files, func(i, j int) bool { return files[i].CreatedAt.Before(files[j].CreatedAt) })
	return files, nil
}

func (l *Ledger) Count(ctx context.Context) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return int64(len(l.files)), nil
}

func (l *Ledger) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return l.update(ctx, id, func(f *ledger.UploadedFile, now time.Time) {
		f.Status = ledger.StatusProcessing
		f.Attempts++
		f.ErrorMessage = nil
		f.ProcessedRows = 0
		f.TotalRows = 0
		f.StartedAt = &now
		f.CompletedAt = nil
	})
}

func (l *Ledger) MarkCompleted(ctx context.Context, id uuid.UUID, processedRows, totalRows int) error {
	return l.update(ctx, id, func(f *ledger.UploadedFile, now time.Time) {
		f.Status = ledger.StatusCompleted
		f.ProcessedRows = processedRows
		f.TotalRows = totalRows
		f.ErrorMessage = nil
		f.CompletedAt = &now
	})
}

func (l *Ledger) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	return l.update(ctx, id, func(f *ledger.UploadedFile, now time.Time) {
		msg := ledger.TruncateMessage(message)
		f.Status = ledger.StatusFailed
		f.ErrorMessage = &msg
		f.CompletedAt = &now
	})
}

func (l *Ledger) update(ctx context.Context, id uuid.UUID, apply func(*ledger.UploadedFile, time.Time)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	file, ok := l.files[id]
	if !ok {
		return ledger.ErrNotFound
	}
	now := time.Now().UTC()
	apply(file, now)
	file.UpdatedAt = now
	return nil
}

func (l *Ledger) snapshot(keep func(*ledger.UploadedFile) bool) []ledger.UploadedFile {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]ledger.UploadedFile, 0, len(l.files))
	for _, f := range l.files {
		if keep(f) {
			out = append(out, *f)
		}
	}
	return out
}

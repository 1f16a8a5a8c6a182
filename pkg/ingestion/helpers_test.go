package ingestion

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/skuflow/platform/pkg/blobstore"
	"github.com/skuflow/platform/pkg/catalog"
	"github.com/skuflow/platform/pkg/ledger"
	"github.com/skuflow/platform/pkg/store/memory"
)

type fixture struct {
	ledger  *memory.Ledger
	catalog *memory.Catalog
	blobs   *blobstore.LocalStore
	events  *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	blobs, err := blobstore.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create blob store: %v", err)
	}
	return &fixture{
		ledger:  memory.NewLedger(),
		catalog: memory.NewCatalog(),
		blobs:   blobs,
		events:  &recordingPublisher{},
	}
}

func (f *fixture) pipeline(c Catalog, b Blobs, opts Options) *Pipeline {
	if c == nil {
		c = f.catalog
	}
	if b == nil {
		b = f.blobs
	}
	return NewPipeline(f.ledger, c, b, f.events, opts)
}

// upload stores content and creates its pending ledger record.
func (f *fixture) upload(t *testing.T, name, content string, createdAt time.Time) (*ledger.UploadedFile, string) {
	t.Helper()
	ctx := context.Background()
	path, err := f.blobs.Put(ctx, name, []byte(content))
	if err != nil {
		t.Fatalf("failed to store blob: %v", err)
	}
	file := &ledger.UploadedFile{
		ID:          uuid.New(),
		FileName:    name,
		Checksum:    blobstore.Checksum([]byte(content + name + createdAt.String())),
		StoragePath: path,
		Status:      ledger.StatusPending,
		CreatedAt:   createdAt,
	}
	if err := f.ledger.Create(ctx, file); err != nil {
		t.Fatalf("failed to create ledger record: %v", err)
	}
	return file, path
}

func (f *fixture) record(t *testing.T, id uuid.UUID) *ledger.UploadedFile {
	t.Helper()
	file, err := f.ledger.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("failed to load ledger record: %v", err)
	}
	return file
}

func (f *fixture) product(t *testing.T, key string) *catalog.Product {
	t.Helper()
	product, err := f.catalog.FindByUniqueKey(context.Background(), key)
	if err != nil {
		t.Fatalf("expected product %q: %v", key, err)
	}
	return product
}

func restore(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to restore blob: %v", err)
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return nil
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == eventType {
			n++
		}
	}
	return n
}

// brokenBlobs serves content that fails with readErr once it is exhausted.
type brokenBlobs struct {
	content string
	readErr error
	deleted bool
}

func (b *brokenBlobs) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	return io.NopCloser(io.MultiReader(strings.NewReader(b.content), errReader{b.readErr})), nil
}

func (b *brokenBlobs) Delete(ctx context.Context, path string) error {
	b.deleted = true
	return nil
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

// gatedCatalog blocks the reset step until the gate opens or ctx ends.
type gatedCatalog struct {
	Catalog
	entered chan struct{}
	gate    chan struct{}
}

func newGatedCatalog(inner Catalog) *gatedCatalog {
	return &gatedCatalog{Catalog: inner, entered: make(chan struct{}, 1), gate: make(chan struct{})}
}

func (g *gatedCatalog) DeleteByFile(ctx context.Context, fileID uuid.UUID) (int64, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	select {
	case <-g.gate:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	return g.Catalog.DeleteByFile(ctx, fileID)
}

// orderedCatalog serializes upserts and records the commit order per key.
type orderedCatalog struct {
	Catalog
	mu      sync.Mutex
	commits map[string][]uuid.UUID
}

func (o *orderedCatalog) Upsert(ctx context.Context, file *ledger.UploadedFile, row catalog.Row) (catalog.Outcome, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	outcome, err := o.Catalog.Upsert(ctx, file, row)
	if err == nil {
		if o.commits == nil {
			o.commits = make(map[string][]uuid.UUID)
		}
		o.commits[row.UniqueKey] = append(o.commits[row.UniqueKey], file.ID)
	}
	return outcome, err
}

// cancellingCatalog cancels the run after the first successful upsert.
type cancellingCatalog struct {
	Catalog
	cancel context.CancelFunc
}

func (c *cancellingCatalog) Upsert(ctx context.Context, file *ledger.UploadedFile, row catalog.Row) (catalog.Outcome, error) {
	outcome, err := c.Catalog.Upsert(ctx, file, row)
	c.cancel()
	return outcome, err
}

var errDiskGone = errors.New("disk gone")

func strPtr(s string) *string { return &s }

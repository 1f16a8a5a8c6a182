package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/skuflow/platform/pkg/catalog"
	"github.com/skuflow/platform/pkg/ledger"
)

type Catalog struct {
	mu            sync.Mutex
	products      map[string]*catalog.Product
	versions      []catalog.Version
	nextProductID uint64
	nextVersionID uint64
}

func NewCatalog() *Catalog {
	return &Catalog{products: make(map[string]*catalog.Product)}
}

func (c *Catalog) Upsert(ctx context.Context, file *ledger.UploadedFile, row catalog.Row) (catalog.Outcome, error) {
	if row.UniqueKey == "" {
		return "", catalog.ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	outcome := catalog.OutcomeInserted
	if existing, ok := c.products[row.UniqueKey]; ok {
		outcome = catalog.OutcomeUpdated
		existing.Attributes = row.Attributes
		existing.UploadedFileID = file.ID
		existing.UpdatedAt = now
	} else {
		c.nextProductID++
		c.products[row.UniqueKey] = &catalog.Product{
			ID:             c.nextProductID,
			UniqueKey:      row.UniqueKey,
			Attributes:     row.Attributes,
			UploadedFileID: file.ID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
	}

	c.nextVersionID++
	c.versions = append(c.versions, catalog.Version{
		ID:             c.nextVersionID,
		UniqueKey:      row.UniqueKey,
		Attributes:     row.Attributes,
		UploadedFileID: file.ID,
		FileName:       file.FileName,
		FileCreatedAt:  file.CreatedAt,
		Operation:      outcome,
		CreatedAt:      now,
	})
	return outcome, nil
}

func (c *Catalog) DeleteByFile(ctx context.Context, fileID uuid.UUID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var deleted int64
	for key, p := range c.products {
		if p.UploadedFileID == fileID {
			delete(c.products, key)
			deleted++
		}
	}
	kept := c.versions[:0]
	for _, v := range c.versions {
		if v.UploadedFileID != fileID {
			kept = append(kept, v)
		}
	}
	c.versions = kept
	return deleted, nil
}

func (c *Catalog) FindByUniqueKey(ctx context.Context, key string) (*catalog.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[key]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	out := *p
	return &out, nil
}

func (c *Catalog) FindByFile(ctx context.Context, fileID uuid.UUID, limit int) ([]catalog.Product, error) {
	products := c.filter(func(p *catalog.Product) bool { return p.UploadedFileID == fileID })
	if limit > 0 && len(products) > limit {
		products = products[:limit]
	}
	return products, nil
}

func (c *Catalog) FindByFileAndKeys(ctx context.Context, fileID uuid.UUID, keys []string) ([]catalog.Product, error) {
	wanted := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		wanted[k] = struct{}{}
	}
	return c.filter(func(p *catalog.Product) bool {
		_, ok := wanted[p.UniqueKey]
		return ok && p.UploadedFileID == fileID
	}), nil
}

func (c *Catalog) CountByFile(ctx context.Context, fileID uuid.UUID) (int64, error) {
	products, _ := c.FindByFile(ctx, fileID, 0)
	return int64(len(products)), nil
}

func (c *Catalog) CountPerFile(ctx context.Context) (map[uuid.UUID]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	counts := make(map[uuid.UUID]int64)
	for _, p := range c.products {
		counts[p.UploadedFileID]++
	}
	return counts, nil
}

func (c *Catalog) CountDistinctKeys(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(len(c.products)), nil
}

func (c *Catalog) Sample(ctx context.Context, limit int) ([]catalog.Product, error) {
	if limit <= 0 {
		limit = 10
	}
	products := c.filter(func(*catalog.Product) bool { return true })
	if len(products) > limit {
		products = products[:limit]
	}
	return products, nil
}

func (c *Catalog) Versions(ctx context.Context, key string) ([]catalog.Version, error) {
	c.mu.Lock()
	var out []catalog.Version
	for _, v := range c.versions {
		if v.UniqueKey == key {
			out = append(out, v)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].FileCreatedAt.Equal(out[j].FileCreatedAt) {
			return out[i].FileCreatedAt.Before(out[j].FileCreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// filter returns matching products ordered by id.
func (c *Catalog) filter(keep func(*catalog.Product) bool) []catalog.Product {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []catalog.Product
	for _, p := range c.products {
		if keep(p) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

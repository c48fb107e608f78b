package services

import (
	"context"
	"sync"

	"live-shopping-platform/internal/models"

	"github.com/shopspring/decimal"
)

// MockCatalogService provides a canned catalog for testing/demo
type MockCatalogService struct {
	mu      sync.RWMutex
	batches map[int64]*BatchInfo
}

// NewMockCatalogService creates a mock catalog seeded with sample batches
func NewMockCatalogService() *MockCatalogService {
	catalog := &MockCatalogService{batches: make(map[int64]*BatchInfo)}
	catalog.SetBatch(&BatchInfo{
		BatchID:      1,
		ProductID:    101,
		ProductName:  "Blue Dream 3.5g",
		BasePrice:    decimal.NewFromFloat(35.00),
		AvailableQty: decimal.NewFromInt(200),
	})
	catalog.SetBatch(&BatchInfo{
		BatchID:      2,
		ProductID:    102,
		ProductName:  "OG Kush 7g",
		BasePrice:    decimal.NewFromFloat(60.00),
		AvailableQty: decimal.NewFromInt(80),
	})
	catalog.SetBatch(&BatchInfo{
		BatchID:      3,
		ProductID:    103,
		ProductName:  "Sour Diesel Pre-Roll",
		BasePrice:    decimal.NewFromFloat(12.50),
		AvailableQty: decimal.NewFromInt(500),
	})
	return catalog
}

// SetBatch adds or replaces a batch in the mock catalog
func (c *MockCatalogService) SetBatch(info *BatchInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches[info.BatchID] = info
}

// ResolveBatch looks up a batch by ID
func (c *MockCatalogService) ResolveBatch(ctx context.Context, batchID int64) (*BatchInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info, ok := c.batches[batchID]
	if !ok {
		return nil, models.ErrBatchNotFound
	}
	out := *info
	return &out, nil
}

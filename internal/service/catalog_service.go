package service

import (
	"context"
	"fmt"
	"time"

	"noteshub/internal/models"
	"noteshub/internal/redisclient"
	"noteshub/internal/store"
	"noteshub/internal/util"

	"go.uber.org/zap"
)

// CatalogService serves the read-only browse surface: product listings,
// product detail and category lists, with read-through Redis caching
type CatalogService struct {
	store    *store.Store
	redis    *redisclient.Client
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(store *store.Store, redis *redisclient.Client, cacheTTL time.Duration) *CatalogService {
	return &CatalogService{
		store:    store,
		redis:    redis,
		cacheTTL: cacheTTL,
		logger:   util.GetLogger(),
	}
}

// ProductListResponse is a page of the catalog
type ProductListResponse struct {
	Products    []models.Product `json:"products"`
	TotalCount  int              `json:"total_count"`
	TotalPages  int              `json:"total_pages"`
	CurrentPage int              `json:"current_page"`
}

// ListProducts returns active products matching the filter
func (cs *CatalogService) ListProducts(ctx context.Context, filter store.ProductFilter) (*ProductListResponse, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListProducts")
	defer span.End()

	if filter.Limit <= 0 {
		filter.Limit = 12
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}

	cacheKey := fmt.Sprintf("catalog:products:%s:%s:%s:%s:%s:%d:%d",
		filter.BatchID, filter.BranchID, filter.SemesterID, filter.TypeID,
		filter.Search, filter.Page, filter.Limit)

	var cached ProductListResponse
	if hit, err := cs.redis.GetJSON(ctx, cacheKey, &cached); err != nil {
		cs.logger.Warn("Catalog cache read failed", zap.Error(err))
	} else if hit {
		util.CatalogCacheHitsTotal.Inc()
		return &cached, nil
	}

	products, total, err := cs.store.GetProducts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	resp := &ProductListResponse{
		Products:    products,
		TotalCount:  total,
		TotalPages:  (total + filter.Limit - 1) / filter.Limit,
		CurrentPage: filter.Page,
	}

	if err := cs.redis.SetJSON(ctx, cacheKey, resp, cs.cacheTTL); err != nil {
		cs.logger.Warn("Catalog cache write failed", zap.Error(err))
	}

	return resp, nil
}

// GetProduct returns one active product
func (cs *CatalogService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.GetProduct")
	defer span.End()

	cacheKey := "catalog:product:" + id

	var cached models.Product
	if hit, err := cs.redis.GetJSON(ctx, cacheKey, &cached); err != nil {
		cs.logger.Warn("Product cache read failed", zap.Error(err))
	} else if hit {
		util.CatalogCacheHitsTotal.Inc()
		return &cached, nil
	}

	product, err := cs.store.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := cs.redis.SetJSON(ctx, cacheKey, product, cs.cacheTTL); err != nil {
		cs.logger.Warn("Product cache write failed", zap.Error(err))
	}

	return product, nil
}

// ListCategories returns all values of one category kind with active
// product counts
func (cs *CatalogService) ListCategories(ctx context.Context, kind string) ([]models.Category, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListCategories")
	defer span.End()

	cacheKey := "catalog:categories:" + kind

	var cached []models.Category
	if hit, err := cs.redis.GetJSON(ctx, cacheKey, &cached); err != nil {
		cs.logger.Warn("Category cache read failed", zap.Error(err))
	} else if hit {
		util.CatalogCacheHitsTotal.Inc()
		return cached, nil
	}

	categories, err := cs.store.GetCategories(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}

	if err := cs.redis.SetJSON(ctx, cacheKey, categories, cs.cacheTTL); err != nil {
		cs.logger.Warn("Category cache write failed", zap.Error(err))
	}

	return categories, nil
}

// SetProductActive toggles a product's availability and invalidates
// the catalog cache
func (cs *CatalogService) SetProductActive(ctx context.Context, id string, active bool) error {
	if err := cs.store.SetProductActive(ctx, id, active); err != nil {
		return err
	}

	if err := cs.redis.Delete(ctx, "catalog:product:"+id); err != nil {
		cs.logger.Warn("Product cache invalidation failed", zap.Error(err))
	}
	if err := cs.redis.DeleteByPrefix(ctx, "catalog:products:"); err != nil {
		cs.logger.Warn("Catalog cache invalidation failed", zap.Error(err))
	}
	return nil
}

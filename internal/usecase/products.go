package usecase

import (
	"context"
	"time"

	"AgriCast/internal/domain/models"
	domrepo "AgriCast/internal/domain/repository"
	"AgriCast/pkg/cache"
)

// ProductsUseCase lists the product catalog through a short-lived cache.
type ProductsUseCase struct {
	catalog domrepo.ProductCatalog
	cache   cache.Service
	ttl     time.Duration
}

// NewProductsUseCase creates the usecase; a nil cache reads the catalog every time.
func NewProductsUseCase(catalog domrepo.ProductCatalog, c cache.Service, ttl time.Duration) *ProductsUseCase {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ProductsUseCase{catalog: catalog, cache: c, ttl: ttl}
}

func (uc *ProductsUseCase) List(ctx context.Context) ([]models.Product, error) {
	products, err := cache.GetOrLoad(ctx, uc.cache, cache.GenerateKey("products", "all"), uc.ttl, uc.catalog.ListProducts)
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []models.Product{}
	}
	return products, nil
}

// Invalidate forgets the cached catalog.
func (uc *ProductsUseCase) Invalidate(ctx context.Context) error {
	if uc.cache == nil {
		return nil
	}
	return uc.cache.Delete(ctx, cache.GenerateKey("products", "all"))
}

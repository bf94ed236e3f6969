package products

import (
	"context"
	"strings"

	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/shared"
)

// Service is the read side of the product catalog.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

// FindByName resolves a product by its exact name after trimming blanks.
func (s *Service) FindByName(ctx context.Context, name string) (Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Product{}, shared.ErrRequiredField
	}
	return s.repo.FindByName(ctx, name)
}

// ListActive returns all active products ordered by name.
func (s *Service) ListActive(ctx context.Context) ([]Product, error) {
	active := true
	items, _, err := s.repo.List(ctx, shared.ListFilters{IsActive: &active})
	return items, err
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

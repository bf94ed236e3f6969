package warehouses

import (
	"context"

	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Warehouse, int, error) {
	return s.repo.List(ctx, filters)
}

// ListActive returns every operational warehouse ordered by code.
func (s *Service) ListActive(ctx context.Context) ([]Warehouse, error) {
	items, _, err := s.repo.List(ctx, shared.ListFilters{Status: string(StatusActive)})
	return items, err
}

func (s *Service) Get(ctx context.Context, id int64) (Warehouse, error) {
	if id <= 0 {
		return Warehouse{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, warehouse Warehouse) (Warehouse, error) {
	if err := s.validate(warehouse); err != nil {
		return Warehouse{}, err
	}
	return s.repo.Create(ctx, warehouse)
}

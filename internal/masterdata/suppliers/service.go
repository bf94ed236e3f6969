package suppliers

import (
	"context"
	"strings"

	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, id int64) (Supplier, error) {
	if id <= 0 {
		return Supplier{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

// Resolve returns the supplier by id, or by exact name creating it when
// missing. The id wins when both are supplied.
func (s *Service) Resolve(ctx context.Context, id int64, name string) (Supplier, bool, error) {
	if id > 0 {
		sup, err := s.repo.Get(ctx, id)
		return sup, false, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Supplier{}, false, shared.ErrRequiredField
	}
	return s.repo.GetOrCreateByName(ctx, name)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

package warehouses

import (
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/shared"
)

func (s *Service) validate(w Warehouse) error {
	if strings.TrimSpace(w.Code) == "" {
		return fmt.Errorf("%w: warehouse code", shared.ErrRequiredField)
	}
	if strings.TrimSpace(w.Name) == "" {
		return fmt.Errorf("%w: warehouse name", shared.ErrRequiredField)
	}
	switch w.Status {
	case "", StatusActive, StatusInactive:
	default:
		return fmt.Errorf("%w: unknown warehouse status %q", shared.ErrValidation, w.Status)
	}
	return nil
}

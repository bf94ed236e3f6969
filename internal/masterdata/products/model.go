package products

import (
	"time"
)

// Product represents a catalog entry. The stock engine only reads it.
type Product struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Unit      string    `json:"unit"`
	MinStock  *int64    `json:"min_stock,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Threshold returns the product's minimum stock, or fallback when unset.
func (p Product) Threshold(fallback int64) int64 {
	if p.MinStock != nil {
		return *p.MinStock
	}
	return fallback
}

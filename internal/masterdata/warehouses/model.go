package warehouses

import (
	"time"
)

// Status reports whether a warehouse accepts stock movements.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Warehouse represents a warehouse entity
type Warehouse struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Phone     string    `json:"phone"`
	Status    Status    `json:"status"`
	ManagerID int64     `json:"manager_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the warehouse is operational.
func (w Warehouse) Active() bool {
	return w.Status == StatusActive
}

package inventory

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// ScopeMode tells how a stock listing selects warehouses.
type ScopeMode uint8

const (
	// ScopeUnfiltered means the caller gave no warehouse filter.
	ScopeUnfiltered ScopeMode = iota
	// ScopeWarehouse restricts the listing to one warehouse.
	ScopeWarehouse
	// ScopeAll means the caller explicitly asked for every warehouse.
	ScopeAll
)

func (m ScopeMode) String() string {
	switch m {
	case ScopeWarehouse:
		return "warehouse"
	case ScopeAll:
		return "all"
	default:
		return "unfiltered"
	}
}

// WarehouseScope is the warehouse filter of a stock snapshot. Unfiltered
// and AllWarehouses select the same rows; the mode is echoed back so
// clients can tell a default view from an explicit "all".
type WarehouseScope struct {
	mode        ScopeMode
	warehouseID int64
}

// ErrInvalidScope is returned by ParseScope.
var ErrInvalidScope = errors.New("inventory: invalid warehouse scope")

// Unfiltered returns the default scope.
func Unfiltered() WarehouseScope { return WarehouseScope{mode: ScopeUnfiltered} }

// AllWarehouses returns the explicit all-warehouses scope.
func AllWarehouses() WarehouseScope { return WarehouseScope{mode: ScopeAll} }

// ByWarehouse restricts a listing to one warehouse.
func ByWarehouse(id int64) WarehouseScope {
	return WarehouseScope{mode: ScopeWarehouse, warehouseID: id}
}

// ParseScope reads the warehouse query parameter: empty is Unfiltered,
// "all" is AllWarehouses, a positive id is ByWarehouse.
func ParseScope(raw string) (WarehouseScope, error) {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "":
		return Unfiltered(), nil
	case "all":
		return AllWarehouses(), nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return WarehouseScope{}, ErrInvalidScope
	}
	return ByWarehouse(id), nil
}

// Mode returns the scope mode.
func (s WarehouseScope) Mode() ScopeMode { return s.mode }

// WarehouseID returns the selected warehouse and whether the scope filters.
func (s WarehouseScope) WarehouseID() (int64, bool) {
	if s.mode != ScopeWarehouse {
		return 0, false
	}
	return s.warehouseID, true
}

// Includes reports whether rows of warehouseID fall inside the scope.
func (s WarehouseScope) Includes(warehouseID int64) bool {
	id, ok := s.WarehouseID()
	return !ok || id == warehouseID
}

func (s WarehouseScope) String() string {
	if id, ok := s.WarehouseID(); ok {
		return "warehouse:" + strconv.FormatInt(id, 10)
	}
	return s.mode.String()
}

// MarshalJSON renders {"mode": ..., "warehouse_id": ...}.
func (s WarehouseScope) MarshalJSON() ([]byte, error) {
	payload := struct {
		Mode        string `json:"mode"`
		WarehouseID int64  `json:"warehouse_id,omitempty"`
	}{Mode: s.mode.String(), WarehouseID: s.warehouseID}
	return json.Marshal(payload)
}

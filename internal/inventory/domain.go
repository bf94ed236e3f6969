package inventory

import (
	"errors"
	"fmt"
	"time"
)

// Direction tells whether a movement adds or removes stock.
type Direction string

const (
	// DirectionIn represents an inbound movement.
	DirectionIn Direction = "IN"
	// DirectionOut represents an outbound movement.
	DirectionOut Direction = "OUT"
)

// Key identifies one ledger row.
type Key struct {
	WarehouseID int64
	ProductID   int64
}

// Less orders keys by warehouse then product. Multi-row documents lock in
// this order.
func (k Key) Less(other Key) bool {
	if k.WarehouseID != other.WarehouseID {
		return k.WarehouseID < other.WarehouseID
	}
	return k.ProductID < other.ProductID
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%d", k.WarehouseID, k.ProductID)
}

// StockEntry is the ledger row for a (warehouse, product) pair.
// 0 <= Available <= OnHand always holds.
type StockEntry struct {
	WarehouseID int64     `json:"warehouse_id"`
	ProductID   int64     `json:"product_id"`
	OnHand      int64     `json:"on_hand"`
	Available   int64     `json:"available"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Key returns the entry's ledger key.
func (e StockEntry) Key() Key {
	return Key{WarehouseID: e.WarehouseID, ProductID: e.ProductID}
}

// Level returns the quantities of the entry.
func (e StockEntry) Level() Level {
	return Level{OnHand: e.OnHand, Available: e.Available}
}

func (e StockEntry) valid() bool {
	return e.OnHand >= 0 && e.Available >= 0 && e.Available <= e.OnHand
}

// Level is the read-only quantity snapshot returned by Inspect.
type Level struct {
	OnHand    int64 `json:"on_hand"`
	Available int64 `json:"available"`
}

// Movement describes a single ledger mutation requested by a document.
type Movement struct {
	WarehouseID int64
	ProductID   int64
	Quantity    int64
	Direction   Direction
	RefModule   string
	RefCode     string
	Note        string
	// ProductName labels InsufficientStockError when set.
	ProductName string
}

// Key returns the ledger key touched by the movement.
func (m Movement) Key() Key {
	return Key{WarehouseID: m.WarehouseID, ProductID: m.ProductID}
}

// StockCardEntry is one row of a pair's movement history.
type StockCardEntry struct {
	WarehouseID int64     `json:"warehouse_id"`
	ProductID   int64     `json:"product_id"`
	RefModule   string    `json:"ref_module"`
	RefCode     string    `json:"ref_code"`
	QtyIn       int64     `json:"qty_in"`
	QtyOut      int64     `json:"qty_out"`
	BalanceQty  int64     `json:"balance_qty"`
	Note        string    `json:"note"`
	PostedAt    time.Time `json:"posted_at"`
}

// StockCardFilter filters card entries.
type StockCardFilter struct {
	WarehouseID int64
	ProductID   int64
	From        time.Time
	To          time.Time
	Limit       int
}

// ErrInvalidQuantity indicates a non-positive quantity presented to a mutation.
var ErrInvalidQuantity = errors.New("inventory: quantity must be positive")

// ErrInsufficientStock matches every InsufficientStockError.
var ErrInsufficientStock = errors.New("inventory: insufficient stock")

// ErrInvalidKey indicates a missing warehouse or product id.
var ErrInvalidKey = errors.New("inventory: warehouse and product required")

// ErrQuantityOverflow is returned when an increase would overflow the counter.
var ErrQuantityOverflow = errors.New("inventory: quantity overflow")

// ErrInvalidRange indicates a stock card range ending before it starts.
var ErrInvalidRange = errors.New("inventory: range end before start")

// ErrCorruptEntry signals a ledger row that violates its invariants.
var ErrCorruptEntry = errors.New("inventory: stock entry out of range")

// InsufficientStockError reports the shortfall of a rejected decrease.
type InsufficientStockError struct {
	WarehouseID int64
	ProductID   int64
	// Product is the display name when the caller knows it.
	Product   string
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	product := e.Product
	if product == "" {
		product = fmt.Sprintf("#%d", e.ProductID)
	}
	return fmt.Sprintf("inventory: insufficient stock for %s in warehouse %d: available %d, requested %d",
		product, e.WarehouseID, e.Available, e.Requested)
}

// Is makes errors.Is(err, ErrInsufficientStock) match.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Shortfall is the quantity missing to satisfy the request.
func (e *InsufficientStockError) Shortfall() int64 {
	if e.Requested <= e.Available {
		return 0
	}
	return e.Requested - e.Available
}

package inventory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"
)

// TxRepository exposes the ledger statements the Engine runs inside a
// caller's transaction.
type TxRepository interface {
	// LockEntry returns the entry for key, creating a zero row when none
	// exists, and holds its row lock until the transaction ends.
	LockEntry(ctx context.Context, key Key) (StockEntry, error)
	SaveEntry(ctx context.Context, entry StockEntry) error
	InsertCardEntry(ctx context.Context, card StockCardEntry) error
}

// Recorder receives movement metrics. Implemented by observability.Metrics.
type Recorder interface {
	RecordStockMovement(direction string, quantity int64)
	RecordStockRejection(reason string)
}

// Engine is the only writer of stock entries. It never opens transactions;
// callers pass the TxRepository of the unit of work the mutation belongs to.
type Engine struct {
	recorder Recorder
	now      func() time.Time
}

// NewEngine constructs an Engine. recorder may be nil.
func NewEngine(recorder Recorder) *Engine {
	return &Engine{recorder: recorder, now: func() time.Time { return time.Now().UTC() }}
}

// GetOrCreate returns the locked entry for key, zero when new.
func (e *Engine) GetOrCreate(ctx context.Context, tx TxRepository, key Key) (StockEntry, error) {
	if key.WarehouseID == 0 || key.ProductID == 0 {
		return StockEntry{}, ErrInvalidKey
	}
	entry, err := tx.LockEntry(ctx, key)
	if err != nil {
		return StockEntry{}, fmt.Errorf("inventory: lock entry %s: %w", key, err)
	}
	if !entry.valid() {
		return StockEntry{}, fmt.Errorf("%w: %s on_hand=%d available=%d", ErrCorruptEntry, key, entry.OnHand, entry.Available)
	}
	return entry, nil
}

// Increase adds m.Quantity to on_hand and available.
func (e *Engine) Increase(ctx context.Context, tx TxRepository, m Movement) (StockEntry, error) {
	m.Direction = DirectionIn
	return e.apply(ctx, tx, m)
}

// Decrease removes m.Quantity from on_hand and available. It fails with
// *InsufficientStockError when available is short.
func (e *Engine) Decrease(ctx context.Context, tx TxRepository, m Movement) (StockEntry, error) {
	m.Direction = DirectionOut
	return e.apply(ctx, tx, m)
}

// Apply runs several movements, locking keys in (warehouse, product) order.
// Movements on the same key keep their relative order. The returned entries
// follow the order of moves.
func (e *Engine) Apply(ctx context.Context, tx TxRepository, moves []Movement) ([]StockEntry, error) {
	order := make([]int, len(moves))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return moves[order[a]].Key().Less(moves[order[b]].Key())
	})
	out := make([]StockEntry, len(moves))
	for _, idx := range order {
		entry, err := e.apply(ctx, tx, moves[idx])
		if err != nil {
			return nil, err
		}
		out[idx] = entry
	}
	return out, nil
}

func (e *Engine) apply(ctx context.Context, tx TxRepository, m Movement) (StockEntry, error) {
	if m.Quantity <= 0 {
		e.reject("invalid_quantity")
		return StockEntry{}, ErrInvalidQuantity
	}
	entry, err := e.GetOrCreate(ctx, tx, m.Key())
	if err != nil {
		return StockEntry{}, err
	}

	card := StockCardEntry{
		WarehouseID: m.WarehouseID,
		ProductID:   m.ProductID,
		RefModule:   m.RefModule,
		RefCode:     m.RefCode,
		Note:        m.Note,
		PostedAt:    e.now(),
	}
	switch m.Direction {
	case DirectionIn:
		if entry.OnHand > math.MaxInt64-m.Quantity {
			e.reject("overflow")
			return StockEntry{}, ErrQuantityOverflow
		}
		entry.OnHand += m.Quantity
		entry.Available += m.Quantity
		card.QtyIn = m.Quantity
	case DirectionOut:
		if entry.Available < m.Quantity {
			e.reject("insufficient_stock")
			return StockEntry{}, &InsufficientStockError{
				WarehouseID: m.WarehouseID,
				ProductID:   m.ProductID,
				Product:     m.ProductName,
				Available:   entry.Available,
				Requested:   m.Quantity,
			}
		}
		entry.OnHand -= m.Quantity
		entry.Available -= m.Quantity
		card.QtyOut = m.Quantity
	default:
		return StockEntry{}, fmt.Errorf("inventory: unknown direction %q", m.Direction)
	}
	entry.UpdatedAt = card.PostedAt

	if err := tx.SaveEntry(ctx, entry); err != nil {
		return StockEntry{}, fmt.Errorf("inventory: save entry %s: %w", m.Key(), err)
	}
	card.BalanceQty = entry.OnHand
	if err := tx.InsertCardEntry(ctx, card); err != nil {
		return StockEntry{}, fmt.Errorf("inventory: stock card %s: %w", m.Key(), err)
	}
	if e.recorder != nil {
		e.recorder.RecordStockMovement(string(m.Direction), m.Quantity)
	}
	return entry, nil
}

func (e *Engine) reject(reason string) {
	if e.recorder != nil {
		e.recorder.RecordStockRejection(reason)
	}
}

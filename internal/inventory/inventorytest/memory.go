// Package inventorytest provides an in-memory stock ledger for tests of
// packages that post movements through inventory.Engine.
package inventorytest

import (
	"context"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
)

// Ledger is an in-memory inventory.TxRepository. WithTx serialises units of
// work and restores the previous state when fn fails, like a rollback.
type Ledger struct {
	txMu    sync.Mutex
	mu      sync.Mutex
	entries map[inventory.Key]inventory.StockEntry
	cards   []inventory.StockCardEntry
	onLock  func(inventory.Key) error
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[inventory.Key]inventory.StockEntry)}
}

// Seed sets on_hand and available of a pair to qty.
func (l *Ledger) Seed(warehouseID, productID, qty int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := inventory.Key{WarehouseID: warehouseID, ProductID: productID}
	l.entries[key] = inventory.StockEntry{WarehouseID: warehouseID, ProductID: productID, OnHand: qty, Available: qty, UpdatedAt: time.Now().UTC()}
}

// Entry returns the stored entry and whether it exists.
func (l *Ledger) Entry(warehouseID, productID int64) (inventory.StockEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[inventory.Key{WarehouseID: warehouseID, ProductID: productID}]
	return entry, ok
}

// OnHand returns the on-hand quantity of a pair, zero when unknown.
func (l *Ledger) OnHand(warehouseID, productID int64) int64 {
	entry, _ := l.Entry(warehouseID, productID)
	return entry.OnHand
}

// Len reports how many entries exist.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Cards returns a copy of the stock card rows.
func (l *Ledger) Cards() []inventory.StockCardEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]inventory.StockCardEntry(nil), l.cards...)
}

// OnLock installs a hook run before each LockEntry; a non-nil error fails
// the lock. The hook may call Seed to simulate a concurrent writer.
func (l *Ledger) OnLock(fn func(inventory.Key) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onLock = fn
}

// Checkpoint captures the current state and returns a func restoring it.
func (l *Ledger) Checkpoint() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := make(map[inventory.Key]inventory.StockEntry, len(l.entries))
	for k, v := range l.entries {
		entries[k] = v
	}
	cards := len(l.cards)
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.entries = entries
		l.cards = l.cards[:cards]
	}
}

// Lock serialises a unit of work; the returned func releases it.
func (l *Ledger) Lock() func() {
	l.txMu.Lock()
	return l.txMu.Unlock
}

// WithTx runs fn as one unit of work.
func (l *Ledger) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	defer l.Lock()()
	restore := l.Checkpoint()
	if err := fn(ctx, l); err != nil {
		restore()
		return err
	}
	return nil
}

// Inspect reads an entry without creating it.
func (l *Ledger) Inspect(_ context.Context, key inventory.Key) (inventory.StockEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.entries[key]; ok {
		return entry, nil
	}
	return inventory.StockEntry{WarehouseID: key.WarehouseID, ProductID: key.ProductID}, nil
}

// Level is Inspect reduced to quantities.
func (l *Ledger) Level(ctx context.Context, key inventory.Key) (inventory.Level, error) {
	entry, err := l.Inspect(ctx, key)
	return entry.Level(), err
}

func (l *Ledger) LockEntry(_ context.Context, key inventory.Key) (inventory.StockEntry, error) {
	l.mu.Lock()
	hook := l.onLock
	l.mu.Unlock()
	if hook != nil {
		if err := hook(key); err != nil {
			return inventory.StockEntry{}, err
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[key]
	if !ok {
		entry = inventory.StockEntry{WarehouseID: key.WarehouseID, ProductID: key.ProductID, UpdatedAt: time.Now().UTC()}
		l.entries[key] = entry
	}
	return entry, nil
}

func (l *Ledger) SaveEntry(_ context.Context, entry inventory.StockEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[entry.Key()] = entry
	return nil
}

func (l *Ledger) InsertCardEntry(_ context.Context, card inventory.StockCardEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cards = append(l.cards, card)
	return nil
}

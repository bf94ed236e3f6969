// Package debttest provides an in-memory debt store for tests.
package debttest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-wms/internal/debt"
)

// Store implements debt.TxRepository and debt.RepositoryPort in memory.
type Store struct {
	txMu     sync.Mutex
	mu       sync.Mutex
	debts    map[int64]debt.Debt
	payments map[int64][]debt.Payment
	nextID   int64
	// FailInsert makes InsertDebt fail when set.
	FailInsert error
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{debts: map[int64]debt.Debt{}, payments: map[int64][]debt.Payment{}}
}

// Checkpoint captures the state and returns a func restoring it.
func (s *Store) Checkpoint() func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	debts := make(map[int64]debt.Debt, len(s.debts))
	for k, v := range s.debts {
		debts[k] = v
	}
	payments := make(map[int64][]debt.Payment, len(s.payments))
	for k, v := range s.payments {
		payments[k] = append([]debt.Payment(nil), v...)
	}
	next := s.nextID
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.debts, s.payments, s.nextID = debts, payments, next
	}
}

// WithTx runs fn and restores the previous state when it fails.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, debt.TxRepository) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	restore := s.Checkpoint()
	if err := fn(ctx, s); err != nil {
		restore()
		return err
	}
	return nil
}

// ByNote returns the debt of a goods-in note.
func (s *Store) ByNote(noteID int64) (debt.Debt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.debts {
		if d.GoodsInNoteID == noteID {
			return d, true
		}
	}
	return debt.Debt{}, false
}

// Len reports how many debts exist.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.debts)
}

func (s *Store) Get(_ context.Context, id int64) (debt.Debt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.debts[id]
	if !ok {
		return debt.Debt{}, debt.ErrNotFound
	}
	return d, nil
}

func (s *Store) List(_ context.Context, filter debt.ListFilter, limit, offset int) ([]debt.Debt, int, error) {
	var out []debt.Debt
	for _, d := range s.sorted() {
		if filter.SupplierID > 0 && d.SupplierID != filter.SupplierID {
			continue
		}
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		out = append(out, d)
	}
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (s *Store) ListPayments(_ context.Context, debtID int64) ([]debt.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]debt.Payment(nil), s.payments[debtID]...), nil
}

func (s *Store) ListOutstanding(_ context.Context) ([]debt.Debt, error) {
	var out []debt.Debt
	for _, d := range s.sorted() {
		if d.Remaining.IsPositive() {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Store) sorted() []debt.Debt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]debt.Debt, 0, len(s.debts))
	for _, d := range s.debts {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) InsertDebt(_ context.Context, d debt.Debt) (int64, error) {
	if s.FailInsert != nil {
		return 0, s.FailInsert
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.debts {
		if existing.GoodsInNoteID == d.GoodsInNoteID {
			return 0, fmt.Errorf("debttest: note %d already has a debt", d.GoodsInNoteID)
		}
	}
	s.nextID++
	d.ID = s.nextID
	s.debts[d.ID] = d
	return d.ID, nil
}

func (s *Store) GetForUpdate(ctx context.Context, id int64) (debt.Debt, error) {
	return s.Get(ctx, id)
}

func (s *Store) GetByNoteForUpdate(_ context.Context, goodsInNoteID int64) (debt.Debt, error) {
	if d, ok := s.ByNote(goodsInNoteID); ok {
		return d, nil
	}
	return debt.Debt{}, debt.ErrNotFound
}

func (s *Store) CountPayments(_ context.Context, debtID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payments[debtID]), nil
}

func (s *Store) DeleteDebt(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.debts, id)
	delete(s.payments, id)
	return nil
}

func (s *Store) InsertPayment(_ context.Context, p debt.Payment) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	p.ID = s.nextID
	s.payments[p.DebtID] = append(s.payments[p.DebtID], p)
	return p.ID, nil
}

func (s *Store) UpdateRemaining(_ context.Context, id int64, remaining decimal.Decimal, status debt.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.debts[id]
	if !ok {
		return debt.ErrNotFound
	}
	d.Remaining, d.Status = remaining, status
	s.debts[id] = d
	return nil
}

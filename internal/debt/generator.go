package debt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TxRepository exposes debt statements run inside a caller's transaction.
type TxRepository interface {
	InsertDebt(ctx context.Context, d Debt) (int64, error)
	GetForUpdate(ctx context.Context, id int64) (Debt, error)
	GetByNoteForUpdate(ctx context.Context, goodsInNoteID int64) (Debt, error)
	CountPayments(ctx context.Context, debtID int64) (int, error)
	DeleteDebt(ctx context.Context, id int64) error
	InsertPayment(ctx context.Context, p Payment) (int64, error)
	UpdateRemaining(ctx context.Context, id int64, remaining decimal.Decimal, status Status) error
}

// DefaultTermDays is the payment term applied when none is configured.
const DefaultTermDays = 30

// Generator raises the payable of a goods-in note inside the note's
// transaction, so a failure here aborts the note.
type Generator struct {
	termDays int
	now      func() time.Time
}

// NewGenerator constructs a Generator with the given payment term.
func NewGenerator(termDays int) *Generator {
	if termDays <= 0 {
		termDays = DefaultTermDays
	}
	return &Generator{termDays: termDays, now: func() time.Time { return time.Now().UTC() }}
}

// TermDays returns the payment term.
func (g *Generator) TermDays() int {
	return g.termDays
}

// DueDate returns the due date of a note dated noteDate.
func (g *Generator) DueDate(noteDate time.Time) time.Time {
	y, m, d := noteDate.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, g.termDays)
}

// Generate creates the debt for a goods-in note.
func (g *Generator) Generate(ctx context.Context, tx TxRepository, in GenerateInput) (Debt, error) {
	if in.SupplierID == 0 || in.GoodsInNoteID == 0 {
		return Debt{}, ErrMissingReference
	}
	if in.Amount.IsNegative() {
		return Debt{}, ErrInvalidAmount
	}
	noteDate := in.NoteDate
	if noteDate.IsZero() {
		noteDate = g.now()
	}
	d := Debt{
		SupplierID:    in.SupplierID,
		GoodsInNoteID: in.GoodsInNoteID,
		NoteCode:      in.NoteCode,
		Type:          TypeGoodsInPayable,
		Amount:        in.Amount,
		Remaining:     in.Amount,
		Status:        statusFor(in.Amount, in.Amount),
		DueDate:       g.DueDate(noteDate),
		Note:          fmt.Sprintf("debt from goods-in note %s", in.NoteCode),
		CreatedAt:     g.now(),
	}
	d.UpdatedAt = d.CreatedAt
	id, err := tx.InsertDebt(ctx, d)
	if err != nil {
		return Debt{}, fmt.Errorf("debt: insert: %w", err)
	}
	d.ID = id
	return d, nil
}

// Cancel removes the debt of a goods-in note being deleted. It refuses once
// payments exist. A note without a debt is not an error.
func (g *Generator) Cancel(ctx context.Context, tx TxRepository, goodsInNoteID int64) error {
	d, err := tx.GetByNoteForUpdate(ctx, goodsInNoteID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	count, err := tx.CountPayments(ctx, d.ID)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrDebtHasPayments
	}
	return tx.DeleteDebt(ctx, d.ID)
}

package debt

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status of a debt record.
type Status string

const (
	StatusOpen    Status = "open"
	StatusPartial Status = "partial"
	StatusPaid    Status = "paid"
)

// TypeGoodsInPayable marks debts raised by goods-in notes.
const TypeGoodsInPayable = "goods_in_payable"

// Debt is the payable owed to a supplier for one goods-in note.
type Debt struct {
	ID            int64           `json:"id"`
	SupplierID    int64           `json:"supplier_id"`
	SupplierName  string          `json:"supplier_name,omitempty"`
	GoodsInNoteID int64           `json:"goods_in_note_id"`
	NoteCode      string          `json:"note_code,omitempty"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Remaining     decimal.Decimal `json:"amount_remaining"`
	Status        Status          `json:"status"`
	DueDate       time.Time       `json:"due_date"`
	Note          string          `json:"note"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Overdue reports an unpaid debt past its due date.
func (d Debt) Overdue(asOf time.Time) bool {
	return d.Remaining.IsPositive() && asOf.After(d.DueDate.AddDate(0, 0, 1))
}

// Payment is one settlement against a debt.
type Payment struct {
	ID        int64           `json:"id"`
	DebtID    int64           `json:"debt_id"`
	Amount    decimal.Decimal `json:"amount"`
	PaidAt    time.Time       `json:"paid_at"`
	CreatedBy int64           `json:"created_by,omitempty"`
	Note      string          `json:"note"`
}

// GenerateInput carries what the generator needs from a goods-in note.
type GenerateInput struct {
	SupplierID    int64
	GoodsInNoteID int64
	NoteCode      string
	Amount        decimal.Decimal
	NoteDate      time.Time
}

// PaymentInput registers a payment.
type PaymentInput struct {
	DebtID  int64
	Amount  decimal.Decimal
	PaidAt  time.Time
	Note    string
	ActorID int64
}

// ListFilter narrows debt listings.
type ListFilter struct {
	SupplierID int64
	Status     Status
	Page       int
	PerPage    int
}

// AgingBucket summarises remaining amounts by days past due.
type AgingBucket struct {
	Current   decimal.Decimal `json:"current"`
	Bucket30  decimal.Decimal `json:"days_1_30"`
	Bucket60  decimal.Decimal `json:"days_31_60"`
	Bucket90  decimal.Decimal `json:"days_61_90"`
	Bucket120 decimal.Decimal `json:"days_over_90"`
}

// Total sums every bucket.
func (b AgingBucket) Total() decimal.Decimal {
	return b.Current.Add(b.Bucket30).Add(b.Bucket60).Add(b.Bucket90).Add(b.Bucket120)
}

var (
	// ErrNotFound indicates a missing debt.
	ErrNotFound = errors.New("debt: not found")
	// ErrDebtHasPayments blocks removing a debt that was partly settled.
	ErrDebtHasPayments = errors.New("debt: payments already registered")
	// ErrInvalidAmount rejects non-positive payments and negative debts.
	ErrInvalidAmount = errors.New("debt: amount must be positive")
	// ErrOverpayment rejects payments above the remaining amount.
	ErrOverpayment = errors.New("debt: payment exceeds remaining amount")
	// ErrAlreadyPaid rejects payments on settled debts.
	ErrAlreadyPaid = errors.New("debt: already paid")
	// ErrMissingReference rejects generation without supplier or note.
	ErrMissingReference = errors.New("debt: supplier and goods-in note required")
)

func statusFor(amount, remaining decimal.Decimal) Status {
	switch {
	case !remaining.IsPositive():
		return StatusPaid
	case remaining.LessThan(amount):
		return StatusPartial
	default:
		return StatusOpen
	}
}

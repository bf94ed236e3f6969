package goodsin

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-wms/internal/debt"
)

// Module names this processor in stock cards, audit rows and idempotency keys.
const Module = "goods_in"

// CodePrefix prefixes generated note codes.
const CodePrefix = "NK"

// FormatCode renders the note code for a row id, e.g. NK-0012.
func FormatCode(id int64) string {
	return fmt.Sprintf("%s-%04d", CodePrefix, id)
}

// Note is a goods-in note header.
type Note struct {
	ID            int64           `json:"id"`
	Code          string          `json:"code"`
	SupplierID    int64           `json:"supplier_id"`
	SupplierCode  string          `json:"supplier_code,omitempty"`
	SupplierName  string          `json:"supplier_name,omitempty"`
	WarehouseID   int64           `json:"warehouse_id"`
	WarehouseName string          `json:"warehouse_name,omitempty"`
	CreatedBy     int64           `json:"created_by,omitempty"`
	CreatorName   string          `json:"creator_name,omitempty"`
	Note          string          `json:"note"`
	Total         decimal.Decimal `json:"total_amount"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Line is an accepted goods-in line.
type Line struct {
	ID          int64           `json:"id"`
	NoteID      int64           `json:"note_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

// RawLine is a line as submitted, before parsing.
type RawLine struct {
	ProductName string
	Quantity    string
	UnitPrice   string
}

// RejectReason explains why a submitted line was skipped.
type RejectReason string

const (
	RejectBlankName       RejectReason = "blank_product_name"
	RejectUnknownProduct  RejectReason = "product_not_found"
	RejectInactiveProduct RejectReason = "product_inactive"
	RejectInvalidQuantity RejectReason = "invalid_quantity"
	RejectInvalidPrice    RejectReason = "invalid_price"
)

// RejectedLine reports a skipped line by its submitted position.
type RejectedLine struct {
	Index       int          `json:"index"`
	ProductName string       `json:"product_name"`
	Reason      RejectReason `json:"reason"`
}

// CreateNoteInput carries a goods-in submission.
type CreateNoteInput struct {
	SupplierID      int64
	NewSupplierName string
	WarehouseID     int64
	Note            string
	Lines           []RawLine
	ActorID         int64
	// IdempotencyKey is the client supplied Idempotency-Key, optional.
	IdempotencyKey string
}

// Result is the outcome of CreateNote. Rejected lines do not fail the note.
type Result struct {
	Note            Note           `json:"note"`
	Lines           []Line         `json:"lines"`
	Rejected        []RejectedLine `json:"rejected"`
	Debt            debt.Debt      `json:"debt"`
	SupplierCreated bool           `json:"supplier_created"`
}

// Detail is a note with its lines.
type Detail struct {
	Note  Note   `json:"note"`
	Lines []Line `json:"lines"`
}

// ListFilter narrows note listings.
type ListFilter struct {
	From        time.Time
	To          time.Time
	Search      string
	WarehouseID int64
	Page        int
	PerPage     int
}

var (
	// ErrMissingSupplier indicates neither a known supplier id nor a new supplier name.
	ErrMissingSupplier = errors.New("goodsin: supplier required")
	// ErrInvalidWarehouse indicates a missing or inactive destination warehouse.
	ErrInvalidWarehouse = errors.New("goodsin: invalid warehouse")
	// ErrNotFound indicates a missing note.
	ErrNotFound = errors.New("goodsin: note not found")
	// ErrDuplicateRequest indicates a replayed Idempotency-Key.
	ErrDuplicateRequest = errors.New("goodsin: request already processed")
	// ErrInvalidRange indicates a listing range ending before it starts.
	ErrInvalidRange = errors.New("goodsin: range end before start")
)

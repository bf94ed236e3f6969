package goodsout

import (
	"errors"
	"fmt"
	"time"
)

// Module names this processor in stock cards, audit rows and idempotency keys.
const Module = "goods_out"

const (
	// TransferPrefix prefixes internal transfer codes.
	TransferPrefix = "XKNB"
	// IssuePrefix prefixes plain goods-out codes.
	IssuePrefix = "XK"
)

// Kind tells a transfer from a plain issue.
type Kind string

const (
	KindTransfer Kind = "transfer"
	KindIssue    Kind = "issue"
)

// FormatCode renders the note code for a row id.
func FormatCode(kind Kind, id int64) string {
	prefix := IssuePrefix
	if kind == KindTransfer {
		prefix = TransferPrefix
	}
	return fmt.Sprintf("%s-%04d", prefix, id)
}

// Note is a goods-out note header. DestinationWarehouseID is set only for
// internal transfers.
type Note struct {
	ID                     int64     `json:"id"`
	Code                   string    `json:"code"`
	Kind                   Kind      `json:"kind"`
	SourceWarehouseID      int64     `json:"source_warehouse_id"`
	SourceWarehouseName    string    `json:"source_warehouse_name,omitempty"`
	DestinationWarehouseID int64     `json:"destination_warehouse_id,omitempty"`
	DestinationName        string    `json:"destination_warehouse_name,omitempty"`
	CreatedBy              int64     `json:"created_by,omitempty"`
	CreatorName            string    `json:"creator_name,omitempty"`
	Note                   string    `json:"note"`
	CreatedAt              time.Time `json:"created_at"`
}

// Transfer reports whether the note moves stock between warehouses.
func (n Note) Transfer() bool {
	return n.DestinationWarehouseID != 0
}

// Line is a goods-out line. Goods-out lines carry no price.
type Line struct {
	ID          int64  `json:"id"`
	NoteID      int64  `json:"note_id"`
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int64  `json:"quantity"`
}

// RawLine is a line as submitted.
type RawLine struct {
	ProductName string
	Quantity    string
}

// RejectReason explains why a submitted line was skipped.
type RejectReason string

const (
	RejectBlankName       RejectReason = "blank_product_name"
	RejectUnknownProduct  RejectReason = "product_not_found"
	RejectInactiveProduct RejectReason = "product_inactive"
	RejectInvalidQuantity RejectReason = "invalid_quantity"
)

// RejectedLine reports a skipped line by its submitted position.
type RejectedLine struct {
	Index       int          `json:"index"`
	ProductName string       `json:"product_name"`
	Reason      RejectReason `json:"reason"`
}

// CreateInput carries a goods-out submission. DestinationWarehouseID is
// zero for a plain issue.
type CreateInput struct {
	SourceWarehouseID      int64
	DestinationWarehouseID int64
	Note                   string
	Lines                  []RawLine
	ActorID                int64
	IdempotencyKey         string
}

// Result is the outcome of a goods-out submission.
type Result struct {
	Note     Note           `json:"note"`
	Lines    []Line         `json:"lines"`
	Rejected []RejectedLine `json:"rejected"`
}

// Detail is a note with its lines.
type Detail struct {
	Note  Note   `json:"note"`
	Lines []Line `json:"lines"`
}

// ListFilter narrows note listings.
type ListFilter struct {
	Kind        Kind
	From        time.Time
	To          time.Time
	Search      string
	WarehouseID int64
	Page        int
	PerPage     int
}

var (
	// ErrSameWarehouse rejects transfers whose source is the destination.
	ErrSameWarehouse = errors.New("goodsout: source and destination warehouse must differ")
	// ErrEmptyLineItems rejects notes without a single resolvable line.
	ErrEmptyLineItems = errors.New("goodsout: no valid line items")
	// ErrInvalidWarehouse indicates a missing or inactive warehouse.
	ErrInvalidWarehouse = errors.New("goodsout: invalid warehouse")
	// ErrNotFound indicates a missing note.
	ErrNotFound = errors.New("goodsout: note not found")
	// ErrDuplicateRequest indicates a replayed Idempotency-Key.
	ErrDuplicateRequest = errors.New("goodsout: request already processed")
	// ErrInvalidRange indicates a listing range ending before it starts.
	ErrInvalidRange = errors.New("goodsout: range end before start")
)

// Package stockcount records physical stock counts against the ledger. A
// count never mutates stock; variances are informational.
package stockcount

import (
	"errors"
	"fmt"
	"time"
)

// Module names the reconciler in audit rows.
const Module = "stock_count"

// Status is the lifecycle state of a campaign.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Campaign is a stock-count campaign for one warehouse.
type Campaign struct {
	ID              int64      `json:"id"`
	Code            string     `json:"code"`
	Name            string     `json:"name"`
	WarehouseID     int64      `json:"warehouse_id"`
	WarehouseName   string     `json:"warehouse_name,omitempty"`
	ScheduledDate   time.Time  `json:"scheduled_date"`
	Status          Status     `json:"status"`
	ResponsibleID   int64      `json:"responsible_id,omitempty"`
	ResponsibleName string     `json:"responsible_name,omitempty"`
	Description     string     `json:"description"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// Completed reports whether the campaign is closed.
func (c Campaign) Completed() bool {
	return c.Status == StatusCompleted
}

// Line is the count of one product within a campaign.
type Line struct {
	CountID        int64     `json:"count_id"`
	ProductID      int64     `json:"product_id"`
	ProductName    string    `json:"product_name,omitempty"`
	SystemQuantity int64     `json:"system_quantity"`
	ActualQuantity int64     `json:"actual_quantity"`
	Variance       int64     `json:"variance"`
	Note           string    `json:"note"`
	CountedAt      time.Time `json:"counted_at"`
}

// CreateInput carries the fields of a new campaign.
type CreateInput struct {
	Code          string
	Name          string
	WarehouseID   int64
	ScheduledDate time.Time
	ResponsibleID int64
	Description   string
	ActorID       int64
}

// Submission is one counted product.
type Submission struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Actual    int64  `json:"actual_quantity" validate:"gte=0"`
	Note      string `json:"note" validate:"max=500"`
}

// ProductRow pairs a product's current on-hand with its counted line.
type ProductRow struct {
	ProductID      int64  `json:"product_id"`
	ProductCode    string `json:"product_code"`
	ProductName    string `json:"product_name"`
	SystemQuantity int64  `json:"system_quantity"`
	Line           *Line  `json:"line,omitempty"`
}

// Detail is a campaign with every active product of its warehouse.
type Detail struct {
	Campaign Campaign     `json:"campaign"`
	Products []ProductRow `json:"products"`
	Counted  int          `json:"counted"`
}

// ListFilter narrows campaign listings.
type ListFilter struct {
	Search  string
	Status  Status
	From    time.Time
	To      time.Time
	Page    int
	PerPage int
}

var (
	// ErrInvalidCampaign indicates a campaign whose warehouse is missing or
	// no longer active.
	ErrInvalidCampaign = errors.New("stockcount: campaign warehouse is not valid")
	// ErrCampaignCompleted rejects edits to a completed campaign.
	ErrCampaignCompleted = errors.New("stockcount: campaign already completed")
	// ErrIncompleteCount is returned by Finalize when required products lack a line.
	ErrIncompleteCount = errors.New("stockcount: required products not counted")
	ErrNotFound        = errors.New("stockcount: campaign not found")
	ErrDuplicateCode   = errors.New("stockcount: campaign code already exists")
	ErrInvalidQuantity = errors.New("stockcount: actual quantity must not be negative")
	ErrEmptyLineItems  = errors.New("stockcount: no counts submitted")
	ErrInvalidInput    = errors.New("stockcount: invalid campaign")
	ErrInvalidRange    = errors.New("stockcount: range end before start")
)

// IncompleteCountError lists the required products without a line.
type IncompleteCountError struct {
	Missing []int64
}

func (e *IncompleteCountError) Error() string {
	return fmt.Sprintf("%s: %d missing", ErrIncompleteCount, len(e.Missing))
}

// Is makes errors.Is(err, ErrIncompleteCount) match.
func (e *IncompleteCountError) Is(target error) bool {
	return target == ErrIncompleteCount
}

// Package dashboard aggregates the stock and supplier figures shown on the
// back-office home page.
package dashboard

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TopN bounds every ranked list of the summary.
const TopN = 5

// ErrInvalidMonth rejects a malformed month filter.
var ErrInvalidMonth = errors.New("dashboard: month must be 1-12 or YYYY-MM")

// Period is one calendar month.
type Period struct {
	Year  int
	Month time.Month
}

// ParseMonth reads the month filter. An empty value selects the month of
// now; a bare month number selects it in the year of now.
func ParseMonth(raw string, now time.Time) (Period, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Period{Year: now.Year(), Month: now.Month()}, nil
	}
	if n, err := strconv.Atoi(raw); err == nil {
		if n < 1 || n > 12 {
			return Period{}, ErrInvalidMonth
		}
		return Period{Year: now.Year(), Month: time.Month(n)}, nil
	}
	t, err := time.Parse("2006-01", raw)
	if err != nil {
		return Period{}, ErrInvalidMonth
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

// Start is the first instant of the month in UTC.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End is the first instant of the following month.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

// Days is the number of days in the month.
func (p Period) Days() int {
	return p.End().AddDate(0, 0, -1).Day()
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Activity holds the note counts and quantities of a month.
type Activity struct {
	ImportNotes    int   `json:"import_notes"`
	ExportNotes    int   `json:"export_notes"`
	ImportQuantity int64 `json:"import_quantity"`
	ExportQuantity int64 `json:"export_quantity"`
}

// ProductStock is a product's on-hand summed over all warehouses.
type ProductStock struct {
	ProductID   int64  `json:"product_id"`
	ProductCode string `json:"product_code"`
	ProductName string `json:"product_name"`
	OnHand      int64  `json:"on_hand"`
}

// LowStockItem is a stock entry at or below its threshold.
type LowStockItem struct {
	WarehouseID   int64   `json:"warehouse_id"`
	WarehouseName string  `json:"warehouse_name"`
	ProductID     int64   `json:"product_id"`
	ProductName   string  `json:"product_name"`
	OnHand        int64   `json:"on_hand"`
	Threshold     int64   `json:"min_stock"`
	Percent       float64 `json:"percent_of_min"`
}

// SupplierVolume ranks a supplier by imported quantity.
type SupplierVolume struct {
	SupplierID   int64  `json:"supplier_id"`
	SupplierName string `json:"supplier_name"`
	Notes        int    `json:"notes"`
	Quantity     int64  `json:"quantity"`
}

// ChartPoint is the imported quantity of one day.
type ChartPoint struct {
	Day      int   `json:"day"`
	Quantity int64 `json:"quantity"`
}

// RecentNote is a recent goods-out note.
type RecentNote struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	CreatorName string    `json:"creator_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// Summary is the dashboard payload.
type Summary struct {
	Period         string           `json:"period"`
	TotalProducts  int              `json:"total_products"`
	TotalSuppliers int              `json:"total_suppliers"`
	Activity       Activity         `json:"activity"`
	NetImport      int64            `json:"net_import"`
	TopStock       []ProductStock   `json:"top_stock"`
	LowStock       []LowStockItem   `json:"low_stock"`
	TopSuppliers   []SupplierVolume `json:"top_suppliers"`
	ImportChart    []ChartPoint     `json:"import_chart"`
	AvgDailyImport float64          `json:"avg_daily_import"`
	RecentExports  []RecentNote     `json:"recent_exports"`
	GeneratedAt    time.Time        `json:"generated_at"`
}

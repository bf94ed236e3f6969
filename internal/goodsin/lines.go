package goodsin

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/products"
	mdshared "github.com/odyssey-erp/odyssey-wms/internal/masterdata/shared"
)

// Catalog resolves products by exact name.
type Catalog interface {
	FindByName(ctx context.Context, name string) (products.Product, error)
}

// parseLine resolves one raw line. A non-empty reason rejects the line; an
// error aborts the note.
func parseLine(ctx context.Context, catalog Catalog, raw RawLine) (Line, RejectReason, error) {
	name := strings.TrimSpace(raw.ProductName)
	if name == "" {
		return Line{}, RejectBlankName, nil
	}
	qty, err := strconv.ParseInt(strings.TrimSpace(raw.Quantity), 10, 64)
	if err != nil || qty <= 0 {
		return Line{}, RejectInvalidQuantity, nil
	}
	price, err := decimal.NewFromString(strings.TrimSpace(raw.UnitPrice))
	if err != nil {
		return Line{}, RejectInvalidPrice, nil
	}
	// Prices are stored with two decimals; a sub-cent price rounds to zero.
	price = price.Round(2)
	if !price.IsPositive() {
		return Line{}, RejectInvalidPrice, nil
	}
	product, err := catalog.FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, mdshared.ErrNotFound) {
			return Line{}, RejectUnknownProduct, nil
		}
		return Line{}, "", err
	}
	if !product.IsActive {
		return Line{}, RejectInactiveProduct, nil
	}
	return Line{
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    qty,
		UnitPrice:   price,
		Amount:      price.Mul(decimal.NewFromInt(qty)),
	}, "", nil
}

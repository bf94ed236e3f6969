package goodsout

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/products"
	mdshared "github.com/odyssey-erp/odyssey-wms/internal/masterdata/shared"
)

// Catalog resolves products by exact name.
type Catalog interface {
	FindByName(ctx context.Context, name string) (products.Product, error)
}

func parseLine(ctx context.Context, catalog Catalog, raw RawLine) (Line, RejectReason, error) {
	name := strings.TrimSpace(raw.ProductName)
	if name == "" {
		return Line{}, RejectBlankName, nil
	}
	qty, err := strconv.ParseInt(strings.TrimSpace(raw.Quantity), 10, 64)
	if err != nil || qty <= 0 {
		return Line{}, RejectInvalidQuantity, nil
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
	return Line{ProductID: product.ID, ProductName: product.Name, Quantity: qty}, "", nil
}

// resolveLines parses raw lines in order, splitting accepted from rejected.
func resolveLines(ctx context.Context, catalog Catalog, raws []RawLine) ([]Line, []RejectedLine, error) {
	lines := make([]Line, 0, len(raws))
	rejected := []RejectedLine{}
	for i, raw := range raws {
		line, reason, err := parseLine(ctx, catalog, raw)
		if err != nil {
			return nil, nil, err
		}
		if reason != "" {
			rejected = append(rejected, RejectedLine{Index: i, ProductName: raw.ProductName, Reason: reason})
			continue
		}
		lines = append(lines, line)
	}
	return lines, rejected, nil
}

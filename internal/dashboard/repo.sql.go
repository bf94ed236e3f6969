package dashboard

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the PostgreSQL Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Totals(ctx context.Context) (int, int, error) {
	var products, suppliers int
	err := r.pool.QueryRow(ctx, `SELECT (SELECT COUNT(*) FROM products), (SELECT COUNT(*) FROM suppliers)`).Scan(&products, &suppliers)
	return products, suppliers, err
}

func (r *repository) MonthActivity(ctx context.Context, from, to time.Time) (Activity, error) {
	var a Activity
	err := r.pool.QueryRow(ctx, `SELECT
  (SELECT COUNT(*) FROM goods_in_notes WHERE created_at >= $1 AND created_at < $2),
  (SELECT COUNT(*) FROM goods_out_notes WHERE created_at >= $1 AND created_at < $2),
  (SELECT COALESCE(SUM(l.quantity), 0) FROM goods_in_lines l JOIN goods_in_notes n ON n.id = l.note_id
     WHERE n.created_at >= $1 AND n.created_at < $2),
  (SELECT COALESCE(SUM(l.quantity), 0) FROM goods_out_lines l JOIN goods_out_notes n ON n.id = l.note_id
     WHERE n.created_at >= $1 AND n.created_at < $2)`, from, to).
		Scan(&a.ImportNotes, &a.ExportNotes, &a.ImportQuantity, &a.ExportQuantity)
	return a, err
}

func (r *repository) TopStock(ctx context.Context, limit int) ([]ProductStock, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.code, p.name, SUM(se.on_hand) AS total
FROM stock_entries se JOIN products p ON p.id = se.product_id
GROUP BY p.id, p.code, p.name
ORDER BY total DESC, p.id ASC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ProductStock, error) {
		var p ProductStock
		err := row.Scan(&p.ProductID, &p.ProductCode, &p.ProductName, &p.OnHand)
		return p, err
	})
}

func (r *repository) LowStock(ctx context.Context, threshold int64, limit int) ([]LowStockItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT w.id, w.name, p.id, p.name, se.on_hand, COALESCE(p.min_stock, $1)
FROM stock_entries se
JOIN warehouses w ON w.id = se.warehouse_id
JOIN products p ON p.id = se.product_id
WHERE se.on_hand <= COALESCE(p.min_stock, $1)
ORDER BY se.on_hand ASC, p.name ASC
LIMIT $2`, threshold, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (LowStockItem, error) {
		var item LowStockItem
		err := row.Scan(&item.WarehouseID, &item.WarehouseName, &item.ProductID, &item.ProductName, &item.OnHand, &item.Threshold)
		return item, err
	})
}

func (r *repository) TopSuppliers(ctx context.Context, limit int) ([]SupplierVolume, error) {
	rows, err := r.pool.Query(ctx, `SELECT s.id, s.name, COUNT(DISTINCT n.id), COALESCE(SUM(l.quantity), 0) AS qty
FROM goods_in_notes n
JOIN suppliers s ON s.id = n.supplier_id
JOIN goods_in_lines l ON l.note_id = n.id
GROUP BY s.id, s.name
ORDER BY qty DESC, s.id ASC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (SupplierVolume, error) {
		var v SupplierVolume
		err := row.Scan(&v.SupplierID, &v.SupplierName, &v.Notes, &v.Quantity)
		return v, err
	})
}

func (r *repository) DailyImports(ctx context.Context, from, to time.Time) (map[int]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT EXTRACT(DAY FROM n.created_at AT TIME ZONE 'UTC')::int, SUM(l.quantity)
FROM goods_in_lines l JOIN goods_in_notes n ON n.id = l.note_id
WHERE n.created_at >= $1 AND n.created_at < $2
GROUP BY 1`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int]int64)
	for rows.Next() {
		var day int
		var qty int64
		if err := rows.Scan(&day, &qty); err != nil {
			return nil, err
		}
		out[day] = qty
	}
	return out, rows.Err()
}

func (r *repository) RecentExports(ctx context.Context, limit int) ([]RecentNote, error) {
	rows, err := r.pool.Query(ctx, `SELECT n.id, COALESCE(n.code, ''), COALESCE(u.username, ''), n.created_at
FROM goods_out_notes n LEFT JOIN users u ON u.id = n.created_by
ORDER BY n.created_at DESC, n.id DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (RecentNote, error) {
		var n RecentNote
		err := row.Scan(&n.ID, &n.Code, &n.CreatorName, &n.CreatedAt)
		return n, err
	})
}

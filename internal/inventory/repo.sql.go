package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	mdshared "github.com/odyssey-erp/odyssey-wms/internal/masterdata/shared"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx db.DBTX
}

// NewTxRepository binds the ledger statements to an open transaction so
// other packages can mutate stock inside their own unit of work.
func NewTxRepository(tx db.DBTX) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// Inspect reads an entry without locking or creating it.
func (r *Repository) Inspect(ctx context.Context, key Key) (StockEntry, error) {
	return Inspect(ctx, r.pool, key)
}

// Inspect reads an entry through conn, which may be an open transaction.
// A missing row reads as zero.
func Inspect(ctx context.Context, conn db.DBTX, key Key) (StockEntry, error) {
	entry := StockEntry{WarehouseID: key.WarehouseID, ProductID: key.ProductID}
	err := conn.QueryRow(ctx, `SELECT on_hand, available, updated_at FROM stock_entries WHERE warehouse_id=$1 AND product_id=$2`,
		key.WarehouseID, key.ProductID).Scan(&entry.OnHand, &entry.Available, &entry.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return entry, nil
	}
	return entry, err
}

const snapshotFrom = ` FROM stock_entries se
JOIN warehouses w ON w.id = se.warehouse_id
JOIN products p ON p.id = se.product_id`

func snapshotWhere(scope WarehouseScope, productID int64, search string) *mdshared.Where {
	where := &mdshared.Where{}
	if id, ok := scope.WarehouseID(); ok {
		where.Add("se.warehouse_id = ?", id)
	}
	if productID > 0 {
		where.Add("se.product_id = ?", productID)
	}
	if search != "" {
		where.Add("(p.name ILIKE ? OR p.code ILIKE ?)", "%"+search+"%", "%"+search+"%")
	}
	return where
}

// CountSnapshot returns the record count and summed on-hand quantity of a listing.
func (r *Repository) CountSnapshot(ctx context.Context, q SnapshotQuery) (int, int64, error) {
	where := snapshotWhere(q.Scope, q.ProductID, q.Search)
	var total int
	var quantity int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(se.on_hand), 0)`+snapshotFrom+where.SQL(), where.Args()...).
		Scan(&total, &quantity)
	return total, quantity, err
}

// ListSnapshot returns one page of ledger rows joined with their warehouse
// and product.
func (r *Repository) ListSnapshot(ctx context.Context, q SnapshotQuery, threshold int64, limit, offset int) ([]SnapshotRow, error) {
	where := snapshotWhere(q.Scope, q.ProductID, q.Search)
	args := append(where.Args(), threshold, limit, offset)
	query := snapshotColumns(where.Next(1)) + snapshotFrom + where.SQL() +
		` ORDER BY w.name ASC, p.name ASC LIMIT ` + where.Next(2) + ` OFFSET ` + where.Next(3)
	return r.querySnapshot(ctx, query, args...)
}

// ListLowStock returns entries at or below their threshold, lowest first.
func (r *Repository) ListLowStock(ctx context.Context, scope WarehouseScope, threshold int64, limit int) ([]SnapshotRow, error) {
	where := snapshotWhere(scope, 0, "")
	thresholdArg := where.Next(1)
	where.Add("se.on_hand <= COALESCE(p.min_stock, ?)", threshold)
	args := append(where.Args(), limit)
	query := snapshotColumns(thresholdArg) + snapshotFrom + where.SQL() +
		` ORDER BY se.on_hand ASC, p.name ASC LIMIT ` + where.Next(1)
	return r.querySnapshot(ctx, query, args...)
}

func snapshotColumns(thresholdArg string) string {
	return `SELECT se.warehouse_id, w.code, w.name, se.product_id, p.code, p.name, p.unit,
se.on_hand, se.available, COALESCE(p.min_stock, ` + thresholdArg + `), se.updated_at`
}

func (r *Repository) querySnapshot(ctx context.Context, query string, args ...any) ([]SnapshotRow, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []SnapshotRow{}
	for rows.Next() {
		var row SnapshotRow
		if err := rows.Scan(&row.WarehouseID, &row.WarehouseCode, &row.WarehouseName, &row.ProductID, &row.ProductCode,
			&row.ProductName, &row.Unit, &row.OnHand, &row.Available, &row.Threshold, &row.UpdatedAt); err != nil {
			return nil, err
		}
		row.Low = row.OnHand <= row.Threshold
		out = append(out, row)
	}
	return out, rows.Err()
}

// GetStockCard lists stock card entries of one pair in posting order.
func (r *Repository) GetStockCard(ctx context.Context, filter StockCardFilter) ([]StockCardEntry, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT warehouse_id, product_id, ref_module, ref_code, qty_in, qty_out, balance_qty, note, posted_at
FROM stock_cards
WHERE warehouse_id=$1 AND product_id=$2 AND posted_at BETWEEN COALESCE($3, '-infinity'::timestamptz) AND COALESCE($4, 'infinity'::timestamptz)
ORDER BY posted_at ASC, id ASC
LIMIT $5`, filter.WarehouseID, filter.ProductID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cards := []StockCardEntry{}
	for rows.Next() {
		var entry StockCardEntry
		if err := rows.Scan(&entry.WarehouseID, &entry.ProductID, &entry.RefModule, &entry.RefCode, &entry.QtyIn, &entry.QtyOut,
			&entry.BalanceQty, &entry.Note, &entry.PostedAt); err != nil {
			return nil, err
		}
		cards = append(cards, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cards, nil
}

// LockEntry inserts a zero row when the pair is new and locks it either way.
// The no-op update makes ON CONFLICT take the row lock.
func (r *txRepository) LockEntry(ctx context.Context, key Key) (StockEntry, error) {
	var entry StockEntry
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_entries (warehouse_id, product_id, on_hand, available, updated_at)
VALUES ($1, $2, 0, 0, NOW())
ON CONFLICT (warehouse_id, product_id) DO UPDATE SET warehouse_id = EXCLUDED.warehouse_id
RETURNING warehouse_id, product_id, on_hand, available, updated_at`, key.WarehouseID, key.ProductID).
		Scan(&entry.WarehouseID, &entry.ProductID, &entry.OnHand, &entry.Available, &entry.UpdatedAt)
	return entry, err
}

func (r *txRepository) SaveEntry(ctx context.Context, entry StockEntry) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_entries SET on_hand=$3, available=$4, updated_at=$5 WHERE warehouse_id=$1 AND product_id=$2`,
		entry.WarehouseID, entry.ProductID, entry.OnHand, entry.Available, entry.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *txRepository) InsertCardEntry(ctx context.Context, card StockCardEntry) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_cards (warehouse_id, product_id, ref_module, ref_code, qty_in, qty_out, balance_qty, note, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, card.WarehouseID, card.ProductID, card.RefModule, card.RefCode, card.QtyIn, card.QtyOut,
		card.BalanceQty, card.Note, card.PostedAt)
	return err
}

func nullTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value
}

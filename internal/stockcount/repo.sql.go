package stockcount

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	mdshared "github.com/odyssey-erp/odyssey-wms/internal/masterdata/shared"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/db"
)

// Repository persists campaigns and count lines in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("stockcount repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const selectCampaign = `SELECT c.id, c.code, c.name, COALESCE(c.warehouse_id, 0), COALESCE(w.name, ''), c.scheduled_date,
c.status, COALESCE(c.responsible_id, 0), COALESCE(u.username, ''), c.description, c.created_at, c.completed_at
FROM stock_counts c
LEFT JOIN warehouses w ON w.id = c.warehouse_id
LEFT JOIN users u ON u.id = c.responsible_id`

func scanCampaign(row pgx.Row) (Campaign, error) {
	var c Campaign
	var status string
	err := row.Scan(&c.ID, &c.Code, &c.Name, &c.WarehouseID, &c.WarehouseName, &c.ScheduledDate,
		&status, &c.ResponsibleID, &c.ResponsibleName, &c.Description, &c.CreatedAt, &c.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Campaign{}, ErrNotFound
	}
	c.Status = Status(status)
	return c, err
}

func (r *Repository) InsertCampaign(ctx context.Context, c Campaign) (Campaign, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO stock_counts (code, name, warehouse_id, scheduled_date, status, responsible_id, description, created_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, 0), $7, $8) RETURNING id`,
		c.Code, c.Name, c.WarehouseID, c.ScheduledDate, string(c.Status), c.ResponsibleID, c.Description, c.CreatedAt).Scan(&c.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Campaign{}, fmt.Errorf("%w: %q", ErrDuplicateCode, c.Code)
		}
		return Campaign{}, err
	}
	return c, nil
}

func (r *Repository) GetCampaign(ctx context.Context, id int64) (Campaign, error) {
	return scanCampaign(r.pool.QueryRow(ctx, selectCampaign+` WHERE c.id = $1`, id))
}

func (r *Repository) ListCampaigns(ctx context.Context, filter ListFilter, limit, offset int) ([]Campaign, int, error) {
	var where mdshared.Where
	if filter.Status != "" {
		where.Add("c.status = ?", string(filter.Status))
	}
	if !filter.From.IsZero() {
		where.Add("c.scheduled_date >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		where.Add("c.scheduled_date <= ?", filter.To)
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		where.Add("(c.code ILIKE ? OR c.name ILIKE ?)", pattern, pattern)
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_counts c`+where.SQL(), where.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args := append(where.Args(), limit, offset)
	rows, err := r.pool.Query(ctx, selectCampaign+where.SQL()+` ORDER BY c.scheduled_date DESC, c.id DESC LIMIT `+where.Next(1)+` OFFSET `+where.Next(2), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

// ListProductRows lists active products with their on-hand in the
// warehouse and any line already counted in the campaign.
func (r *Repository) ListProductRows(ctx context.Context, countID, warehouseID int64) ([]ProductRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.code, p.name, COALESCE(se.on_hand, 0),
l.system_quantity, l.actual_quantity, l.variance, l.note, l.counted_at
FROM products p
LEFT JOIN stock_entries se ON se.product_id = p.id AND se.warehouse_id = $2
LEFT JOIN stock_count_lines l ON l.product_id = p.id AND l.count_id = $1
WHERE p.is_active
ORDER BY p.name ASC`, countID, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProductRow
	for rows.Next() {
		var (
			row                      ProductRow
			system, actual, variance *int64
			note                     *string
			countedAt                *time.Time
		)
		if err := rows.Scan(&row.ProductID, &row.ProductCode, &row.ProductName, &row.SystemQuantity,
			&system, &actual, &variance, &note, &countedAt); err != nil {
			return nil, err
		}
		if actual != nil {
			row.Line = &Line{
				CountID:        countID,
				ProductID:      row.ProductID,
				ProductName:    row.ProductName,
				SystemQuantity: *system,
				ActualQuantity: *actual,
				Variance:       *variance,
				Note:           *note,
				CountedAt:      *countedAt,
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *txRepository) GetCampaignForUpdate(ctx context.Context, id int64) (Campaign, error) {
	return scanCampaign(r.tx.QueryRow(ctx, selectCampaign+` WHERE c.id = $1 FOR UPDATE OF c`, id))
}

func (r *txRepository) OnHand(ctx context.Context, key inventory.Key) (int64, error) {
	entry, err := inventory.Inspect(ctx, r.tx, key)
	return entry.OnHand, err
}

func (r *txRepository) UpsertLine(ctx context.Context, line Line) (Line, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_count_lines (count_id, product_id, system_quantity, actual_quantity, variance, note, counted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (count_id, product_id) DO UPDATE SET
  system_quantity = EXCLUDED.system_quantity,
  actual_quantity = EXCLUDED.actual_quantity,
  variance = EXCLUDED.variance,
  note = EXCLUDED.note,
  counted_at = EXCLUDED.counted_at
RETURNING (SELECT name FROM products WHERE id = $2)`,
		line.CountID, line.ProductID, line.SystemQuantity, line.ActualQuantity, line.Variance, line.Note, line.CountedAt).Scan(&line.ProductName)
	if db.IsForeignKeyViolation(err) {
		return Line{}, fmt.Errorf("%w: unknown product %d", ErrInvalidInput, line.ProductID)
	}
	return line, err
}

func (r *txRepository) CountedProducts(ctx context.Context, countID int64) ([]int64, error) {
	rows, err := r.tx.Query(ctx, `SELECT product_id FROM stock_count_lines WHERE count_id = $1`, countID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *txRepository) SetStatus(ctx context.Context, id int64, status Status, completedAt *time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_counts SET status = $2, completed_at = $3 WHERE id = $1`, id, string(status), completedAt)
	return err
}

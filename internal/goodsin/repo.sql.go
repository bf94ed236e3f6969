package goodsin

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-wms/internal/debt"
	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	mdshared "github.com/odyssey-erp/odyssey-wms/internal/masterdata/shared"
	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/suppliers"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/db"
)

// Repository persists goods-in notes in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx        pgx.Tx
	suppliers *suppliers.Service
}

// WithTx executes the callback inside a repeatable-read transaction shared
// with the ledger and debt statements.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("goodsin repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, suppliers: suppliers.NewService(suppliers.NewRepository(tx))})
	})
}

const selectNote = `SELECT n.id, COALESCE(n.code, ''), n.supplier_id, COALESCE(s.code, ''), s.name, n.warehouse_id, w.name,
COALESCE(n.created_by, 0), COALESCE(u.username, ''), n.note, n.total_amount, n.created_at
FROM goods_in_notes n
JOIN suppliers s ON s.id = n.supplier_id
JOIN warehouses w ON w.id = n.warehouse_id
LEFT JOIN users u ON u.id = n.created_by`

func scanNote(row pgx.Row) (Note, error) {
	var n Note
	err := row.Scan(&n.ID, &n.Code, &n.SupplierID, &n.SupplierCode, &n.SupplierName, &n.WarehouseID, &n.WarehouseName,
		&n.CreatedBy, &n.CreatorName, &n.Note, &n.Total, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Note{}, ErrNotFound
	}
	return n, err
}

func (r *Repository) GetNote(ctx context.Context, id int64) (Note, error) {
	return scanNote(r.pool.QueryRow(ctx, selectNote+` WHERE n.id = $1`, id))
}

func (r *Repository) ListLines(ctx context.Context, noteID int64) ([]Line, error) {
	return listLines(ctx, r.pool, noteID)
}

func (r *Repository) ListNotes(ctx context.Context, filter ListFilter, limit, offset int) ([]Note, int, error) {
	var where mdshared.Where
	if !filter.From.IsZero() {
		where.Add("n.created_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		where.Add("n.created_at <= ?", filter.To)
	}
	if filter.WarehouseID > 0 {
		where.Add("n.warehouse_id = ?", filter.WarehouseID)
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		where.Add("(n.code ILIKE ? OR s.name ILIKE ? OR u.username ILIKE ?)", pattern, pattern, pattern)
	}
	var total int
	countSQL := `SELECT COUNT(*) FROM goods_in_notes n
JOIN suppliers s ON s.id = n.supplier_id
LEFT JOIN users u ON u.id = n.created_by` + where.SQL()
	if err := r.pool.QueryRow(ctx, countSQL, where.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args := append(where.Args(), limit, offset)
	rows, err := r.pool.Query(ctx, selectNote+where.SQL()+` ORDER BY n.created_at DESC, n.id DESC LIMIT `+where.Next(1)+` OFFSET `+where.Next(2), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var notes []Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, 0, err
		}
		notes = append(notes, n)
	}
	return notes, total, rows.Err()
}

func listLines(ctx context.Context, conn db.DBTX, noteID int64) ([]Line, error) {
	rows, err := conn.Query(ctx, `SELECT l.id, l.note_id, l.product_id, p.name, l.quantity, l.unit_price, l.amount
FROM goods_in_lines l JOIN products p ON p.id = l.product_id
WHERE l.note_id = $1 ORDER BY l.id ASC`, noteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.NoteID, &l.ProductID, &l.ProductName, &l.Quantity, &l.UnitPrice, &l.Amount); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *txRepository) ResolveSupplier(ctx context.Context, id int64, name string) (suppliers.Supplier, bool, error) {
	return r.suppliers.Resolve(ctx, id, name)
}

// InsertNote stores the header and assigns its code from the row id.
func (r *txRepository) InsertNote(ctx context.Context, note Note) (Note, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO goods_in_notes (supplier_id, warehouse_id, created_by, note, total_amount, created_at)
VALUES ($1, $2, NULLIF($3, 0), $4, $5, $6) RETURNING id`, note.SupplierID, note.WarehouseID, note.CreatedBy, note.Note,
		note.Total, note.CreatedAt).Scan(&note.ID)
	if err != nil {
		return Note{}, err
	}
	note.Code = FormatCode(note.ID)
	if _, err := r.tx.Exec(ctx, `UPDATE goods_in_notes SET code = $2 WHERE id = $1`, note.ID, note.Code); err != nil {
		return Note{}, err
	}
	return note, nil
}

func (r *txRepository) InsertLine(ctx context.Context, line Line) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO goods_in_lines (note_id, product_id, quantity, unit_price, amount)
VALUES ($1, $2, $3, $4, $5) RETURNING id`, line.NoteID, line.ProductID, line.Quantity, line.UnitPrice, line.Amount).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateNoteTotal(ctx context.Context, id int64, total decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE goods_in_notes SET total_amount = $2 WHERE id = $1`, id, total)
	return err
}

func (r *txRepository) GetNoteForUpdate(ctx context.Context, id int64) (Note, error) {
	return scanNote(r.tx.QueryRow(ctx, selectNote+` WHERE n.id = $1 FOR UPDATE OF n`, id))
}

func (r *txRepository) ListLines(ctx context.Context, noteID int64) ([]Line, error) {
	return listLines(ctx, r.tx, noteID)
}

func (r *txRepository) DeleteNote(ctx context.Context, id int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM goods_in_notes WHERE id = $1`, id)
	return err
}

func (r *txRepository) Ledger() inventory.TxRepository {
	return inventory.NewTxRepository(r.tx)
}

func (r *txRepository) Debts() debt.TxRepository {
	return debt.NewTxRepository(r.tx)
}

package debt

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	mdshared "github.com/odyssey-erp/odyssey-wms/internal/masterdata/shared"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/db"
)

// Repository persists debts in PostgreSQL.
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

// NewTxRepository binds debt statements to an open transaction.
func NewTxRepository(tx db.DBTX) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("debt repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

const selectDebt = `SELECT d.id, d.supplier_id, s.name, d.goods_in_note_id, COALESCE(n.code, ''), d.debt_type,
d.amount, d.amount_remaining, d.status, d.due_date, d.note, d.created_at, d.updated_at
FROM debts d
JOIN suppliers s ON s.id = d.supplier_id
LEFT JOIN goods_in_notes n ON n.id = d.goods_in_note_id`

func scanDebt(row pgx.Row) (Debt, error) {
	var d Debt
	var status string
	err := row.Scan(&d.ID, &d.SupplierID, &d.SupplierName, &d.GoodsInNoteID, &d.NoteCode, &d.Type,
		&d.Amount, &d.Remaining, &status, &d.DueDate, &d.Note, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Debt{}, ErrNotFound
	}
	d.Status = Status(status)
	return d, err
}

func (r *Repository) Get(ctx context.Context, id int64) (Debt, error) {
	return scanDebt(r.pool.QueryRow(ctx, selectDebt+` WHERE d.id = $1`, id))
}

func (r *Repository) List(ctx context.Context, filter ListFilter, limit, offset int) ([]Debt, int, error) {
	var where mdshared.Where
	if filter.SupplierID > 0 {
		where.Add("d.supplier_id = ?", filter.SupplierID)
	}
	if filter.Status != "" {
		where.Add("d.status = ?", string(filter.Status))
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM debts d`+where.SQL(), where.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args := append(where.Args(), limit, offset)
	debts, err := r.query(ctx, selectDebt+where.SQL()+` ORDER BY d.due_date ASC, d.id ASC LIMIT `+where.Next(1)+` OFFSET `+where.Next(2), args...)
	return debts, total, err
}

func (r *Repository) ListOutstanding(ctx context.Context) ([]Debt, error) {
	return r.query(ctx, selectDebt+` WHERE d.amount_remaining > 0 ORDER BY d.due_date ASC, d.id ASC`)
}

func (r *Repository) query(ctx context.Context, sql string, args ...any) ([]Debt, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Debt
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *Repository) ListPayments(ctx context.Context, debtID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, debt_id, amount, paid_at, COALESCE(created_by, 0), note
FROM debt_payments WHERE debt_id = $1 ORDER BY paid_at ASC, id ASC`, debtID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.DebtID, &p.Amount, &p.PaidAt, &p.CreatedBy, &p.Note); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *txRepository) InsertDebt(ctx context.Context, d Debt) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO debts (supplier_id, goods_in_note_id, debt_type, amount, amount_remaining, status, due_date, note, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9) RETURNING id`, d.SupplierID, d.GoodsInNoteID, d.Type, d.Amount, d.Remaining, string(d.Status),
		d.DueDate, d.Note, d.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Debt, error) {
	return scanDebt(r.tx.QueryRow(ctx, selectDebt+` WHERE d.id = $1 FOR UPDATE OF d`, id))
}

func (r *txRepository) GetByNoteForUpdate(ctx context.Context, goodsInNoteID int64) (Debt, error) {
	return scanDebt(r.tx.QueryRow(ctx, selectDebt+` WHERE d.goods_in_note_id = $1 FOR UPDATE OF d`, goodsInNoteID))
}

func (r *txRepository) CountPayments(ctx context.Context, debtID int64) (int, error) {
	var count int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM debt_payments WHERE debt_id = $1`, debtID).Scan(&count)
	return count, err
}

func (r *txRepository) DeleteDebt(ctx context.Context, id int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM debts WHERE id = $1`, id)
	return err
}

func (r *txRepository) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO debt_payments (debt_id, amount, paid_at, created_by, note)
VALUES ($1,$2,$3,NULLIF($4, 0),$5) RETURNING id`, p.DebtID, p.Amount, p.PaidAt, p.CreatedBy, p.Note).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateRemaining(ctx context.Context, id int64, remaining decimal.Decimal, status Status) error {
	_, err := r.tx.Exec(ctx, `UPDATE debts SET amount_remaining = $2, status = $3, updated_at = NOW() WHERE id = $1`, id, remaining, string(status))
	return err
}

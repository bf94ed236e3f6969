package suppliers

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/shared"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/db"
)

type Repository interface {
	Get(ctx context.Context, id int64) (Supplier, error)
	FindByName(ctx context.Context, name string) (Supplier, error)
	// GetOrCreateByName returns the supplier with exactly this name, creating
	// it with the next sequential code when absent. created reports a new row.
	GetOrCreateByName(ctx context.Context, name string) (supplier Supplier, created bool, err error)
	Count(ctx context.Context) (int, error)
}

type repository struct {
	db db.DBTX
}

// NewRepository accepts a pool or a transaction; goods-in passes its
// transaction so a new supplier commits or rolls back with the note.
func NewRepository(conn db.DBTX) Repository {
	return &repository{db: conn}
}

const selectColumns = `SELECT id, COALESCE(code, ''), name, address, email, phone, created_at, updated_at FROM suppliers`

func (r *repository) Get(ctx context.Context, id int64) (Supplier, error) {
	return r.one(ctx, selectColumns+` WHERE id = $1`, id)
}

func (r *repository) FindByName(ctx context.Context, name string) (Supplier, error) {
	return r.one(ctx, selectColumns+` WHERE name = $1`, name)
}

func (r *repository) GetOrCreateByName(ctx context.Context, name string) (Supplier, bool, error) {
	now := time.Now()
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO suppliers (name, created_at, updated_at) VALUES ($1, $2, $2)
ON CONFLICT (name) DO NOTHING RETURNING id`, name, now).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, err := r.FindByName(ctx, name)
		return existing, false, err
	}
	if err != nil {
		return Supplier{}, false, err
	}
	// The sequence hands out highest id + 1; the code follows the row id.
	code := FormatCode(id)
	if _, err := r.db.Exec(ctx, `UPDATE suppliers SET code = $1 WHERE id = $2`, code, id); err != nil {
		return Supplier{}, false, err
	}
	return Supplier{ID: id, Code: code, Name: name, CreatedAt: now, UpdatedAt: now}, true, nil
}

func (r *repository) Count(ctx context.Context) (int, error) {
	var total int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM suppliers`).Scan(&total)
	return total, err
}

func (r *repository) one(ctx context.Context, query string, arg any) (Supplier, error) {
	var s Supplier
	err := r.db.QueryRow(ctx, query, arg).Scan(&s.ID, &s.Code, &s.Name, &s.Address, &s.Email, &s.Phone, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, shared.ErrNotFound
	}
	return s, err
}

package products

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/shared"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/db"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error)
	Get(ctx context.Context, id int64) (Product, error)
	FindByName(ctx context.Context, name string) (Product, error)
	Count(ctx context.Context) (int, error)
}

type repository struct {
	db db.DBTX
}

func NewRepository(conn db.DBTX) Repository {
	return &repository{db: conn}
}

const selectColumns = `SELECT id, code, name, unit, min_stock, is_active, created_at, updated_at FROM products`

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	var where shared.Where
	if filters.Search != "" {
		where.Add("(name ILIKE ? OR code ILIKE ?)", "%"+filters.Search+"%", "%"+filters.Search+"%")
	}
	if filters.IsActive != nil {
		where.Add("is_active = ?", *filters.IsActive)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products`+where.SQL(), where.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := selectColumns + where.SQL() + " ORDER BY name ASC, id ASC"
	args := where.Args()
	if filters.Limit > 0 {
		query += " LIMIT " + where.Next(1) + " OFFSET " + where.Next(2)
		args = append(args, filters.Limit, filters.Offset())
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Product, error) {
	return r.one(ctx, selectColumns+` WHERE id = $1`, id)
}

// FindByName matches the name exactly.
func (r *repository) FindByName(ctx context.Context, name string) (Product, error) {
	return r.one(ctx, selectColumns+` WHERE name = $1`, name)
}

func (r *repository) Count(ctx context.Context) (int, error) {
	var total int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&total)
	return total, err
}

func (r *repository) one(ctx context.Context, query string, arg any) (Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, shared.ErrNotFound
	}
	return p, err
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Unit, &p.MinStock, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

package warehouses

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/shared"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/db"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Warehouse, int, error)
	Get(ctx context.Context, id int64) (Warehouse, error)
	Create(ctx context.Context, warehouse Warehouse) (Warehouse, error)
}

type repository struct {
	db db.DBTX
}

func NewRepository(conn db.DBTX) Repository {
	return &repository{db: conn}
}

const selectColumns = `SELECT id, code, name, address, phone, status, COALESCE(manager_id, 0), created_at, updated_at FROM warehouses`

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Warehouse, int, error) {
	var where shared.Where
	if filters.Status != "" {
		where.Add("status = ?", filters.Status)
	}
	if filters.Search != "" {
		where.Add("(name ILIKE ? OR code ILIKE ?)", "%"+filters.Search+"%", "%"+filters.Search+"%")
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM warehouses`+where.SQL(), where.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := selectColumns + where.SQL() + " ORDER BY " + sortOrder(filters.SortBy, filters.SortDir)
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

	var warehouses []Warehouse
	for rows.Next() {
		w, err := scanWarehouse(rows)
		if err != nil {
			return nil, 0, err
		}
		warehouses = append(warehouses, w)
	}
	return warehouses, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Warehouse, error) {
	w, err := scanWarehouse(r.db.QueryRow(ctx, selectColumns+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Warehouse{}, shared.ErrNotFound
	}
	return w, err
}

func (r *repository) Create(ctx context.Context, warehouse Warehouse) (Warehouse, error) {
	now := time.Now()
	if warehouse.Status == "" {
		warehouse.Status = StatusActive
	}
	err := r.db.QueryRow(ctx, `INSERT INTO warehouses (code, name, address, phone, status, manager_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, 0), $7, $7) RETURNING id`,
		warehouse.Code, warehouse.Name, warehouse.Address, warehouse.Phone, string(warehouse.Status), warehouse.ManagerID, now).Scan(&warehouse.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Warehouse{}, fmt.Errorf("%w: warehouse code %q already exists", shared.ErrDuplicate, warehouse.Code)
		}
		return Warehouse{}, err
	}
	warehouse.CreatedAt = now
	warehouse.UpdatedAt = now
	return warehouse, nil
}

func scanWarehouse(row pgx.Row) (Warehouse, error) {
	var w Warehouse
	var status string
	err := row.Scan(&w.ID, &w.Code, &w.Name, &w.Address, &w.Phone, &status, &w.ManagerID, &w.CreatedAt, &w.UpdatedAt)
	w.Status = Status(status)
	return w, err
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == "desc" {
		dir = "DESC"
	}
	switch sortBy {
	case "name":
		return "name " + dir
	case "created_at":
		return "created_at " + dir
	default:
		return "code " + dir
	}
}

package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	mdshared "github.com/odyssey-erp/odyssey-wms/internal/masterdata/shared"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/db"
)

// PgRepository reads audit_logs through pgx.
type PgRepository struct {
	db db.DBTX
}

// NewRepository constructs the pgx repository.
func NewRepository(conn db.DBTX) *PgRepository {
	return &PgRepository{db: conn}
}

// Timeline implements Repository, newest first.
func (r *PgRepository) Timeline(ctx context.Context, f TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	var where mdshared.Where
	if !f.From.IsZero() {
		where.Add("a.occurred_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		where.Add("a.occurred_at <= ?", f.To)
	}
	if f.ActorID > 0 {
		where.Add("a.actor_id = ?", f.ActorID)
	}
	if f.Entity != "" {
		where.Add("a.entity = ?", f.Entity)
	}
	if f.EntityID != "" {
		where.Add("a.entity_id = ?", f.EntityID)
	}
	if f.Action != "" {
		where.Add("a.action = ?", f.Action)
	}
	args := where.Args()
	query := fmt.Sprintf(`SELECT a.id, a.occurred_at, COALESCE(a.actor_id, 0), COALESCE(u.username, ''),
        a.action, a.entity, a.entity_id, COALESCE(a.meta, 'null'::jsonb)
FROM audit_logs a
LEFT JOIN users u ON u.id = a.actor_id
%s
ORDER BY a.occurred_at DESC, a.id DESC
LIMIT %s OFFSET %s`, where.SQL(), where.Next(1), where.Next(2))
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TimelineRow, error) {
		var t TimelineRow
		var meta []byte
		err := row.Scan(&t.ID, &t.At, &t.ActorID, &t.Actor, &t.Action, &t.Entity, &t.EntityID, &meta)
		if string(meta) != "null" {
			t.Meta = meta
		}
		return t, err
	})
}

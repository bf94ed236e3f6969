package inventory

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Inspect(ctx context.Context, key Key) (StockEntry, error)
	CountSnapshot(ctx context.Context, q SnapshotQuery) (int, int64, error)
	ListSnapshot(ctx context.Context, q SnapshotQuery, threshold int64, limit, offset int) ([]SnapshotRow, error)
	ListLowStock(ctx context.Context, scope WarehouseScope, threshold int64, limit int) ([]SnapshotRow, error)
	GetStockCard(ctx context.Context, filter StockCardFilter) ([]StockCardEntry, error)
}

// SnapshotQuery selects ledger rows for a listing.
type SnapshotQuery struct {
	Scope     WarehouseScope
	ProductID int64
	Search    string
	Page      int
	PerPage   int
}

// SnapshotRow is a ledger row joined with its warehouse and product.
type SnapshotRow struct {
	WarehouseID   int64     `json:"warehouse_id"`
	WarehouseCode string    `json:"warehouse_code"`
	WarehouseName string    `json:"warehouse_name"`
	ProductID     int64     `json:"product_id"`
	ProductCode   string    `json:"product_code"`
	ProductName   string    `json:"product_name"`
	Unit          string    `json:"unit"`
	OnHand        int64     `json:"on_hand"`
	Available     int64     `json:"available"`
	Threshold     int64     `json:"min_stock"`
	Low           bool      `json:"low_stock"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Snapshot is one page of the stock listing.
type Snapshot struct {
	Scope         WarehouseScope    `json:"scope"`
	Rows          []SnapshotRow     `json:"rows"`
	TotalQuantity int64             `json:"total_quantity"`
	TotalRecords  int               `json:"total_records"`
	Pagination    shared.Pagination `json:"pagination"`
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// MinStockDefault applies to products without their own threshold.
	MinStockDefault int64
}

// Service exposes the ledger to handlers and jobs.
type Service struct {
	repo     RepositoryPort
	engine   *Engine
	cfg      ServiceConfig
	listener ChangeListener
	logger   *slog.Logger
}

// NewService builds Service. listener may be nil.
func NewService(repo RepositoryPort, engine *Engine, cfg ServiceConfig, listener ChangeListener, logger *slog.Logger) *Service {
	if engine == nil {
		engine = NewEngine(nil)
	}
	if cfg.MinStockDefault < 0 {
		cfg.MinStockDefault = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, engine: engine, cfg: cfg, listener: listener, logger: logger}
}

// Engine returns the mutation engine shared with the note processors.
func (s *Service) Engine() *Engine {
	return s.engine
}

// MinStockDefault returns the configured fallback threshold.
func (s *Service) MinStockDefault() int64 {
	return s.cfg.MinStockDefault
}

// GetOrCreate returns the entry of a pair, creating a zero entry when new.
func (s *Service) GetOrCreate(ctx context.Context, key Key) (StockEntry, error) {
	var entry StockEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		got, err := s.engine.GetOrCreate(ctx, tx, key)
		if err != nil {
			return err
		}
		entry = got
		return nil
	})
	return entry, err
}

// Increase posts a standalone inbound movement in its own transaction.
func (s *Service) Increase(ctx context.Context, m Movement) (StockEntry, error) {
	return s.post(ctx, m, s.engine.Increase)
}

// Decrease posts a standalone outbound movement in its own transaction.
func (s *Service) Decrease(ctx context.Context, m Movement) (StockEntry, error) {
	return s.post(ctx, m, s.engine.Decrease)
}

func (s *Service) post(ctx context.Context, m Movement, fn func(context.Context, TxRepository, Movement) (StockEntry, error)) (StockEntry, error) {
	if m.WarehouseID == 0 || m.ProductID == 0 {
		return StockEntry{}, ErrInvalidKey
	}
	if m.Quantity <= 0 {
		return StockEntry{}, ErrInvalidQuantity
	}
	var entry StockEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		got, err := fn(ctx, tx, m)
		if err != nil {
			return err
		}
		entry = got
		return nil
	})
	if err != nil {
		return StockEntry{}, err
	}
	s.Notify(ctx, StockChangedEvent{RefModule: m.RefModule, RefCode: m.RefCode, Keys: []Key{m.Key()}, At: entry.UpdatedAt})
	return entry, nil
}

// Inspect returns the current quantities of a pair without creating it.
func (s *Service) Inspect(ctx context.Context, key Key) (Level, error) {
	if key.WarehouseID == 0 || key.ProductID == 0 {
		return Level{}, ErrInvalidKey
	}
	entry, err := s.repo.Inspect(ctx, key)
	if err != nil {
		return Level{}, err
	}
	return entry.Level(), nil
}

// Snapshot lists ledger rows for a scope.
func (s *Service) Snapshot(ctx context.Context, q SnapshotQuery) (Snapshot, error) {
	total, quantity, err := s.repo.CountSnapshot(ctx, q)
	if err != nil {
		return Snapshot{}, err
	}
	perPage := q.PerPage
	if perPage <= 0 {
		perPage = shared.DefaultPerPage
	}
	page := shared.NewPagination(q.Page, perPage, total)
	rows, err := s.repo.ListSnapshot(ctx, q, s.cfg.MinStockDefault, page.PerPage, page.Offset())
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Scope:         q.Scope,
		Rows:          rows,
		TotalQuantity: quantity,
		TotalRecords:  total,
		Pagination:    page,
	}, nil
}

// LowStock lists entries at or below their threshold.
func (s *Service) LowStock(ctx context.Context, scope WarehouseScope, limit int) ([]SnapshotRow, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.ListLowStock(ctx, scope, s.cfg.MinStockDefault, limit)
}

// StockCard lists the movement history of a pair.
func (s *Service) StockCard(ctx context.Context, filter StockCardFilter) ([]StockCardEntry, error) {
	if filter.WarehouseID == 0 || filter.ProductID == 0 {
		return nil, ErrInvalidKey
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, ErrInvalidRange
	}
	return s.repo.GetStockCard(ctx, filter)
}

// Notify hands a committed change to the listener, logging failures.
func (s *Service) Notify(ctx context.Context, evt StockChangedEvent) {
	if s == nil || s.listener == nil || len(evt.Keys) == 0 {
		return
	}
	if err := s.listener.StockChanged(ctx, evt); err != nil {
		s.logger.Warn("stock change listener failed", slog.String("ref", evt.RefCode), slog.Any("error", err))
	}
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}

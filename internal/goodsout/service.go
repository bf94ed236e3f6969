package goodsout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	mdshared "github.com/odyssey-erp/odyssey-wms/internal/masterdata/shared"
	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/warehouses"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// TxRepository exposes the statements of one goods-out unit of work.
type TxRepository interface {
	InsertNote(ctx context.Context, note Note) (Note, error)
	InsertLine(ctx context.Context, line Line) (int64, error)
	GetNoteForUpdate(ctx context.Context, id int64) (Note, error)
	ListLines(ctx context.Context, noteID int64) ([]Line, error)
	DeleteNote(ctx context.Context, id int64) error
	Ledger() inventory.TxRepository
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetNote(ctx context.Context, id int64) (Note, error)
	ListLines(ctx context.Context, noteID int64) ([]Line, error)
	ListNotes(ctx context.Context, filter ListFilter, limit, offset int) ([]Note, int, error)
}

// WarehouseDirectory resolves warehouses.
type WarehouseDirectory interface {
	Get(ctx context.Context, id int64) (warehouses.Warehouse, error)
}

// StockInspector reads ledger levels without locking.
type StockInspector interface {
	Inspect(ctx context.Context, key inventory.Key) (inventory.Level, error)
}

// IdempotencyPort deduplicates client retries.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Metrics counts rejected lines and compensated notes.
type Metrics interface {
	RecordRejectedLine(module, reason string)
	RecordCompensation(module string)
}

// Deps groups the collaborators of Service.
type Deps struct {
	Repo        RepositoryPort
	Catalog     Catalog
	Warehouses  WarehouseDirectory
	Stock       StockInspector
	Engine      *inventory.Engine
	Idempotency IdempotencyPort
	Audit       AuditPort
	Listener    inventory.ChangeListener
	Metrics     Metrics
	Logger      *slog.Logger
}

// Service processes goods-out notes.
type Service struct {
	Deps
	now func() time.Time
}

// NewService builds Service.
func NewService(deps Deps) *Service {
	if deps.Engine == nil {
		deps.Engine = inventory.NewEngine(nil)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{Deps: deps, now: func() time.Time { return time.Now().UTC() }}
}

// CreateInternalTransfer moves stock from the source to the destination
// warehouse.
func (s *Service) CreateInternalTransfer(ctx context.Context, input CreateInput) (Result, error) {
	if input.SourceWarehouseID != 0 && input.SourceWarehouseID == input.DestinationWarehouseID {
		return Result{}, ErrSameWarehouse
	}
	if input.DestinationWarehouseID <= 0 {
		return Result{}, fmt.Errorf("%w: destination required", ErrInvalidWarehouse)
	}
	return s.create(ctx, KindTransfer, input)
}

// CreateIssue takes stock out of the source warehouse.
func (s *Service) CreateIssue(ctx context.Context, input CreateInput) (Result, error) {
	input.DestinationWarehouseID = 0
	return s.create(ctx, KindIssue, input)
}

type demand struct {
	productID int64
	name      string
	quantity  int64
}

func (s *Service) create(ctx context.Context, kind Kind, input CreateInput) (Result, error) {
	lines, rejected, err := resolveLines(ctx, s.Catalog, input.Lines)
	if err != nil {
		return Result{}, err
	}
	if len(lines) == 0 {
		return Result{}, ErrEmptyLineItems
	}
	source, err := s.warehouse(ctx, input.SourceWarehouseID)
	if err != nil {
		return Result{}, err
	}
	var destination warehouses.Warehouse
	if kind == KindTransfer {
		if destination, err = s.warehouse(ctx, input.DestinationWarehouseID); err != nil {
			return Result{}, err
		}
	}
	if err := s.preflight(ctx, source.ID, lines); err != nil {
		return Result{}, err
	}

	requestKey := shared.RequestKey(Module, input.IdempotencyKey)
	if requestKey != "" && s.Idempotency != nil {
		if err := s.Idempotency.CheckAndInsert(ctx, requestKey, Module); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Result{}, ErrDuplicateRequest
			}
			return Result{}, err
		}
	}

	var result Result
	err = s.Repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		note, err := tx.InsertNote(ctx, Note{
			Kind:                   kind,
			SourceWarehouseID:      source.ID,
			DestinationWarehouseID: destination.ID,
			CreatedBy:              input.ActorID,
			Note:                   input.Note,
			CreatedAt:              s.now(),
		})
		if err != nil {
			return fmt.Errorf("goodsout: insert note: %w", err)
		}
		note.SourceWarehouseName, note.DestinationName = source.Name, destination.Name

		saved := make([]Line, 0, len(lines))
		for _, line := range lines {
			line.NoteID = note.ID
			if line.ID, err = tx.InsertLine(ctx, line); err != nil {
				return fmt.Errorf("goodsout: insert line: %w", err)
			}
			saved = append(saved, line)
		}
		if _, err := s.Engine.Apply(ctx, tx.Ledger(), movements(note, saved, false)); err != nil {
			return err
		}
		result = Result{Note: note, Lines: saved, Rejected: rejected}
		return nil
	})
	if err != nil {
		if requestKey != "" && s.Idempotency != nil {
			if delErr := s.Idempotency.Delete(ctx, requestKey); delErr != nil {
				s.Logger.Warn("release idempotency key", slog.String("module", Module), slog.Any("error", delErr))
			}
		}
		if errors.Is(err, inventory.ErrInsufficientStock) {
			// stock moved between pre-flight and commit; the rollback removed the note
			s.Logger.Warn("goods-out compensated", slog.String("kind", string(kind)), slog.Any("error", err))
			if s.Metrics != nil {
				s.Metrics.RecordCompensation(Module)
			}
		}
		return Result{}, err
	}

	s.afterCommit(ctx, input.ActorID, "goods_out.create", result.Note, result.Lines, map[string]any{
		"kind":     string(kind),
		"lines":    len(result.Lines),
		"rejected": len(result.Rejected),
	})
	if s.Metrics != nil {
		for _, r := range result.Rejected {
			s.Metrics.RecordRejectedLine(Module, string(r.Reason))
		}
	}
	return result, nil
}

// preflight checks aggregated demand per product against availability
// before any write, naming the first short product in line order.
func (s *Service) preflight(ctx context.Context, warehouseID int64, lines []Line) error {
	var order []int64
	demands := make(map[int64]*demand, len(lines))
	for _, line := range lines {
		d, ok := demands[line.ProductID]
		if !ok {
			d = &demand{productID: line.ProductID, name: line.ProductName}
			demands[line.ProductID] = d
			order = append(order, line.ProductID)
		}
		d.quantity += line.Quantity
	}
	for _, productID := range order {
		d := demands[productID]
		level, err := s.Stock.Inspect(ctx, inventory.Key{WarehouseID: warehouseID, ProductID: productID})
		if err != nil {
			return fmt.Errorf("goodsout: inspect stock: %w", err)
		}
		if level.Available < d.quantity {
			return &inventory.InsufficientStockError{
				WarehouseID: warehouseID,
				ProductID:   productID,
				Product:     d.name,
				Available:   level.Available,
				Requested:   d.quantity,
			}
		}
	}
	return nil
}

// movements lists the ledger postings of a note; reverse undoes them.
func movements(note Note, lines []Line, reverse bool) []inventory.Movement {
	out := make([]inventory.Movement, 0, 2*len(lines))
	outDir, inDir := inventory.DirectionOut, inventory.DirectionIn
	text := "goods out"
	if note.Transfer() {
		text = "transfer"
	}
	if reverse {
		outDir, inDir = inDir, outDir
		text = "reversal of " + note.Code
	}
	for _, line := range lines {
		out = append(out, inventory.Movement{
			WarehouseID: note.SourceWarehouseID,
			ProductID:   line.ProductID,
			Quantity:    line.Quantity,
			Direction:   outDir,
			RefModule:   Module,
			RefCode:     note.Code,
			Note:        text,
			ProductName: line.ProductName,
		})
		if note.Transfer() {
			out = append(out, inventory.Movement{
				WarehouseID: note.DestinationWarehouseID,
				ProductID:   line.ProductID,
				Quantity:    line.Quantity,
				Direction:   inDir,
				RefModule:   Module,
				RefCode:     note.Code,
				Note:        text,
				ProductName: line.ProductName,
			})
		}
	}
	return out
}

// DeleteNote removes a note and reverses its ledger effects.
func (s *Service) DeleteNote(ctx context.Context, id, actorID int64) error {
	var (
		deleted Note
		lines   []Line
	)
	err := s.Repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		note, err := tx.GetNoteForUpdate(ctx, id)
		if err != nil {
			return err
		}
		noteLines, err := tx.ListLines(ctx, id)
		if err != nil {
			return err
		}
		if _, err := s.Engine.Apply(ctx, tx.Ledger(), movements(note, noteLines, true)); err != nil {
			return err
		}
		if err := tx.DeleteNote(ctx, id); err != nil {
			return err
		}
		deleted, lines = note, noteLines
		return nil
	})
	if err != nil {
		return err
	}
	s.afterCommit(ctx, actorID, "goods_out.delete", deleted, lines, map[string]any{"code": deleted.Code})
	return nil
}

// Get returns a note with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Detail, error) {
	note, err := s.Repo.GetNote(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	lines, err := s.Repo.ListLines(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	if lines == nil {
		lines = []Line{}
	}
	return Detail{Note: note, Lines: lines}, nil
}

// ListResult is one page of notes.
type ListResult struct {
	Items      []Note            `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// List returns notes newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) (ListResult, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return ListResult{}, ErrInvalidRange
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = shared.DefaultPerPage
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	items, total, err := s.Repo.ListNotes(ctx, filter, perPage, (page-1)*perPage)
	if err != nil {
		return ListResult{}, err
	}
	if items == nil {
		items = []Note{}
	}
	return ListResult{Items: items, Pagination: shared.NewPagination(page, perPage, total)}, nil
}

func (s *Service) warehouse(ctx context.Context, id int64) (warehouses.Warehouse, error) {
	if id <= 0 {
		return warehouses.Warehouse{}, ErrInvalidWarehouse
	}
	warehouse, err := s.Warehouses.Get(ctx, id)
	if err != nil {
		if errors.Is(err, mdshared.ErrNotFound) || errors.Is(err, mdshared.ErrInvalidID) {
			return warehouses.Warehouse{}, ErrInvalidWarehouse
		}
		return warehouses.Warehouse{}, err
	}
	if !warehouse.Active() {
		return warehouses.Warehouse{}, fmt.Errorf("%w: %s is inactive", ErrInvalidWarehouse, warehouse.Code)
	}
	return warehouse, nil
}

func (s *Service) afterCommit(ctx context.Context, actorID int64, action string, note Note, lines []Line, meta map[string]any) {
	if s.Audit != nil {
		if err := s.Audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   action,
			Entity:   "goods_out_note",
			EntityID: strconv.FormatInt(note.ID, 10),
			Meta:     meta,
			At:       s.now(),
		}); err != nil {
			s.Logger.Warn("audit goods-out", slog.String("action", action), slog.Any("error", err))
		}
	}
	if s.Listener == nil {
		return
	}
	if err := s.Listener.StockChanged(ctx, inventory.StockChangedEvent{
		RefModule: Module,
		RefCode:   note.Code,
		Keys:      inventory.KeysOf(movements(note, lines, false)),
		At:        s.now(),
	}); err != nil {
		s.Logger.Warn("stock change listener", slog.String("ref", note.Code), slog.Any("error", err))
	}
}

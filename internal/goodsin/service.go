package goodsin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-wms/internal/debt"
	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	mdshared "github.com/odyssey-erp/odyssey-wms/internal/masterdata/shared"
	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/suppliers"
	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/warehouses"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// TxRepository exposes the statements of one goods-in unit of work. Ledger
// and Debts are bound to the same transaction.
type TxRepository interface {
	ResolveSupplier(ctx context.Context, id int64, name string) (suppliers.Supplier, bool, error)
	InsertNote(ctx context.Context, note Note) (Note, error)
	InsertLine(ctx context.Context, line Line) (int64, error)
	UpdateNoteTotal(ctx context.Context, id int64, total decimal.Decimal) error
	GetNoteForUpdate(ctx context.Context, id int64) (Note, error)
	ListLines(ctx context.Context, noteID int64) ([]Line, error)
	DeleteNote(ctx context.Context, id int64) error
	Ledger() inventory.TxRepository
	Debts() debt.TxRepository
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetNote(ctx context.Context, id int64) (Note, error)
	ListLines(ctx context.Context, noteID int64) ([]Line, error)
	ListNotes(ctx context.Context, filter ListFilter, limit, offset int) ([]Note, int, error)
}

// WarehouseDirectory resolves destination warehouses.
type WarehouseDirectory interface {
	Get(ctx context.Context, id int64) (warehouses.Warehouse, error)
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

// Metrics counts rejected lines.
type Metrics interface {
	RecordRejectedLine(module, reason string)
}

// Deps groups the collaborators of Service. Idempotency, Audit, Listener
// and Metrics are optional.
type Deps struct {
	Repo        RepositoryPort
	Catalog     Catalog
	Warehouses  WarehouseDirectory
	Engine      *inventory.Engine
	Debts       *debt.Generator
	Idempotency IdempotencyPort
	Audit       AuditPort
	Listener    inventory.ChangeListener
	Metrics     Metrics
	Logger      *slog.Logger
}

// Service processes goods-in notes.
type Service struct {
	Deps
	now func() time.Time
}

// NewService builds Service.
func NewService(deps Deps) *Service {
	if deps.Engine == nil {
		deps.Engine = inventory.NewEngine(nil)
	}
	if deps.Debts == nil {
		deps.Debts = debt.NewGenerator(debt.DefaultTermDays)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{Deps: deps, now: func() time.Time { return time.Now().UTC() }}
}

// CreateNote records a goods-in note, posts its accepted lines to the
// destination ledger and raises the supplier debt, all in one transaction.
func (s *Service) CreateNote(ctx context.Context, input CreateNoteInput) (Result, error) {
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
	err := s.Repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		supplier, created, err := s.resolveSupplier(ctx, tx, input)
		if err != nil {
			return err
		}
		warehouse, err := s.destination(ctx, input.WarehouseID)
		if err != nil {
			return err
		}

		note, err := tx.InsertNote(ctx, Note{
			SupplierID:  supplier.ID,
			WarehouseID: warehouse.ID,
			CreatedBy:   input.ActorID,
			Note:        input.Note,
			Total:       decimal.Zero,
			CreatedAt:   s.now(),
		})
		if err != nil {
			return fmt.Errorf("goodsin: insert note: %w", err)
		}
		note.SupplierCode, note.SupplierName, note.WarehouseName = supplier.Code, supplier.Name, warehouse.Name

		lines := make([]Line, 0, len(input.Lines))
		rejected := []RejectedLine{}
		moves := make([]inventory.Movement, 0, len(input.Lines))
		total := decimal.Zero
		for i, raw := range input.Lines {
			line, reason, err := parseLine(ctx, s.Catalog, raw)
			if err != nil {
				return fmt.Errorf("goodsin: line %d: %w", i, err)
			}
			if reason != "" {
				rejected = append(rejected, RejectedLine{Index: i, ProductName: raw.ProductName, Reason: reason})
				continue
			}
			line.NoteID = note.ID
			if line.ID, err = tx.InsertLine(ctx, line); err != nil {
				return fmt.Errorf("goodsin: insert line %d: %w", i, err)
			}
			lines = append(lines, line)
			total = total.Add(line.Amount)
			moves = append(moves, inventory.Movement{
				WarehouseID: warehouse.ID,
				ProductID:   line.ProductID,
				Quantity:    line.Quantity,
				Direction:   inventory.DirectionIn,
				RefModule:   Module,
				RefCode:     note.Code,
				Note:        "goods in from " + supplier.Name,
				ProductName: line.ProductName,
			})
		}
		if _, err := s.Engine.Apply(ctx, tx.Ledger(), moves); err != nil {
			return err
		}
		if err := tx.UpdateNoteTotal(ctx, note.ID, total); err != nil {
			return fmt.Errorf("goodsin: update total: %w", err)
		}
		note.Total = total

		payable, err := s.Debts.Generate(ctx, tx.Debts(), debt.GenerateInput{
			SupplierID:    supplier.ID,
			GoodsInNoteID: note.ID,
			NoteCode:      note.Code,
			Amount:        total,
			NoteDate:      note.CreatedAt,
		})
		if err != nil {
			return err
		}
		payable.SupplierName = supplier.Name

		result = Result{Note: note, Lines: lines, Rejected: rejected, Debt: payable, SupplierCreated: created}
		return nil
	})
	if err != nil {
		if requestKey != "" && s.Idempotency != nil {
			if delErr := s.Idempotency.Delete(ctx, requestKey); delErr != nil {
				s.Logger.Warn("release idempotency key", slog.String("module", Module), slog.Any("error", delErr))
			}
		}
		return Result{}, err
	}

	s.afterCommit(ctx, input.ActorID, "goods_in.create", result.Note, result.Lines, map[string]any{
		"lines":    len(result.Lines),
		"rejected": len(result.Rejected),
		"total":    result.Note.Total.StringFixed(2),
		"supplier": result.Note.SupplierID,
	})
	if s.Metrics != nil {
		for _, r := range result.Rejected {
			s.Metrics.RecordRejectedLine(Module, string(r.Reason))
		}
	}
	return result, nil
}

// DeleteNote removes a note, reversing its ledger effects and cancelling
// its debt in the same transaction.
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
		if err := s.Debts.Cancel(ctx, tx.Debts(), id); err != nil {
			return err
		}
		moves := make([]inventory.Movement, 0, len(noteLines))
		for _, line := range noteLines {
			moves = append(moves, inventory.Movement{
				WarehouseID: note.WarehouseID,
				ProductID:   line.ProductID,
				Quantity:    line.Quantity,
				Direction:   inventory.DirectionOut,
				RefModule:   Module,
				RefCode:     note.Code,
				Note:        "reversal of " + note.Code,
				ProductName: line.ProductName,
			})
		}
		if _, err := s.Engine.Apply(ctx, tx.Ledger(), moves); err != nil {
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
	s.afterCommit(ctx, actorID, "goods_in.delete", deleted, lines, map[string]any{"code": deleted.Code})
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

// ListResult is one page of notes with the page's summed total.
type ListResult struct {
	Items      []Note            `json:"items"`
	PageTotal  decimal.Decimal   `json:"page_total"`
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
	sum := decimal.Zero
	for _, n := range items {
		sum = sum.Add(n.Total)
	}
	if items == nil {
		items = []Note{}
	}
	return ListResult{Items: items, PageTotal: sum, Pagination: shared.NewPagination(page, perPage, total)}, nil
}

func (s *Service) resolveSupplier(ctx context.Context, tx TxRepository, input CreateNoteInput) (suppliers.Supplier, bool, error) {
	supplier, created, err := tx.ResolveSupplier(ctx, input.SupplierID, input.NewSupplierName)
	if err != nil {
		if errors.Is(err, mdshared.ErrRequiredField) || errors.Is(err, mdshared.ErrNotFound) || errors.Is(err, mdshared.ErrInvalidID) {
			return suppliers.Supplier{}, false, ErrMissingSupplier
		}
		return suppliers.Supplier{}, false, fmt.Errorf("goodsin: resolve supplier: %w", err)
	}
	return supplier, created, nil
}

func (s *Service) destination(ctx context.Context, id int64) (warehouses.Warehouse, error) {
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
			Entity:   "goods_in_note",
			EntityID: strconv.FormatInt(note.ID, 10),
			Meta:     meta,
			At:       s.now(),
		}); err != nil {
			s.Logger.Warn("audit goods-in", slog.String("action", action), slog.Any("error", err))
		}
	}
	if s.Listener == nil {
		return
	}
	keys := make([]inventory.Movement, 0, len(lines))
	for _, line := range lines {
		keys = append(keys, inventory.Movement{WarehouseID: note.WarehouseID, ProductID: line.ProductID})
	}
	if err := s.Listener.StockChanged(ctx, inventory.StockChangedEvent{
		RefModule: Module,
		RefCode:   note.Code,
		Keys:      inventory.KeysOf(keys),
		At:        s.now(),
	}); err != nil {
		s.Logger.Warn("stock change listener", slog.String("ref", note.Code), slog.Any("error", err))
	}
}

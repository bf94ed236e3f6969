package stockcount

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	mdshared "github.com/odyssey-erp/odyssey-wms/internal/masterdata/shared"
	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/warehouses"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// TxRepository exposes the statements of one counting unit of work.
type TxRepository interface {
	GetCampaignForUpdate(ctx context.Context, id int64) (Campaign, error)
	OnHand(ctx context.Context, key inventory.Key) (int64, error)
	UpsertLine(ctx context.Context, line Line) (Line, error)
	CountedProducts(ctx context.Context, countID int64) ([]int64, error)
	SetStatus(ctx context.Context, id int64, status Status, completedAt *time.Time) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	InsertCampaign(ctx context.Context, campaign Campaign) (Campaign, error)
	GetCampaign(ctx context.Context, id int64) (Campaign, error)
	ListCampaigns(ctx context.Context, filter ListFilter, limit, offset int) ([]Campaign, int, error)
	ListProductRows(ctx context.Context, countID, warehouseID int64) ([]ProductRow, error)
}

// WarehouseDirectory resolves warehouses.
type WarehouseDirectory interface {
	Get(ctx context.Context, id int64) (warehouses.Warehouse, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service runs stock-count campaigns.
type Service struct {
	repo       RepositoryPort
	warehouses WarehouseDirectory
	audit      AuditPort
	logger     *slog.Logger
	now        func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, directory WarehouseDirectory, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		warehouses: directory,
		audit:      audit,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CreateCampaign opens a draft campaign on an active warehouse.
func (s *Service) CreateCampaign(ctx context.Context, input CreateInput) (Campaign, error) {
	input.Code = strings.TrimSpace(input.Code)
	input.Name = strings.TrimSpace(input.Name)
	if input.Code == "" || input.Name == "" {
		return Campaign{}, fmt.Errorf("%w: code and name are required", ErrInvalidInput)
	}
	if input.ScheduledDate.IsZero() {
		return Campaign{}, fmt.Errorf("%w: scheduled date is required", ErrInvalidInput)
	}
	warehouse, err := s.validWarehouse(ctx, input.WarehouseID)
	if err != nil {
		return Campaign{}, err
	}
	campaign, err := s.repo.InsertCampaign(ctx, Campaign{
		Code:          input.Code,
		Name:          input.Name,
		WarehouseID:   warehouse.ID,
		ScheduledDate: input.ScheduledDate,
		Status:        StatusDraft,
		ResponsibleID: input.ResponsibleID,
		Description:   input.Description,
		CreatedAt:     s.now(),
	})
	if err != nil {
		return Campaign{}, err
	}
	campaign.WarehouseName = warehouse.Name
	s.record(ctx, input.ActorID, "stock_count.create", campaign.ID, map[string]any{"code": campaign.Code})
	return campaign, nil
}

// SubmitCount records the actual quantity of one product. The system
// quantity is the ledger on-hand at the time of submission.
func (s *Service) SubmitCount(ctx context.Context, countID int64, sub Submission, actorID int64) (Line, error) {
	lines, _, err := s.submit(ctx, countID, []Submission{sub}, false, actorID)
	if err != nil {
		return Line{}, err
	}
	return lines[0], nil
}

// SubmitBatch records several counts in one transaction and optionally
// completes the campaign.
func (s *Service) SubmitBatch(ctx context.Context, countID int64, subs []Submission, finalize bool, actorID int64) ([]Line, Campaign, error) {
	if len(subs) == 0 {
		return nil, Campaign{}, ErrEmptyLineItems
	}
	return s.submit(ctx, countID, subs, finalize, actorID)
}

func (s *Service) submit(ctx context.Context, countID int64, subs []Submission, finalize bool, actorID int64) ([]Line, Campaign, error) {
	for _, sub := range subs {
		if sub.ProductID <= 0 {
			return nil, Campaign{}, fmt.Errorf("%w: product required", ErrInvalidInput)
		}
		if sub.Actual < 0 {
			return nil, Campaign{}, ErrInvalidQuantity
		}
	}
	var (
		saved    []Line
		campaign Campaign
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		c, err := s.lockOpen(ctx, tx, countID)
		if err != nil {
			return err
		}
		out := make([]Line, 0, len(subs))
		for _, sub := range subs {
			system, err := tx.OnHand(ctx, inventory.Key{WarehouseID: c.WarehouseID, ProductID: sub.ProductID})
			if err != nil {
				return fmt.Errorf("stockcount: read on-hand: %w", err)
			}
			line, err := tx.UpsertLine(ctx, Line{
				CountID:        c.ID,
				ProductID:      sub.ProductID,
				SystemQuantity: system,
				ActualQuantity: sub.Actual,
				Variance:       sub.Actual - system,
				Note:           strings.TrimSpace(sub.Note),
				CountedAt:      s.now(),
			})
			if err != nil {
				return fmt.Errorf("stockcount: save line: %w", err)
			}
			out = append(out, line)
		}
		next := StatusInProgress
		var completedAt *time.Time
		if finalize {
			now := s.now()
			next, completedAt = StatusCompleted, &now
		}
		if next != c.Status {
			if err := tx.SetStatus(ctx, c.ID, next, completedAt); err != nil {
				return err
			}
			c.Status, c.CompletedAt = next, completedAt
		}
		saved, campaign = out, c
		return nil
	})
	if err != nil {
		return nil, Campaign{}, err
	}
	s.record(ctx, actorID, "stock_count.submit", countID, map[string]any{"lines": len(saved), "finalized": finalize})
	return saved, campaign, nil
}

// Finalize completes the campaign. When required is not empty every listed
// product must already have a line.
func (s *Service) Finalize(ctx context.Context, countID int64, required []int64, actorID int64) (Campaign, error) {
	var campaign Campaign
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		c, err := tx.GetCampaignForUpdate(ctx, countID)
		if err != nil {
			return err
		}
		if c.Completed() {
			return ErrCampaignCompleted
		}
		if len(required) > 0 {
			counted, err := tx.CountedProducts(ctx, c.ID)
			if err != nil {
				return err
			}
			if missing := missingProducts(required, counted); len(missing) > 0 {
				return &IncompleteCountError{Missing: missing}
			}
		}
		now := s.now()
		if err := tx.SetStatus(ctx, c.ID, StatusCompleted, &now); err != nil {
			return err
		}
		c.Status, c.CompletedAt = StatusCompleted, &now
		campaign = c
		return nil
	})
	if err != nil {
		return Campaign{}, err
	}
	s.record(ctx, actorID, "stock_count.finalize", countID, map[string]any{"code": campaign.Code})
	return campaign, nil
}

func missingProducts(required, counted []int64) []int64 {
	have := make(map[int64]struct{}, len(counted))
	for _, id := range counted {
		have[id] = struct{}{}
	}
	var missing []int64
	seen := make(map[int64]struct{}, len(required))
	for _, id := range required {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

func (s *Service) lockOpen(ctx context.Context, tx TxRepository, countID int64) (Campaign, error) {
	c, err := tx.GetCampaignForUpdate(ctx, countID)
	if err != nil {
		return Campaign{}, err
	}
	if c.Completed() {
		return Campaign{}, ErrCampaignCompleted
	}
	if _, err := s.validWarehouse(ctx, c.WarehouseID); err != nil {
		if errors.Is(err, ErrInvalidInput) {
			return Campaign{}, ErrInvalidCampaign
		}
		return Campaign{}, err
	}
	return c, nil
}

// Get returns the campaign with every active product and its line.
func (s *Service) Get(ctx context.Context, id int64) (Detail, error) {
	campaign, err := s.repo.GetCampaign(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	rows, err := s.repo.ListProductRows(ctx, campaign.ID, campaign.WarehouseID)
	if err != nil {
		return Detail{}, err
	}
	if rows == nil {
		rows = []ProductRow{}
	}
	counted := 0
	for _, row := range rows {
		if row.Line != nil {
			counted++
		}
	}
	return Detail{Campaign: campaign, Products: rows, Counted: counted}, nil
}

// ListResult is one page of campaigns.
type ListResult struct {
	Items      []Campaign        `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// List returns campaigns newest first.
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
	items, total, err := s.repo.ListCampaigns(ctx, filter, perPage, (page-1)*perPage)
	if err != nil {
		return ListResult{}, err
	}
	if items == nil {
		items = []Campaign{}
	}
	return ListResult{Items: items, Pagination: shared.NewPagination(page, perPage, total)}, nil
}

func (s *Service) validWarehouse(ctx context.Context, id int64) (warehouses.Warehouse, error) {
	if id <= 0 {
		return warehouses.Warehouse{}, fmt.Errorf("%w: warehouse required", ErrInvalidInput)
	}
	w, err := s.warehouses.Get(ctx, id)
	if err != nil {
		if errors.Is(err, mdshared.ErrNotFound) || errors.Is(err, mdshared.ErrInvalidID) {
			return warehouses.Warehouse{}, fmt.Errorf("%w: unknown warehouse", ErrInvalidInput)
		}
		return warehouses.Warehouse{}, err
	}
	if !w.Active() {
		return warehouses.Warehouse{}, fmt.Errorf("%w: warehouse %s is inactive", ErrInvalidInput, w.Code)
	}
	return w, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_count",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit stock count", slog.String("action", action), slog.Any("error", err))
	}
}

package debt

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Debt, error)
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]Debt, int, error)
	ListPayments(ctx context.Context, debtID int64) ([]Payment, error)
	ListOutstanding(ctx context.Context) ([]Debt, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service exposes the debt ledger.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Detail is a debt with its payments.
type Detail struct {
	Debt     Debt      `json:"debt"`
	Payments []Payment `json:"payments"`
}

// ListResult is one page of debts.
type ListResult struct {
	Items      []Debt            `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// Get returns a debt with its payments.
func (s *Service) Get(ctx context.Context, id int64) (Detail, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	payments, err := s.repo.ListPayments(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	if payments == nil {
		payments = []Payment{}
	}
	return Detail{Debt: d, Payments: payments}, nil
}

// List returns debts filtered by supplier and status.
func (s *Service) List(ctx context.Context, filter ListFilter) (ListResult, error) {
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = shared.DefaultPerPage
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	items, total, err := s.repo.List(ctx, filter, perPage, (page-1)*perPage)
	if err != nil {
		return ListResult{}, err
	}
	if items == nil {
		items = []Debt{}
	}
	return ListResult{Items: items, Pagination: shared.NewPagination(page, perPage, total)}, nil
}

// RecordPayment settles part or all of a debt.
func (s *Service) RecordPayment(ctx context.Context, input PaymentInput) (Debt, Payment, error) {
	if !input.Amount.IsPositive() {
		return Debt{}, Payment{}, ErrInvalidAmount
	}
	if input.PaidAt.IsZero() {
		input.PaidAt = s.now()
	}
	var (
		updated Debt
		payment Payment
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		d, err := tx.GetForUpdate(ctx, input.DebtID)
		if err != nil {
			return err
		}
		if !d.Remaining.IsPositive() {
			return ErrAlreadyPaid
		}
		if input.Amount.GreaterThan(d.Remaining) {
			return fmt.Errorf("%w: remaining %s", ErrOverpayment, d.Remaining.StringFixed(2))
		}
		p := Payment{
			DebtID:    d.ID,
			Amount:    input.Amount,
			PaidAt:    input.PaidAt,
			CreatedBy: input.ActorID,
			Note:      input.Note,
		}
		id, err := tx.InsertPayment(ctx, p)
		if err != nil {
			return err
		}
		p.ID = id
		d.Remaining = d.Remaining.Sub(input.Amount)
		d.Status = statusFor(d.Amount, d.Remaining)
		if err := tx.UpdateRemaining(ctx, d.ID, d.Remaining, d.Status); err != nil {
			return err
		}
		updated, payment = d, p
		return nil
	})
	if err != nil {
		return Debt{}, Payment{}, err
	}
	s.recordAudit(ctx, input.ActorID, "debt.payment", updated.ID, map[string]any{
		"amount":    payment.Amount.StringFixed(2),
		"remaining": updated.Remaining.StringFixed(2),
		"status":    string(updated.Status),
	})
	return updated, payment, nil
}

// Aging buckets outstanding amounts by days past due as of asOf.
func (s *Service) Aging(ctx context.Context, asOf time.Time) (AgingBucket, error) {
	debts, err := s.repo.ListOutstanding(ctx)
	if err != nil {
		return AgingBucket{}, err
	}
	return bucketize(debts, asOf), nil
}

// Overdue lists outstanding debts past their due date.
func (s *Service) Overdue(ctx context.Context, asOf time.Time) ([]Debt, error) {
	debts, err := s.repo.ListOutstanding(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Debt, 0, len(debts))
	for _, d := range debts {
		if d.Overdue(asOf) {
			out = append(out, d)
		}
	}
	return out, nil
}

func bucketize(debts []Debt, asOf time.Time) AgingBucket {
	bucket := AgingBucket{}
	for _, d := range debts {
		if !d.Remaining.IsPositive() {
			continue
		}

		daysOverdue := int(asOf.Sub(d.DueDate).Hours() / 24)

		switch {
		case daysOverdue <= 0:
			bucket.Current = bucket.Current.Add(d.Remaining)
		case daysOverdue <= 30:
			bucket.Bucket30 = bucket.Bucket30.Add(d.Remaining)
		case daysOverdue <= 60:
			bucket.Bucket60 = bucket.Bucket60.Add(d.Remaining)
		case daysOverdue <= 90:
			bucket.Bucket90 = bucket.Bucket90.Add(d.Remaining)
		default:
			bucket.Bucket120 = bucket.Bucket120.Add(d.Remaining)
		}
	}
	return bucket
}

// OutstandingTotal sums the remaining amount of debts.
func OutstandingTotal(debts []Debt) decimal.Decimal {
	total := decimal.Zero
	for _, d := range debts {
		total = total.Add(d.Remaining)
	}
	return total
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "debt",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit debt", slog.String("action", action), slog.Any("error", err))
	}
}

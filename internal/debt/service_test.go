package debt_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-wms/internal/debt"
	"github.com/odyssey-erp/odyssey-wms/internal/debt/debttest"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

type auditSpy struct {
	logs []shared.AuditLog
}

func (a *auditSpy) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func generate(t *testing.T, store *debttest.Store, noteID int64, amount string, noteDate time.Time) debt.Debt {
	t.Helper()
	var d debt.Debt
	err := store.WithTx(context.Background(), func(ctx context.Context, tx debt.TxRepository) error {
		var err error
		d, err = debt.NewGenerator(30).Generate(ctx, tx, debt.GenerateInput{
			SupplierID:    1,
			GoodsInNoteID: noteID,
			NoteCode:      "NK-0001",
			Amount:        decimal.RequireFromString(amount),
			NoteDate:      noteDate,
		})
		return err
	})
	require.NoError(t, err)
	return d
}

func TestGeneratorDueDateAndNote(t *testing.T) {
	store := debttest.NewStore()
	noteDate := time.Date(2024, 1, 20, 15, 4, 0, 0, time.UTC)
	d := generate(t, store, 10, "20000", noteDate)

	require.Equal(t, time.Date(2024, 2, 19, 0, 0, 0, 0, time.UTC), d.DueDate)
	require.Equal(t, debt.TypeGoodsInPayable, d.Type)
	require.Equal(t, debt.StatusOpen, d.Status)
	require.True(t, d.Remaining.Equal(d.Amount))
	require.Equal(t, "debt from goods-in note NK-0001", d.Note)
}

func TestGeneratorRejectsMissingReference(t *testing.T) {
	store := debttest.NewStore()
	err := store.WithTx(context.Background(), func(ctx context.Context, tx debt.TxRepository) error {
		_, err := debt.NewGenerator(0).Generate(ctx, tx, debt.GenerateInput{Amount: decimal.NewFromInt(1)})
		return err
	})
	require.ErrorIs(t, err, debt.ErrMissingReference)
	require.Equal(t, 0, store.Len())
}

func TestGeneratorZeroAmountIsPaid(t *testing.T) {
	store := debttest.NewStore()
	d := generate(t, store, 11, "0", time.Now())
	require.Equal(t, debt.StatusPaid, d.Status)
}

func TestRecordPaymentLifecycle(t *testing.T) {
	ctx := context.Background()
	store := debttest.NewStore()
	audit := &auditSpy{}
	svc := debt.NewService(store, audit, nil)
	d := generate(t, store, 1, "20000", time.Now())

	updated, payment, err := svc.RecordPayment(ctx, debt.PaymentInput{DebtID: d.ID, Amount: decimal.NewFromInt(5000), ActorID: 3})
	require.NoError(t, err)
	require.Equal(t, debt.StatusPartial, updated.Status)
	require.Equal(t, "15000", updated.Remaining.String())
	require.NotZero(t, payment.ID)

	_, _, err = svc.RecordPayment(ctx, debt.PaymentInput{DebtID: d.ID, Amount: decimal.NewFromInt(15001)})
	require.ErrorIs(t, err, debt.ErrOverpayment)

	updated, _, err = svc.RecordPayment(ctx, debt.PaymentInput{DebtID: d.ID, Amount: decimal.NewFromInt(15000)})
	require.NoError(t, err)
	require.Equal(t, debt.StatusPaid, updated.Status)
	require.True(t, updated.Remaining.IsZero())

	_, _, err = svc.RecordPayment(ctx, debt.PaymentInput{DebtID: d.ID, Amount: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, debt.ErrAlreadyPaid)

	_, _, err = svc.RecordPayment(ctx, debt.PaymentInput{DebtID: d.ID, Amount: decimal.Zero})
	require.ErrorIs(t, err, debt.ErrInvalidAmount)

	detail, err := svc.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, detail.Payments, 2)
	require.Len(t, audit.logs, 2)
	require.Equal(t, "debt.payment", audit.logs[0].Action)
}

func TestCancelRefusesPaidDebt(t *testing.T) {
	ctx := context.Background()
	store := debttest.NewStore()
	svc := debt.NewService(store, nil, nil)
	gen := debt.NewGenerator(30)
	d := generate(t, store, 7, "100", time.Now())

	_, _, err := svc.RecordPayment(ctx, debt.PaymentInput{DebtID: d.ID, Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)

	err = store.WithTx(ctx, func(ctx context.Context, tx debt.TxRepository) error {
		return gen.Cancel(ctx, tx, 7)
	})
	require.ErrorIs(t, err, debt.ErrDebtHasPayments)
	require.Equal(t, 1, store.Len())

	err = store.WithTx(ctx, func(ctx context.Context, tx debt.TxRepository) error {
		return gen.Cancel(ctx, tx, 99)
	})
	require.NoError(t, err)
}

func TestAgingBuckets(t *testing.T) {
	ctx := context.Background()
	store := debttest.NewStore()
	svc := debt.NewService(store, nil, nil)
	asOf := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	// due dates land 30 days after the note date
	generate(t, store, 1, "100", asOf.AddDate(0, 0, -10))  // not yet due
	generate(t, store, 2, "200", asOf.AddDate(0, 0, -45))  // 15 days late
	generate(t, store, 3, "300", asOf.AddDate(0, 0, -80))  // 50 days late
	generate(t, store, 4, "400", asOf.AddDate(0, 0, -110)) // 80 days late
	generate(t, store, 5, "500", asOf.AddDate(0, 0, -200)) // 170 days late

	bucket, err := svc.Aging(ctx, asOf)
	require.NoError(t, err)
	require.Equal(t, "100", bucket.Current.String())
	require.Equal(t, "200", bucket.Bucket30.String())
	require.Equal(t, "300", bucket.Bucket60.String())
	require.Equal(t, "400", bucket.Bucket90.String())
	require.Equal(t, "500", bucket.Bucket120.String())
	require.Equal(t, "1500", bucket.Total().String())

	overdue, err := svc.Overdue(ctx, asOf)
	require.NoError(t, err)
	require.Len(t, overdue, 4)
	require.Equal(t, "1400", debt.OutstandingTotal(overdue).String())
}

func TestHandlerPaymentOverpaymentConflict(t *testing.T) {
	store := debttest.NewStore()
	svc := debt.NewService(store, nil, nil)
	d := generate(t, store, 1, "50", time.Now())
	router := chi.NewRouter()
	debt.NewHandler(nil, svc).MountRoutes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/1/payments", strings.NewReader(`{"amount":"60"}`)))
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/1/payments", strings.NewReader(`{"amount":"20.50","paid_at":"2024-03-01"}`)))
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Contains(t, rr.Body.String(), `"status":"partial"`)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/1", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, int64(1), d.ID)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/?status=bogus", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

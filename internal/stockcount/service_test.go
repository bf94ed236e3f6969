package stockcount

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/inventory/inventorytest"
	mdshared "github.com/odyssey-erp/odyssey-wms/internal/masterdata/shared"
	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/warehouses"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

type product struct {
	id   int64
	code string
	name string
}

type memoryRepo struct {
	mu        sync.Mutex
	ledger    *inventorytest.Ledger
	products  []product
	campaigns map[int64]Campaign
	lines     map[int64]map[int64]Line
	nextID    int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		ledger: inventorytest.NewLedger(),
		products: []product{
			{id: 10, code: "P-10", name: "Widget"},
			{id: 11, code: "P-11", name: "Gadget"},
		},
		campaigns: map[int64]Campaign{},
		lines:     map[int64]map[int64]Line{},
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	release := r.ledger.Lock()
	defer release()
	r.mu.Lock()
	campaigns := make(map[int64]Campaign, len(r.campaigns))
	for k, v := range r.campaigns {
		campaigns[k] = v
	}
	lines := make(map[int64]map[int64]Line, len(r.lines))
	for k, v := range r.lines {
		inner := make(map[int64]Line, len(v))
		for pk, pv := range v {
			inner[pk] = pv
		}
		lines[k] = inner
	}
	r.mu.Unlock()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.mu.Lock()
		r.campaigns, r.lines = campaigns, lines
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *memoryRepo) InsertCampaign(_ context.Context, c Campaign) (Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.campaigns {
		if existing.Code == c.Code {
			return Campaign{}, ErrDuplicateCode
		}
	}
	r.nextID++
	c.ID = r.nextID
	r.campaigns[c.ID] = c
	return c, nil
}

func (r *memoryRepo) GetCampaign(_ context.Context, id int64) (Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return Campaign{}, ErrNotFound
	}
	return c, nil
}

func (r *memoryRepo) ListCampaigns(_ context.Context, filter ListFilter, limit, offset int) ([]Campaign, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Campaign
	for id := r.nextID; id > 0; id-- {
		c, ok := r.campaigns[id]
		if !ok || (filter.Status != "" && c.Status != filter.Status) {
			continue
		}
		if filter.Search != "" && !strings.Contains(c.Code, filter.Search) && !strings.Contains(c.Name, filter.Search) {
			continue
		}
		out = append(out, c)
	}
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (r *memoryRepo) ListProductRows(ctx context.Context, countID, warehouseID int64) ([]ProductRow, error) {
	rows := make([]ProductRow, 0, len(r.products))
	for _, p := range r.products {
		row := ProductRow{ProductID: p.id, ProductCode: p.code, ProductName: p.name, SystemQuantity: r.ledger.OnHand(warehouseID, p.id)}
		r.mu.Lock()
		if line, ok := r.lines[countID][p.id]; ok {
			row.Line = &line
		}
		r.mu.Unlock()
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ProductName < rows[j].ProductName })
	return rows, nil
}

func (tx *memoryTx) GetCampaignForUpdate(ctx context.Context, id int64) (Campaign, error) {
	return tx.repo.GetCampaign(ctx, id)
}

func (tx *memoryTx) OnHand(ctx context.Context, key inventory.Key) (int64, error) {
	level, err := tx.repo.ledger.Level(ctx, key)
	return level.OnHand, err
}

func (tx *memoryTx) UpsertLine(_ context.Context, line Line) (Line, error) {
	r := tx.repo
	r.mu.Lock()
	defer r.mu.Unlock()
	known := false
	for _, p := range r.products {
		if p.id == line.ProductID {
			line.ProductName = p.name
			known = true
		}
	}
	if !known {
		return Line{}, fmt.Errorf("%w: unknown product %d", ErrInvalidInput, line.ProductID)
	}
	if r.lines[line.CountID] == nil {
		r.lines[line.CountID] = map[int64]Line{}
	}
	r.lines[line.CountID][line.ProductID] = line
	return line, nil
}

func (tx *memoryTx) CountedProducts(_ context.Context, countID int64) ([]int64, error) {
	r := tx.repo
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for id := range r.lines[countID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (tx *memoryTx) SetStatus(_ context.Context, id int64, status Status, completedAt *time.Time) error {
	r := tx.repo
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.campaigns[id]
	c.Status, c.CompletedAt = status, completedAt
	r.campaigns[id] = c
	return nil
}

type directory map[int64]warehouses.Warehouse

func (d directory) Get(_ context.Context, id int64) (warehouses.Warehouse, error) {
	if w, ok := d[id]; ok {
		return w, nil
	}
	return warehouses.Warehouse{}, mdshared.ErrNotFound
}

type auditSpy struct {
	actions []string
}

func (a *auditSpy) Record(_ context.Context, log shared.AuditLog) error {
	a.actions = append(a.actions, log.Action)
	return nil
}

type fixture struct {
	repo  *memoryRepo
	dir   directory
	audit *auditSpy
	svc   *Service
}

func newFixture(t *testing.T) (fixture, Campaign) {
	t.Helper()
	repo := newMemoryRepo()
	dir := directory{
		1: {ID: 1, Code: "W1", Name: "Main", Status: warehouses.StatusActive},
		2: {ID: 2, Code: "W2", Name: "Closed", Status: warehouses.StatusInactive},
	}
	audit := &auditSpy{}
	f := fixture{repo: repo, dir: dir, audit: audit, svc: NewService(repo, dir, audit, nil)}
	c, err := f.svc.CreateCampaign(context.Background(), CreateInput{
		Code:          "SC-2024-01",
		Name:          "January count",
		WarehouseID:   1,
		ScheduledDate: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return f, c
}

func TestCreateCampaignValidation(t *testing.T) {
	f, c := newFixture(t)
	ctx := context.Background()
	require.Equal(t, StatusDraft, c.Status)
	require.Equal(t, "Main", c.WarehouseName)

	base := CreateInput{Code: "SC-2", Name: "Second", WarehouseID: 1, ScheduledDate: time.Now()}

	dup := base
	dup.Code = "SC-2024-01"
	_, err := f.svc.CreateCampaign(ctx, dup)
	require.ErrorIs(t, err, ErrDuplicateCode)

	inactive := base
	inactive.WarehouseID = 2
	_, err = f.svc.CreateCampaign(ctx, inactive)
	require.ErrorIs(t, err, ErrInvalidInput)

	unnamed := base
	unnamed.Name = " "
	_, err = f.svc.CreateCampaign(ctx, unnamed)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestSubmitCountSnapshotsOnHandWithoutTouchingLedger(t *testing.T) {
	f, c := newFixture(t)
	ctx := context.Background()
	f.repo.ledger.Seed(1, 10, 50)

	line, err := f.svc.SubmitCount(ctx, c.ID, Submission{ProductID: 10, Actual: 47, Note: "three damaged"}, 9)
	require.NoError(t, err)
	require.Equal(t, int64(50), line.SystemQuantity)
	require.Equal(t, int64(47), line.ActualQuantity)
	require.Equal(t, int64(-3), line.Variance)
	require.Equal(t, "Widget", line.ProductName)
	require.Equal(t, int64(50), f.repo.ledger.OnHand(1, 10))
	require.Empty(t, f.repo.ledger.Cards())

	got, err := f.repo.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, got.Status)
}

func TestResubmitRecomputesVariance(t *testing.T) {
	f, c := newFixture(t)
	ctx := context.Background()
	f.repo.ledger.Seed(1, 10, 50)

	_, err := f.svc.SubmitCount(ctx, c.ID, Submission{ProductID: 10, Actual: 47}, 9)
	require.NoError(t, err)
	f.repo.ledger.Seed(1, 10, 45)
	line, err := f.svc.SubmitCount(ctx, c.ID, Submission{ProductID: 10, Actual: 47}, 9)
	require.NoError(t, err)
	require.Equal(t, int64(45), line.SystemQuantity)
	require.Equal(t, int64(2), line.Variance)

	detail, err := f.svc.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, 1, detail.Counted)
	require.Len(t, detail.Products, 2)
	require.Equal(t, "Gadget", detail.Products[0].ProductName)
	require.Nil(t, detail.Products[0].Line)
	require.Equal(t, int64(2), detail.Products[1].Line.Variance)
}

func TestSubmitCountUnknownProductOnHandIsZero(t *testing.T) {
	f, c := newFixture(t)

	line, err := f.svc.SubmitCount(context.Background(), c.ID, Submission{ProductID: 11, Actual: 4}, 9)
	require.NoError(t, err)
	require.Equal(t, int64(0), line.SystemQuantity)
	require.Equal(t, int64(4), line.Variance)
	require.Zero(t, f.repo.ledger.Len())
}

func TestSubmitCountUnknownProduct(t *testing.T) {
	f, c := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SubmitCount(ctx, c.ID, Submission{ProductID: 999, Actual: 1}, 9)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, _, err = f.svc.SubmitBatch(ctx, c.ID, []Submission{
		{ProductID: 10, Actual: 3},
		{ProductID: 999, Actual: 1},
	}, false, 9)
	require.ErrorIs(t, err, ErrInvalidInput)
	require.Empty(t, f.repo.lines[c.ID])

	r := chi.NewRouter()
	r.Route("/stock-counts", NewHandler(nil, f.svc).MountRoutes)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stock-counts/1/lines", strings.NewReader(`{"product_id":999,"actual_quantity":1}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "unknown product 999")
}

func TestSubmitCountInvalidCampaign(t *testing.T) {
	f, c := newFixture(t)
	ctx := context.Background()

	w := f.dir[1]
	w.Status = warehouses.StatusInactive
	f.dir[1] = w
	_, err := f.svc.SubmitCount(ctx, c.ID, Submission{ProductID: 10, Actual: 1}, 9)
	require.ErrorIs(t, err, ErrInvalidCampaign)

	delete(f.dir, 1)
	_, err = f.svc.SubmitCount(ctx, c.ID, Submission{ProductID: 10, Actual: 1}, 9)
	require.ErrorIs(t, err, ErrInvalidCampaign)

	_, err = f.svc.SubmitCount(ctx, 99, Submission{ProductID: 10, Actual: 1}, 9)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.SubmitCount(ctx, c.ID, Submission{ProductID: 10, Actual: -1}, 9)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestFinalizeRequiresListedProducts(t *testing.T) {
	f, c := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.SubmitCount(ctx, c.ID, Submission{ProductID: 10, Actual: 1}, 9)
	require.NoError(t, err)

	_, err = f.svc.Finalize(ctx, c.ID, []int64{10, 11, 11}, 9)
	var incomplete *IncompleteCountError
	require.ErrorAs(t, err, &incomplete)
	require.Equal(t, []int64{11}, incomplete.Missing)
	require.ErrorIs(t, err, ErrIncompleteCount)

	done, err := f.svc.Finalize(ctx, c.ID, []int64{10}, 9)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)

	_, err = f.svc.SubmitCount(ctx, c.ID, Submission{ProductID: 11, Actual: 1}, 9)
	require.ErrorIs(t, err, ErrCampaignCompleted)
	_, err = f.svc.Finalize(ctx, c.ID, nil, 9)
	require.ErrorIs(t, err, ErrCampaignCompleted)
	require.Equal(t, []string{"stock_count.create", "stock_count.submit", "stock_count.finalize"}, f.audit.actions)
}

func TestSubmitBatchIsAtomic(t *testing.T) {
	f, c := newFixture(t)
	ctx := context.Background()
	f.repo.ledger.Seed(1, 10, 5)
	f.repo.ledger.Seed(1, 11, 7)

	_, _, err := f.svc.SubmitBatch(ctx, c.ID, nil, false, 9)
	require.ErrorIs(t, err, ErrEmptyLineItems)

	lines, campaign, err := f.svc.SubmitBatch(ctx, c.ID, []Submission{
		{ProductID: 10, Actual: 5},
		{ProductID: 11, Actual: 6},
	}, true, 9)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.Equal(t, int64(0), lines[0].Variance)
	require.Equal(t, int64(-1), lines[1].Variance)
	require.Equal(t, StatusCompleted, campaign.Status)
}

func TestListCampaigns(t *testing.T) {
	f, _ := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateCampaign(ctx, CreateInput{Code: "SC-2024-02", Name: "February", WarehouseID: 1, ScheduledDate: time.Now()})
	require.NoError(t, err)

	all, err := f.svc.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all.Items, 2)
	require.Equal(t, "SC-2024-02", all.Items[0].Code)
	require.Equal(t, 2, all.Pagination.Total)

	found, err := f.svc.List(ctx, ListFilter{Search: "January"})
	require.NoError(t, err)
	require.Len(t, found.Items, 1)

	_, err = f.svc.List(ctx, ListFilter{From: time.Now(), To: time.Now().Add(-time.Hour)})
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestHandlerSubmitLineReturnsVariance(t *testing.T) {
	f, c := newFixture(t)
	f.repo.ledger.Seed(1, 10, 12)
	r := chi.NewRouter()
	r.Route("/stock-counts", NewHandler(nil, f.svc).MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stock-counts/1/lines", strings.NewReader(`{"product_id":10,"actual_quantity":10}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	var line Line
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &line))
	require.Equal(t, c.ID, line.CountID)
	require.Equal(t, int64(-2), line.Variance)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stock-counts/1/finalize", strings.NewReader(`{"required_products":[10,11]}`)))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), `"missing":[11]`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stock-counts/1/submit", strings.NewReader(`{"lines":[{"product_id":11,"actual_quantity":0}],"finalize":true}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stock-counts/1/lines", strings.NewReader(`{"product_id":10,"actual_quantity":1}`)))
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stock-counts/1/lines", strings.NewReader(`{"product_id":0,"actual_quantity":1}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

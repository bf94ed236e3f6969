package goodsout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/inventory/inventorytest"
	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/products"
	mdshared "github.com/odyssey-erp/odyssey-wms/internal/masterdata/shared"
	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/warehouses"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

type memoryRepo struct {
	mu     sync.Mutex
	ledger *inventorytest.Ledger
	notes  map[int64]Note
	lines  map[int64][]Line
	nextID int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		ledger: inventorytest.NewLedger(),
		notes:  map[int64]Note{},
		lines:  map[int64][]Line{},
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	release := r.ledger.Lock()
	defer release()
	restoreLedger := r.ledger.Checkpoint()
	r.mu.Lock()
	notes, lines, next := make(map[int64]Note, len(r.notes)), make(map[int64][]Line, len(r.lines)), r.nextID
	for k, v := range r.notes {
		notes[k] = v
	}
	for k, v := range r.lines {
		lines[k] = append([]Line(nil), v...)
	}
	r.mu.Unlock()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		restoreLedger()
		r.mu.Lock()
		r.notes, r.lines, r.nextID = notes, lines, next
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *memoryRepo) GetNote(_ context.Context, id int64) (Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notes[id]
	if !ok {
		return Note{}, ErrNotFound
	}
	return n, nil
}

func (r *memoryRepo) ListLines(_ context.Context, noteID int64) ([]Line, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Line(nil), r.lines[noteID]...), nil
}

func (r *memoryRepo) ListNotes(_ context.Context, filter ListFilter, limit, offset int) ([]Note, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Note
	for id := r.nextID; id > 0; id-- {
		n, ok := r.notes[id]
		if !ok || (filter.Kind != "" && n.Kind != filter.Kind) {
			continue
		}
		out = append(out, n)
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

func (r *memoryRepo) noteCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notes)
}

func (tx *memoryTx) InsertNote(_ context.Context, note Note) (Note, error) {
	r := tx.repo
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	note.ID = r.nextID
	note.Code = FormatCode(note.Kind, note.ID)
	r.notes[note.ID] = note
	return note, nil
}

func (tx *memoryTx) InsertLine(_ context.Context, line Line) (int64, error) {
	r := tx.repo
	r.mu.Lock()
	defer r.mu.Unlock()
	line.ID = int64(len(r.lines[line.NoteID]) + 1)
	r.lines[line.NoteID] = append(r.lines[line.NoteID], line)
	return line.ID, nil
}

func (tx *memoryTx) GetNoteForUpdate(ctx context.Context, id int64) (Note, error) {
	return tx.repo.GetNote(ctx, id)
}

func (tx *memoryTx) ListLines(ctx context.Context, noteID int64) ([]Line, error) {
	return tx.repo.ListLines(ctx, noteID)
}

func (tx *memoryTx) DeleteNote(_ context.Context, id int64) error {
	r := tx.repo
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.notes, id)
	delete(r.lines, id)
	return nil
}

func (tx *memoryTx) Ledger() inventory.TxRepository { return tx.repo.ledger }

type levels struct {
	ledger *inventorytest.Ledger
}

func (l levels) Inspect(ctx context.Context, key inventory.Key) (inventory.Level, error) {
	return l.ledger.Level(ctx, key)
}

type catalog map[string]products.Product

func (c catalog) FindByName(_ context.Context, name string) (products.Product, error) {
	if p, ok := c[name]; ok {
		return p, nil
	}
	return products.Product{}, mdshared.ErrNotFound
}

type directory map[int64]warehouses.Warehouse

func (d directory) Get(_ context.Context, id int64) (warehouses.Warehouse, error) {
	if w, ok := d[id]; ok {
		return w, nil
	}
	return warehouses.Warehouse{}, mdshared.ErrNotFound
}

type memoryIdempotency struct {
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(_ context.Context, key, _ string) error {
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdempotency) Delete(_ context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

type metricsSpy struct {
	rejected      []string
	compensations int
}

func (m *metricsSpy) RecordRejectedLine(_, reason string) { m.rejected = append(m.rejected, reason) }

func (m *metricsSpy) RecordCompensation(string) { m.compensations++ }

type listenerSpy struct {
	events []inventory.StockChangedEvent
}

func (l *listenerSpy) StockChanged(_ context.Context, evt inventory.StockChangedEvent) error {
	l.events = append(l.events, evt)
	return nil
}

type fixture struct {
	repo     *memoryRepo
	svc      *Service
	idem     *memoryIdempotency
	metrics  *metricsSpy
	listener *listenerSpy
}

func newFixture() fixture {
	repo := newMemoryRepo()
	idem := &memoryIdempotency{keys: map[string]bool{}}
	metrics := &metricsSpy{}
	listener := &listenerSpy{}
	svc := NewService(Deps{
		Repo: repo,
		Catalog: catalog{
			"Widget":  {ID: 10, Name: "Widget", IsActive: true},
			"Gadget":  {ID: 11, Name: "Gadget", IsActive: true},
			"Retired": {ID: 12, Name: "Retired", IsActive: false},
		},
		Warehouses: directory{
			1: {ID: 1, Code: "W1", Name: "Main", Status: warehouses.StatusActive},
			2: {ID: 2, Code: "W2", Name: "Branch", Status: warehouses.StatusActive},
			3: {ID: 3, Code: "W3", Name: "Closed", Status: warehouses.StatusInactive},
		},
		Stock:       levels{ledger: repo.ledger},
		Engine:      inventory.NewEngine(nil),
		Idempotency: idem,
		Listener:    listener,
		Metrics:     metrics,
	})
	return fixture{repo: repo, svc: svc, idem: idem, metrics: metrics, listener: listener}
}

func transfer(qty string, names ...string) CreateInput {
	lines := make([]RawLine, 0, len(names))
	for _, name := range names {
		lines = append(lines, RawLine{ProductName: name, Quantity: qty})
	}
	return CreateInput{SourceWarehouseID: 1, DestinationWarehouseID: 2, Lines: lines, ActorID: 7}
}

func TestTransferWorkedExample(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.repo.ledger.Seed(1, 10, 50)

	result, err := f.svc.CreateInternalTransfer(ctx, transfer("30", "Widget"))
	require.NoError(t, err)
	require.Equal(t, "XKNB-0001", result.Note.Code)
	require.Equal(t, KindTransfer, result.Note.Kind)
	require.Equal(t, int64(20), f.repo.ledger.OnHand(1, 10))
	require.Equal(t, int64(30), f.repo.ledger.OnHand(2, 10))

	f.repo.ledger.Seed(1, 10, 50)
	f.repo.ledger.Seed(2, 10, 30)

	_, err = f.svc.CreateInternalTransfer(ctx, transfer("60", "Widget"))
	var shortErr *inventory.InsufficientStockError
	require.ErrorAs(t, err, &shortErr)
	require.Equal(t, int64(50), shortErr.Available)
	require.Equal(t, int64(60), shortErr.Requested)
	require.Equal(t, "Widget", shortErr.Product)
	require.Equal(t, int64(50), f.repo.ledger.OnHand(1, 10))
	require.Equal(t, int64(30), f.repo.ledger.OnHand(2, 10))
	require.Equal(t, 1, f.repo.noteCount())
	require.Zero(t, f.metrics.compensations)
}

func TestTransferConservesTotalOnHand(t *testing.T) {
	f := newFixture()
	f.repo.ledger.Seed(1, 10, 40)
	f.repo.ledger.Seed(2, 10, 5)

	_, err := f.svc.CreateInternalTransfer(context.Background(), transfer("15", "Widget"))
	require.NoError(t, err)

	src, _ := f.repo.ledger.Entry(1, 10)
	dst, _ := f.repo.ledger.Entry(2, 10)
	require.Equal(t, int64(25), src.Available)
	require.Equal(t, int64(20), dst.OnHand)
	require.Equal(t, int64(20), dst.Available)
	require.Equal(t, int64(45), src.OnHand+dst.OnHand)
}

func TestTransferPreflightAggregatesPerProduct(t *testing.T) {
	f := newFixture()
	f.repo.ledger.Seed(1, 10, 50)
	f.repo.ledger.Seed(1, 11, 5)

	input := CreateInput{
		SourceWarehouseID:      1,
		DestinationWarehouseID: 2,
		Lines: []RawLine{
			{ProductName: "Widget", Quantity: "30"},
			{ProductName: "Gadget", Quantity: "10"},
			{ProductName: "Widget", Quantity: "30"},
		},
	}
	_, err := f.svc.CreateInternalTransfer(context.Background(), input)
	var shortErr *inventory.InsufficientStockError
	require.ErrorAs(t, err, &shortErr)
	require.Equal(t, "Widget", shortErr.Product)
	require.Equal(t, int64(60), shortErr.Requested)
	require.Equal(t, int64(50), f.repo.ledger.OnHand(1, 10))
	require.Equal(t, int64(5), f.repo.ledger.OnHand(1, 11))
	require.Zero(t, f.repo.noteCount())
}

func TestTransferPreconditions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.repo.ledger.Seed(1, 10, 50)

	input := transfer("1", "Widget")
	input.DestinationWarehouseID = 1
	_, err := f.svc.CreateInternalTransfer(ctx, input)
	require.ErrorIs(t, err, ErrSameWarehouse)

	_, err = f.svc.CreateInternalTransfer(ctx, transfer("1", "Unknown", " ", "Retired"))
	require.ErrorIs(t, err, ErrEmptyLineItems)

	_, err = f.svc.CreateInternalTransfer(ctx, transfer("abc", "Widget"))
	require.ErrorIs(t, err, ErrEmptyLineItems)

	input = transfer("1", "Widget")
	input.DestinationWarehouseID = 3
	_, err = f.svc.CreateInternalTransfer(ctx, input)
	require.ErrorIs(t, err, ErrInvalidWarehouse)

	input = transfer("1", "Widget")
	input.DestinationWarehouseID = 0
	_, err = f.svc.CreateInternalTransfer(ctx, input)
	require.ErrorIs(t, err, ErrInvalidWarehouse)

	require.Zero(t, f.repo.noteCount())
}

func TestTransferRejectsLinesButKeepsGood(t *testing.T) {
	f := newFixture()
	f.repo.ledger.Seed(1, 10, 10)

	result, err := f.svc.CreateInternalTransfer(context.Background(), CreateInput{
		SourceWarehouseID:      1,
		DestinationWarehouseID: 2,
		Lines: []RawLine{
			{ProductName: "Widget", Quantity: "4"},
			{ProductName: "Retired", Quantity: "1"},
			{ProductName: "Widget", Quantity: "-2"},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Lines, 1)
	require.Equal(t, []RejectedLine{
		{Index: 1, ProductName: "Retired", Reason: RejectInactiveProduct},
		{Index: 2, ProductName: "Widget", Reason: RejectInvalidQuantity},
	}, result.Rejected)
	require.Equal(t, []string{"product_inactive", "invalid_quantity"}, f.metrics.rejected)
	require.Equal(t, int64(6), f.repo.ledger.OnHand(1, 10))
}

func TestTransferCompensatesLateConflict(t *testing.T) {
	f := newFixture()
	f.repo.ledger.Seed(1, 10, 50)

	var once sync.Once
	f.repo.ledger.OnLock(func(key inventory.Key) error {
		if key.WarehouseID == 1 {
			// another writer drains the source after pre-flight
			once.Do(func() { f.repo.ledger.Seed(1, 10, 10) })
		}
		return nil
	})

	_, err := f.svc.CreateInternalTransfer(context.Background(), transfer("30", "Widget"))
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	require.Zero(t, f.repo.noteCount())
	require.Equal(t, 1, f.metrics.compensations)
	require.Empty(t, f.listener.events)
	_, ok := f.repo.ledger.Entry(2, 10)
	require.False(t, ok)
}

func TestCreateIssueDecreasesSourceOnly(t *testing.T) {
	f := newFixture()
	f.repo.ledger.Seed(1, 10, 8)

	result, err := f.svc.CreateIssue(context.Background(), CreateInput{
		SourceWarehouseID:      1,
		DestinationWarehouseID: 2,
		Lines:                  []RawLine{{ProductName: "Widget", Quantity: "3"}},
	})
	require.NoError(t, err)
	require.Equal(t, "XK-0001", result.Note.Code)
	require.False(t, result.Note.Transfer())
	require.Equal(t, int64(5), f.repo.ledger.OnHand(1, 10))
	require.Equal(t, 1, f.repo.ledger.Len())
	require.Equal(t, []inventory.Key{{WarehouseID: 1, ProductID: 10}}, f.listener.events[0].Keys)
}

func TestCreateIdempotencyKey(t *testing.T) {
	f := newFixture()
	f.repo.ledger.Seed(1, 10, 50)
	input := transfer("1", "Widget")
	input.IdempotencyKey = "abc"

	_, err := f.svc.CreateInternalTransfer(context.Background(), input)
	require.NoError(t, err)
	_, err = f.svc.CreateInternalTransfer(context.Background(), input)
	require.ErrorIs(t, err, ErrDuplicateRequest)
	require.Equal(t, int64(49), f.repo.ledger.OnHand(1, 10))
}

func TestCreateReleasesIdempotencyKeyOnFailure(t *testing.T) {
	f := newFixture()
	f.repo.ledger.Seed(1, 10, 50)
	errTimeout := errors.New("lock timeout")
	f.repo.ledger.OnLock(func(inventory.Key) error { return errTimeout })
	input := transfer("1", "Widget")
	input.IdempotencyKey = "abc"

	_, err := f.svc.CreateInternalTransfer(context.Background(), input)
	require.ErrorIs(t, err, errTimeout)
	require.Empty(t, f.idem.keys)
}

func TestDeleteTransferReversesBothSides(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.repo.ledger.Seed(1, 10, 50)
	result, err := f.svc.CreateInternalTransfer(ctx, transfer("30", "Widget"))
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteNote(ctx, result.Note.ID, 7))
	require.Equal(t, int64(50), f.repo.ledger.OnHand(1, 10))
	require.Equal(t, int64(0), f.repo.ledger.OnHand(2, 10))
	require.Zero(t, f.repo.noteCount())

	require.ErrorIs(t, f.svc.DeleteNote(ctx, result.Note.ID, 7), ErrNotFound)
}

func TestDeleteTransferRefusedWhenDestinationConsumed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.repo.ledger.Seed(1, 10, 50)
	result, err := f.svc.CreateInternalTransfer(ctx, transfer("30", "Widget"))
	require.NoError(t, err)
	f.repo.ledger.Seed(2, 10, 10)

	err = f.svc.DeleteNote(ctx, result.Note.ID, 7)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	require.Equal(t, int64(20), f.repo.ledger.OnHand(1, 10))
	require.Equal(t, 1, f.repo.noteCount())
}

func TestListFiltersKind(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.repo.ledger.Seed(1, 10, 50)
	_, err := f.svc.CreateInternalTransfer(ctx, transfer("1", "Widget"))
	require.NoError(t, err)
	_, err = f.svc.CreateIssue(ctx, CreateInput{SourceWarehouseID: 1, Lines: []RawLine{{ProductName: "Widget", Quantity: "1"}}})
	require.NoError(t, err)

	all, err := f.svc.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all.Items, 2)
	require.Equal(t, "XK-0002", all.Items[0].Code)

	transfers, err := f.svc.List(ctx, ListFilter{Kind: KindTransfer})
	require.NoError(t, err)
	require.Len(t, transfers.Items, 1)
	require.Equal(t, "XKNB-0001", transfers.Items[0].Code)
}

func newRouter(f fixture) http.Handler {
	r := chi.NewRouter()
	r.Route("/goods-out", NewHandler(nil, f.svc).MountRoutes)
	return r
}

func TestHandlerTransferConflictNamesProduct(t *testing.T) {
	f := newFixture()
	f.repo.ledger.Seed(1, 10, 50)
	router := newRouter(f)

	body := `{"source_warehouse_id":1,"destination_warehouse_id":2,"product_names":["Widget"],"quantities":[60]}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/goods-out/transfers", strings.NewReader(body)))
	require.Equal(t, http.StatusConflict, rec.Code)

	var problem struct {
		Title     string `json:"title"`
		Product   string `json:"product"`
		Available int64  `json:"available"`
		Requested int64  `json:"requested"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "Insufficient Stock", problem.Title)
	require.Equal(t, "Widget", problem.Product)
	require.Equal(t, int64(50), problem.Available)
	require.Equal(t, int64(60), problem.Requested)
}

func TestHandlerTransferCreated(t *testing.T) {
	f := newFixture()
	f.repo.ledger.Seed(1, 10, 50)
	router := newRouter(f)

	body := `{"source_warehouse_id":1,"destination_warehouse_id":2,"product_names":["Widget","Nope"],"quantities":["30","1"]}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/goods-out/transfers", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var result Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, "XKNB-0001", result.Note.Code)
	require.Len(t, result.Rejected, 1)
	require.Equal(t, RejectUnknownProduct, result.Rejected[0].Reason)
}

func TestHandlerMapsPreconditionErrors(t *testing.T) {
	f := newFixture()
	router := newRouter(f)

	cases := map[string]int{
		`{"source_warehouse_id":1,"destination_warehouse_id":1,"product_names":["Widget"],"quantities":[1]}`: http.StatusBadRequest,
		`{"source_warehouse_id":1,"destination_warehouse_id":2,"product_names":[],"quantities":[]}`:          http.StatusBadRequest,
	}
	for body, want := range cases {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/goods-out/transfers", strings.NewReader(body)))
		require.Equal(t, want, rec.Code, body)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/goods-out/99", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

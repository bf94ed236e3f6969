package goodsin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-wms/internal/debt"
	"github.com/odyssey-erp/odyssey-wms/internal/debt/debttest"
	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/inventory/inventorytest"
	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/products"
	mdshared "github.com/odyssey-erp/odyssey-wms/internal/masterdata/shared"
	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/suppliers"
	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/warehouses"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

type memoryRepo struct {
	mu        sync.Mutex
	ledger    *inventorytest.Ledger
	debts     *debttest.Store
	notes     map[int64]Note
	lines     map[int64][]Line
	suppliers map[int64]suppliers.Supplier
	nextID    int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		ledger:    inventorytest.NewLedger(),
		debts:     debttest.NewStore(),
		notes:     map[int64]Note{},
		lines:     map[int64][]Line{},
		suppliers: map[int64]suppliers.Supplier{1: {ID: 1, Code: "NCC-0001", Name: "Acme"}},
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	release := r.ledger.Lock()
	defer release()
	restoreLedger := r.ledger.Checkpoint()
	restoreDebts := r.debts.Checkpoint()
	r.mu.Lock()
	notes, lines, sups, next := copyNotes(r.notes), copyLines(r.lines), copySuppliers(r.suppliers), r.nextID
	r.mu.Unlock()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		restoreLedger()
		restoreDebts()
		r.mu.Lock()
		r.notes, r.lines, r.suppliers, r.nextID = notes, lines, sups, next
		r.mu.Unlock()
		return err
	}
	return nil
}

func copyNotes(in map[int64]Note) map[int64]Note {
	out := make(map[int64]Note, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyLines(in map[int64][]Line) map[int64][]Line {
	out := make(map[int64][]Line, len(in))
	for k, v := range in {
		out[k] = append([]Line(nil), v...)
	}
	return out
}

func copySuppliers(in map[int64]suppliers.Supplier) map[int64]suppliers.Supplier {
	out := make(map[int64]suppliers.Supplier, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
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
		if !ok {
			continue
		}
		if filter.Search != "" && !strings.Contains(n.Code, filter.Search) && !strings.Contains(n.SupplierName, filter.Search) {
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

func (tx *memoryTx) ResolveSupplier(_ context.Context, id int64, name string) (suppliers.Supplier, bool, error) {
	r := tx.repo
	r.mu.Lock()
	defer r.mu.Unlock()
	if id > 0 {
		s, ok := r.suppliers[id]
		if !ok {
			return suppliers.Supplier{}, false, mdshared.ErrNotFound
		}
		return s, false, nil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return suppliers.Supplier{}, false, mdshared.ErrRequiredField
	}
	var maxID int64
	for _, s := range r.suppliers {
		if s.Name == name {
			return s, false, nil
		}
		if s.ID > maxID {
			maxID = s.ID
		}
	}
	s := suppliers.Supplier{ID: maxID + 1, Code: suppliers.FormatCode(maxID + 1), Name: name}
	r.suppliers[s.ID] = s
	return s, true, nil
}

func (tx *memoryTx) InsertNote(_ context.Context, note Note) (Note, error) {
	r := tx.repo
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	note.ID = r.nextID
	note.Code = FormatCode(note.ID)
	if s, ok := r.suppliers[note.SupplierID]; ok {
		note.SupplierName = s.Name
	}
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

func (tx *memoryTx) UpdateNoteTotal(_ context.Context, id int64, total decimal.Decimal) error {
	r := tx.repo
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.notes[id]
	n.Total = total
	r.notes[id] = n
	return nil
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

func (tx *memoryTx) Debts() debt.TxRepository { return tx.repo.debts }

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
	listener *listenerSpy
}

func newFixture() fixture {
	repo := newMemoryRepo()
	idem := &memoryIdempotency{keys: map[string]bool{}}
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
			2: {ID: 2, Code: "W2", Name: "Closed", Status: warehouses.StatusInactive},
		},
		Engine:      inventory.NewEngine(nil),
		Debts:       debt.NewGenerator(30),
		Idempotency: idem,
		Listener:    listener,
	})
	return fixture{repo: repo, svc: svc, idem: idem, listener: listener}
}

func TestCreateNoteWorkedExample(t *testing.T) {
	f := newFixture()
	f.repo.ledger.Seed(1, 10, 50)

	result, err := f.svc.CreateNote(context.Background(), CreateNoteInput{
		SupplierID:  1,
		WarehouseID: 1,
		Lines:       []RawLine{{ProductName: "Widget", Quantity: "20", UnitPrice: "1000"}},
		ActorID:     5,
	})
	require.NoError(t, err)
	require.Equal(t, "NK-0001", result.Note.Code)
	require.Equal(t, "20000", result.Note.Total.String())
	require.Len(t, result.Lines, 1)
	require.Empty(t, result.Rejected)
	require.Equal(t, int64(70), f.repo.ledger.OnHand(1, 10))

	d, ok := f.repo.debts.ByNote(result.Note.ID)
	require.True(t, ok)
	require.Equal(t, "20000", d.Amount.String())
	require.Equal(t, "20000", d.Remaining.String())
	require.Equal(t, debt.TypeGoodsInPayable, d.Type)
	require.Equal(t, d.ID, result.Debt.ID)

	require.Len(t, f.listener.events, 1)
	require.Equal(t, []inventory.Key{{WarehouseID: 1, ProductID: 10}}, f.listener.events[0].Keys)
}

func TestCreateNoteRejectsBadLinesButKeepsGood(t *testing.T) {
	f := newFixture()

	result, err := f.svc.CreateNote(context.Background(), CreateNoteInput{
		SupplierID:  1,
		WarehouseID: 1,
		Lines: []RawLine{
			{ProductName: "Widget", Quantity: "3", UnitPrice: "12.50"},
			{ProductName: "  ", Quantity: "1", UnitPrice: "1"},
			{ProductName: "Unknown", Quantity: "1", UnitPrice: "1"},
			{ProductName: "Gadget", Quantity: "0", UnitPrice: "5"},
			{ProductName: "Gadget", Quantity: "2", UnitPrice: "abc"},
			{ProductName: "Retired", Quantity: "1", UnitPrice: "1"},
			{ProductName: "Gadget", Quantity: "2", UnitPrice: "0"},
			{ProductName: "Widget", Quantity: "5", UnitPrice: "0.004"},
			{ProductName: "Gadget", Quantity: "4", UnitPrice: "2"},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Lines, 2)
	require.Equal(t, "45.5", result.Note.Total.String())
	require.Equal(t, []RejectedLine{
		{Index: 1, ProductName: "  ", Reason: RejectBlankName},
		{Index: 2, ProductName: "Unknown", Reason: RejectUnknownProduct},
		{Index: 3, ProductName: "Gadget", Reason: RejectInvalidQuantity},
		{Index: 4, ProductName: "Gadget", Reason: RejectInvalidPrice},
		{Index: 5, ProductName: "Retired", Reason: RejectInactiveProduct},
		{Index: 6, ProductName: "Gadget", Reason: RejectInvalidPrice},
		{Index: 7, ProductName: "Widget", Reason: RejectInvalidPrice},
	}, result.Rejected)
	require.Equal(t, int64(3), f.repo.ledger.OnHand(1, 10))
	require.Equal(t, int64(4), f.repo.ledger.OnHand(1, 11))
}

func TestCreateNoteWithoutAcceptedLinesStillRaisesDebt(t *testing.T) {
	f := newFixture()
	result, err := f.svc.CreateNote(context.Background(), CreateNoteInput{SupplierID: 1, WarehouseID: 1})
	require.NoError(t, err)
	require.True(t, result.Note.Total.IsZero())
	require.Equal(t, 1, f.repo.debts.Len())
	require.Equal(t, debt.StatusPaid, result.Debt.Status)
}

func TestCreateNoteCreatesSupplierByName(t *testing.T) {
	f := newFixture()
	result, err := f.svc.CreateNote(context.Background(), CreateNoteInput{
		NewSupplierName: "Globex",
		WarehouseID:     1,
		Lines:           []RawLine{{ProductName: "Widget", Quantity: "1", UnitPrice: "1"}},
	})
	require.NoError(t, err)
	require.True(t, result.SupplierCreated)
	require.Equal(t, "NCC-0002", result.Note.SupplierCode)

	again, err := f.svc.CreateNote(context.Background(), CreateNoteInput{NewSupplierName: "Globex", WarehouseID: 1})
	require.NoError(t, err)
	require.False(t, again.SupplierCreated)
	require.Equal(t, result.Note.SupplierID, again.Note.SupplierID)
}

func TestCreateNotePreconditions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.CreateNote(ctx, CreateNoteInput{WarehouseID: 1})
	require.ErrorIs(t, err, ErrMissingSupplier)
	_, err = f.svc.CreateNote(ctx, CreateNoteInput{SupplierID: 99, WarehouseID: 1})
	require.ErrorIs(t, err, ErrMissingSupplier)
	// supplier is checked before the warehouse
	_, err = f.svc.CreateNote(ctx, CreateNoteInput{WarehouseID: 99})
	require.ErrorIs(t, err, ErrMissingSupplier)

	_, err = f.svc.CreateNote(ctx, CreateNoteInput{NewSupplierName: "Initech", WarehouseID: 99})
	require.ErrorIs(t, err, ErrInvalidWarehouse)
	_, err = f.svc.CreateNote(ctx, CreateNoteInput{SupplierID: 1, WarehouseID: 2})
	require.ErrorIs(t, err, ErrInvalidWarehouse)

	require.Len(t, f.repo.suppliers, 1, "failed unit must not keep the new supplier")
	require.Empty(t, f.repo.notes)
	require.Equal(t, 0, f.repo.debts.Len())
}

func TestCreateNoteFailureRollsBackEverything(t *testing.T) {
	f := newFixture()
	f.repo.debts.FailInsert = errors.New("disk full")

	_, err := f.svc.CreateNote(context.Background(), CreateNoteInput{
		SupplierID:     1,
		WarehouseID:    1,
		Lines:          []RawLine{{ProductName: "Widget", Quantity: "5", UnitPrice: "1"}},
		IdempotencyKey: "retry-1",
	})
	require.Error(t, err)
	require.Empty(t, f.repo.notes)
	require.Zero(t, f.repo.ledger.OnHand(1, 10))
	require.Empty(t, f.idem.keys, "key is released so the client can retry")
}

func TestCreateNoteIdempotencyKey(t *testing.T) {
	f := newFixture()
	input := CreateNoteInput{SupplierID: 1, WarehouseID: 1, IdempotencyKey: "abc",
		Lines: []RawLine{{ProductName: "Widget", Quantity: "5", UnitPrice: "1"}}}

	_, err := f.svc.CreateNote(context.Background(), input)
	require.NoError(t, err)
	_, err = f.svc.CreateNote(context.Background(), input)
	require.ErrorIs(t, err, ErrDuplicateRequest)
	require.Equal(t, int64(5), f.repo.ledger.OnHand(1, 10))
}

func TestDeleteNoteReversesLedgerAndDebt(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	result, err := f.svc.CreateNote(ctx, CreateNoteInput{SupplierID: 1, WarehouseID: 1,
		Lines: []RawLine{{ProductName: "Widget", Quantity: "8", UnitPrice: "2"}}})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteNote(ctx, result.Note.ID, 1))
	require.Zero(t, f.repo.ledger.OnHand(1, 10))
	require.Equal(t, 0, f.repo.debts.Len())
	_, err = f.svc.Get(ctx, result.Note.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteNoteRefusedWhenStockConsumed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	result, err := f.svc.CreateNote(ctx, CreateNoteInput{SupplierID: 1, WarehouseID: 1,
		Lines: []RawLine{{ProductName: "Widget", Quantity: "8", UnitPrice: "2"}}})
	require.NoError(t, err)
	f.repo.ledger.Seed(1, 10, 3)

	err = f.svc.DeleteNote(ctx, result.Note.ID, 1)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	require.Equal(t, 1, f.repo.debts.Len())
	_, err = f.svc.Get(ctx, result.Note.ID)
	require.NoError(t, err)
}

func TestDeleteNoteRefusedWhenDebtPaid(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	result, err := f.svc.CreateNote(ctx, CreateNoteInput{SupplierID: 1, WarehouseID: 1,
		Lines: []RawLine{{ProductName: "Widget", Quantity: "8", UnitPrice: "2"}}})
	require.NoError(t, err)
	debts := debt.NewService(f.repo.debts, nil, nil)
	_, _, err = debts.RecordPayment(ctx, debt.PaymentInput{DebtID: result.Debt.ID, Amount: decimal.NewFromInt(1)})
	require.NoError(t, err)

	err = f.svc.DeleteNote(ctx, result.Note.ID, 1)
	require.ErrorIs(t, err, debt.ErrDebtHasPayments)
	require.Equal(t, int64(8), f.repo.ledger.OnHand(1, 10))
}

func TestListNotesPageTotal(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.svc.CreateNote(ctx, CreateNoteInput{SupplierID: 1, WarehouseID: 1,
			Lines: []RawLine{{ProductName: "Widget", Quantity: "1", UnitPrice: "10"}}})
		require.NoError(t, err)
	}
	result, err := f.svc.List(ctx, ListFilter{PerPage: 2})
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	require.Equal(t, "NK-0003", result.Items[0].Code)
	require.Equal(t, "20", result.PageTotal.String())
	require.Equal(t, 2, result.Pagination.TotalPages)

	_, err = f.svc.List(ctx, ListFilter{From: time.Now(), To: time.Now().Add(-time.Hour)})
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestHandlerCreateParallelArrays(t *testing.T) {
	f := newFixture()
	router := chi.NewRouter()
	NewHandler(nil, f.svc, shared.NewMoneyFormatter("en")).MountRoutes(router)

	body := `{"warehouse_id":1,"supplier_id":1,"product_names":["Widget","Nope"],"quantities":[20,"1"],"unit_prices":["1000"]}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Contains(t, rr.Body.String(), `"total":"20000.00"`)
	require.Contains(t, rr.Body.String(), `"total_display":"20,000"`)
	require.Contains(t, rr.Body.String(), `"reason":"invalid_price"`)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"warehouse_id":1}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "supplier required")
}

func TestHandlerDeleteMapsErrors(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodDelete, "/42", nil)
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("id", "42")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
	rr := httptest.NewRecorder()

	NewHandler(nil, f.svc, nil).delete(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

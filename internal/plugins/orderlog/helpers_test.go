package orderlog

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/keyxmakerx/orderhistory/internal/apperror"
)

// --- Fake Collaborators ---

type fakeItem struct {
	title    string
	quantity int
	changes  ChangeLog
}

func (i *fakeItem) ChangedFields() ChangeLog { return i.changes }
func (i *fakeItem) Title() string            { return i.title }
func (i *fakeItem) Quantity() int            { return i.quantity }

type fakeAddress struct {
	text    string
	changes ChangeLog
}

func (a *fakeAddress) ChangedFields() ChangeLog { return a.changes }
func (a *fakeAddress) String() string           { return a.text }

type fakeMember struct {
	name    string
	changes ChangeLog
}

func (m *fakeMember) ChangedFields() ChangeLog { return m.changes }
func (m *fakeMember) Name() string             { return m.name }

type fakeOrder struct {
	id        int64
	status    string
	reference string
	email     string
	customer  string
	total     string
	gateway   string
	items     []Item
	member    Member
	shipping  Address
	billing   Address
	changes   ChangeLog
}

func (o *fakeOrder) ChangedFields() ChangeLog { return o.changes }
func (o *fakeOrder) ID() int64                { return o.id }
func (o *fakeOrder) Status() string           { return o.status }
func (o *fakeOrder) Reference() string        { return o.reference }
func (o *fakeOrder) LatestEmail() string      { return o.email }
func (o *fakeOrder) CustomerName() string     { return o.customer }
func (o *fakeOrder) Total() string            { return o.total }
func (o *fakeOrder) Items() []Item            { return o.items }
func (o *fakeOrder) Member() Member           { return o.member }
func (o *fakeOrder) ShippingAddress() Address { return o.shipping }
func (o *fakeOrder) BillingAddress() Address  { return o.billing }
func (o *fakeOrder) PaymentGateway() string   { return o.gateway }

// sampleOrder creates an order for testing.
func sampleOrder() *fakeOrder {
	return &fakeOrder{
		id:        42,
		status:    "Unpaid",
		reference: "WO-1001",
		email:     "jane@example.com",
		customer:  "Jane Doe",
		total:     "59.90",
		items:     []Item{&fakeItem{title: "Tea Pot", quantity: 1}},
		shipping:  &fakeAddress{text: "Jane Doe, 1 Main St, Springfield 4000, AU"},
	}
}

// --- Mock Mailer ---

type sentMail struct {
	to, from, subject, body string
}

// mockMailer records every message and fails when sendFn says so.
type mockMailer struct {
	mu     sync.Mutex
	sendFn func(ctx context.Context, to, from, subject, body string) error
	sent   []sentMail
}

func (m *mockMailer) SendMail(ctx context.Context, to, from, subject, body string) error {
	if m.sendFn != nil {
		if err := m.sendFn(ctx, to, from, subject, body); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to: to, from: from, subject: subject, body: body})
	return nil
}

func (m *mockMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// --- In-Memory Repository ---

// memRepo implements LogRepository over a slice. InTx works on a copy and
// only keeps it when fn succeeds, like a real transaction.
type memRepo struct {
	mu      sync.Mutex
	entries []*LogEntry
	nextID  int64

	// createErr, when set, fails every Create.
	createErr error
	// updateErr, when set, fails every Update.
	updateErr error
	// skipEvict turns EvictOldestGeneric into a no-op.
	skipEvict bool
}

func newMemRepo(entries ...*LogEntry) *memRepo {
	r := &memRepo{}
	for _, e := range entries {
		r.nextID++
		if e.ID == 0 {
			e.ID = r.nextID
		} else if e.ID > r.nextID {
			r.nextID = e.ID
		}
		r.entries = append(r.entries, e)
	}
	return r
}

// memTx is the view of a memRepo inside InTx.
type memTx struct {
	*memRepo
}

func (r *memRepo) InTx(ctx context.Context, fn func(tx LogRepository) error) error {
	r.mu.Lock()
	snapshot := slices.Clone(r.entries)
	nextID := r.nextID
	r.mu.Unlock()

	if err := fn(memTx{r}); err != nil {
		r.mu.Lock()
		r.entries = snapshot
		r.nextID = nextID
		r.mu.Unlock()
		return err
	}
	return nil
}

func (t memTx) InTx(ctx context.Context, fn func(tx LogRepository) error) error {
	return fn(t)
}

func (r *memRepo) FindByID(ctx context.Context, orderID, id int64) (*LogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.ID == id && e.OrderID == orderID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, apperror.NewNotFound("log entry not found")
}

func (r *memRepo) ListByOrder(ctx context.Context, orderID int64) ([]*LogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*LogEntry
	for _, e := range r.entries {
		if e.OrderID == orderID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memRepo) CountGeneric(ctx context.Context, orderID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.OrderID == orderID && e.Status == GenericStatus && e.Automated {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) EvictOldestGeneric(ctx context.Context, orderID int64, n int) (int64, error) {
	if r.skipEvict {
		return 0, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var generic []*LogEntry
	for _, e := range r.entries {
		if e.OrderID == orderID && e.Status == GenericStatus && e.Automated {
			generic = append(generic, e)
		}
	}
	slices.SortStableFunc(generic, func(a, b *LogEntry) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return int(a.ID - b.ID)
	})
	if n > len(generic) {
		n = len(generic)
	}
	doomed := generic[:n]
	r.entries = slices.DeleteFunc(r.entries, func(e *LogEntry) bool {
		return slices.Contains(doomed, e)
	})
	return int64(n), nil
}

func (r *memRepo) ExistsWithStatus(ctx context.Context, orderID int64, status string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.ContainsFunc(r.entries, func(e *LogEntry) bool {
		return e.OrderID == orderID && e.Status == status
	}), nil
}

func (r *memRepo) DeleteByOrder(ctx context.Context, orderID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	before := len(r.entries)
	r.entries = slices.DeleteFunc(r.entries, func(e *LogEntry) bool { return e.OrderID == orderID })
	return int64(before - len(r.entries)), nil
}

func (r *memRepo) Delete(ctx context.Context, orderID, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	before := len(r.entries)
	r.entries = slices.DeleteFunc(r.entries, func(e *LogEntry) bool { return e.ID == id && e.OrderID == orderID })
	if len(r.entries) == before {
		return apperror.NewNotFound("log entry not found")
	}
	return nil
}

func (r *memRepo) Create(ctx context.Context, entry *LogEntry) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	entry.ID = r.nextID
	cp := *entry
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *memRepo) Update(ctx context.Context, entry *LogEntry) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.ID == entry.ID && e.OrderID == entry.OrderID {
			cp := *entry
			r.entries[i] = &cp
			return nil
		}
	}
	return apperror.NewNotFound("log entry not found")
}

// stored returns copies of the order's entries in insertion order.
func (r *memRepo) stored(orderID int64) []*LogEntry {
	out, _ := r.ListByOrder(context.Background(), orderID)
	return out
}

func (r *memRepo) countStatus(orderID int64, status string) int {
	n := 0
	for _, e := range r.stored(orderID) {
		if e.Status == status {
			n++
		}
	}
	return n
}

// --- Test Helpers ---

// fixedClock returns a clock that advances one second per call.
func fixedClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

// testConfig returns the default config with a deterministic clock.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ReceiptEmail = "orders@shop.example"
	cfg.AdminEmail = "admin@shop.example"
	cfg.Now = fixedClock()
	return cfg
}

func newTestService(repo LogRepository, mailer Mailer, cfg Config) *logService {
	return NewLogService(repo, mailer, cfg).(*logService)
}

// assertAppError checks that err is an *apperror.AppError with the expected code.
func assertAppError(t *testing.T, err error, expectedCode int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %d, got nil", expectedCode)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Code != expectedCode {
		t.Errorf("expected status %d, got %d (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

package orderlog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/orderhistory/internal/apperror"
)

// --- Mock Collaborators ---

type mockFinder struct {
	orders map[int64]*fakeOrder
}

func (m *mockFinder) FindOrder(ctx context.Context, id int64) (Order, error) {
	if o, ok := m.orders[id]; ok {
		return o, nil
	}
	return nil, apperror.NewNotFound("order not found")
}

type mockLocker struct {
	lockFn   func(ctx context.Context, orderID int64) error
	locked   int
	released int
}

func (m *mockLocker) Lock(ctx context.Context, orderID int64) (func(), error) {
	if m.lockFn != nil {
		if err := m.lockFn(ctx, orderID); err != nil {
			return nil, err
		}
	}
	m.locked++
	return func() { m.released++ }, nil
}

type handlerFixture struct {
	e      *echo.Echo
	repo   *memRepo
	mailer *mockMailer
	locker *mockLocker
}

func newHandlerFixture(t *testing.T, entries ...*LogEntry) *handlerFixture {
	t.Helper()
	repo := newMemRepo(entries...)
	mailer := &mockMailer{}
	locker := &mockLocker{}
	cfg := testConfig()
	svc := NewLogService(repo, mailer, cfg)
	finder := &mockFinder{orders: map[int64]*fakeOrder{42: sampleOrder()}}

	e := echo.New()
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		c.JSON(apperror.SafeCode(err), map[string]string{"message": apperror.SafeMessage(err)})
	}
	RegisterRoutes(e, NewHandler(svc, NewObserver(svc, cfg), finder, locker))

	return &handlerFixture{e: e, repo: repo, mailer: mailer, locker: locker}
}

func (f *handlerFixture) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

// --- Tests ---

func TestHandler_List(t *testing.T) {
	pub := entryAt(0, StatusPaid, 0)
	pub.Public = true
	f := newHandlerFixture(t, entryAt(0, StatusPlaced, 0), pub)

	rec := f.do(http.MethodGet, "/orders/42/logs", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(42), resp.OrderID)
	assert.Equal(t, StatusPaid, resp.State)
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, StatusPaid, resp.Entries[0].Status)

	rec = f.do(http.MethodGet, "/orders/42/logs?public=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Entries, 1)
}

func TestHandler_List_UnknownOrder(t *testing.T) {
	f := newHandlerFixture(t)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/orders/7/logs", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/orders/abc/logs", "").Code)
}

func TestHandler_State(t *testing.T) {
	f := newHandlerFixture(t, entryAt(0, StatusPlaced, 0))

	rec := f.do(http.MethodGet, "/orders/42/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"Placed"`)
}

func TestHandler_Create(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodPost, "/orders/42/logs",
		`{"status":"Called","note":"Rang the customer","authorId":"spoofed"}`,
		StaffHeader, "staff-9")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var entry LogEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, "Called", entry.Status)
	assert.Equal(t, "staff-9", entry.AuthorID)
	assert.Equal(t, 1, f.locker.locked)
	assert.Equal(t, 1, f.locker.released)
}

func TestHandler_Create_WithPreset(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodPost, "/orders/42/logs", `{"preset":"notified","note":"Thanks!"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 1, f.mailer.count())
}

func TestHandler_Create_NotificationFailure(t *testing.T) {
	f := newHandlerFixture(t)
	f.mailer.sendFn = func(ctx context.Context, to, from, subject, body string) error {
		return errors.New("smtp down")
	}

	rec := f.do(http.MethodPost, "/orders/42/logs", `{"preset":"notified"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var resp struct {
		Error string    `json:"error"`
		Entry *LogEntry `json:"entry"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "notification_failed", resp.Error)
	require.NotNil(t, resp.Entry)
	assert.NotZero(t, resp.Entry.ID)
	assert.Nil(t, resp.Entry.Sent)
}

func TestHandler_Create_Conflict(t *testing.T) {
	f := newHandlerFixture(t, entryAt(0, StatusShipped, 0))

	rec := f.do(http.MethodPost, "/orders/42/logs", `{"status":"Shipped"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandler_Create_Locked(t *testing.T) {
	f := newHandlerFixture(t)
	f.locker.lockFn = func(ctx context.Context, orderID int64) error {
		return apperror.NewLocked("busy")
	}

	rec := f.do(http.MethodPost, "/orders/42/logs", `{"status":"Called"}`)
	assert.Equal(t, http.StatusLocked, rec.Code)
	assert.Empty(t, f.repo.stored(42))
}

func TestHandler_Create_BadBody(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodPost, "/orders/42/logs", `{"status":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Event(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodPost, "/orders/42/events/forwarded-via-email", `{"detail":"friend@example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 1, f.repo.countStatus(42, StatusForwardedViaEmail))

	rec = f.do(http.MethodPost, "/orders/42/events/printed-by-customer", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(http.MethodPost, "/orders/42/events/paid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_MarkRead(t *testing.T) {
	e := entryAt(0, StatusShipped, 0)
	e.Unread = true
	f := newHandlerFixture(t, e)

	rec := f.do(http.MethodPost, "/orders/42/logs/1/read", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var entry LogEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.False(t, entry.Unread)
	assert.NotNil(t, entry.FirstRead)
	assert.Equal(t, 1, f.locker.locked)
	assert.Equal(t, 1, f.locker.released)
}

func TestHandler_MarkRead_Locked(t *testing.T) {
	e := entryAt(0, StatusShipped, 0)
	e.Unread = true
	f := newHandlerFixture(t, e)
	f.locker.lockFn = func(context.Context, int64) error {
		return apperror.NewLocked("the order is being updated, try again shortly")
	}

	rec := f.do(http.MethodPost, "/orders/42/logs/1/read", "")
	assert.Equal(t, http.StatusLocked, rec.Code)

	stored, _ := f.repo.FindByID(context.Background(), 42, 1)
	assert.True(t, stored.Unread)
}

func TestHandler_RetrySend(t *testing.T) {
	pending := entryAt(0, StatusNotified, 0)
	pending.Send = true
	f := newHandlerFixture(t, pending)

	rec := f.do(http.MethodPost, "/orders/42/logs/1/send", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, f.mailer.count())

	rec = f.do(http.MethodPost, "/orders/42/logs/1/send", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.mailer.count())
}

func TestHandler_Delete(t *testing.T) {
	f := newHandlerFixture(t, entryAt(0, StatusShipped, 0))

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/orders/42/logs/1", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/orders/42/logs/1", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodDelete, "/orders/42/logs/0", "").Code)
}

package orderlog

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/orderhistory/internal/apperror"
)

// StaffHeader carries the ID of the staff member making a manual entry.
const StaffHeader = "X-Staff-ID"

// OrderFinder loads an order by ID.
type OrderFinder interface {
	FindOrder(ctx context.Context, id int64) (Order, error)
}

// OrderLocker serializes writers to one order's log. release must be
// called once the write is done.
type OrderLocker interface {
	Lock(ctx context.Context, orderID int64) (release func(), err error)
}

// Handler handles HTTP requests for order logs. Handlers are thin: bind
// request, call service, render response. No business logic lives here.
type Handler struct {
	service  LogService
	observer MutationObserver
	orders   OrderFinder
	locker   OrderLocker
}

// NewHandler creates a new order log handler.
func NewHandler(service LogService, observer MutationObserver, orders OrderFinder, locker OrderLocker) *Handler {
	return &Handler{service: service, observer: observer, orders: orders, locker: locker}
}

// createRequest is the body of POST /orders/:id/logs.
type createRequest struct {
	ManualEntry
	Preset Preset `json:"preset"`
}

// eventRequest is the body of POST /orders/:id/events/:event.
type eventRequest struct {
	Detail string `json:"detail"`
}

// listResponse is returned by GET /orders/:id/logs.
type listResponse struct {
	OrderID int64          `json:"orderId"`
	State   string         `json:"state"`
	Entries []DisplayEntry `json:"entries"`
}

// List returns the order's entries in display order together with its
// current state (GET /orders/:id/logs). ?public=true limits the list to
// customer-visible entries.
func (h *Handler) List(c echo.Context) error {
	order, err := h.loadOrder(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	var entries []DisplayEntry
	if public, _ := strconv.ParseBool(c.QueryParam("public")); public {
		entries, err = h.service.PublicEntries(ctx, order)
	} else {
		entries, err = h.service.EntriesForDisplay(ctx, order)
	}
	if err != nil {
		return err
	}

	state, err := h.service.CurrentState(ctx, order)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, listResponse{OrderID: order.ID(), State: state, Entries: entries})
}

// State returns the order's current state (GET /orders/:id/state).
func (h *Handler) State(c echo.Context) error {
	order, err := h.loadOrder(c)
	if err != nil {
		return err
	}

	state, err := h.service.CurrentState(c.Request().Context(), order)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"orderId": order.ID(), "state": state})
}

// Create records a manual entry (POST /orders/:id/logs).
func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	req.AuthorID = strings.TrimSpace(c.Request().Header.Get(StaffHeader))

	return h.withOrderLock(c, func(ctx context.Context, order Order) error {
		entry, err := h.service.Record(ctx, order, req.Preset, req.ManualEntry)
		return respondWritten(c, entry, err)
	})
}

// Event fires a customer action on the order (POST /orders/:id/events/:event).
func (h *Handler) Event(c echo.Context) error {
	ev := Event(c.Param("event"))
	if !slices.Contains(customerEvents, ev) {
		return apperror.NewBadRequest("unsupported customer action")
	}

	var req eventRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return apperror.NewBadRequest("invalid request body")
		}
	}

	return h.withOrderLock(c, func(ctx context.Context, order Order) error {
		entry, err := FireCustomerEvent(ctx, h.observer, order, ev, strings.TrimSpace(req.Detail))
		return respondWritten(c, entry, err)
	})
}

// MarkRead marks an entry as read (POST /orders/:id/logs/:lid/read).
func (h *Handler) MarkRead(c echo.Context) error {
	_, entryID, err := parseIDs(c)
	if err != nil {
		return err
	}

	return h.withOrderLock(c, func(ctx context.Context, order Order) error {
		entry, err := h.service.MarkRead(ctx, order.ID(), entryID)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, entry)
	})
}

// RetrySend resends a pending notification (POST /orders/:id/logs/:lid/send).
func (h *Handler) RetrySend(c echo.Context) error {
	_, entryID, err := parseIDs(c)
	if err != nil {
		return err
	}

	return h.withOrderLock(c, func(ctx context.Context, order Order) error {
		entry, err := h.service.RetrySend(ctx, order, entryID)
		if err != nil {
			return respondWritten(c, entry, err)
		}
		return c.JSON(http.StatusOK, entry)
	})
}

// Delete removes an entry (DELETE /orders/:id/logs/:lid).
func (h *Handler) Delete(c echo.Context) error {
	orderID, entryID, err := parseIDs(c)
	if err != nil {
		return err
	}

	release, err := h.locker.Lock(c.Request().Context(), orderID)
	if err != nil {
		return err
	}
	defer release()

	if err := h.service.Delete(c.Request().Context(), orderID, entryID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// --- Helpers ---

// loadOrder resolves the :id path parameter to an order.
func (h *Handler) loadOrder(c echo.Context) (Order, error) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return nil, err
	}
	return h.orders.FindOrder(c.Request().Context(), id)
}

// withOrderLock holds the order's writer lock while fn runs against a
// freshly loaded order.
func (h *Handler) withOrderLock(c echo.Context, fn func(ctx context.Context, order Order) error) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	release, err := h.locker.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	order, err := h.orders.FindOrder(ctx, id)
	if err != nil {
		return err
	}
	return fn(ctx, order)
}

// respondWritten renders the result of a log write. A failed notification
// still returns the saved entry so the client can retry the send.
func respondWritten(c echo.Context, entry *LogEntry, err error) error {
	if err != nil {
		if entry != nil && errors.Is(err, ErrNotificationFailed) {
			return c.JSON(apperror.SafeCode(err), map[string]any{
				"error":   "notification_failed",
				"message": apperror.SafeMessage(err),
				"entry":   entry,
			})
		}
		return err
	}
	if entry == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusCreated, entry)
}

func parseIDs(c echo.Context) (orderID, entryID int64, err error) {
	if orderID, err = parseID(c.Param("id")); err != nil {
		return 0, 0, err
	}
	if entryID, err = parseID(c.Param("lid")); err != nil {
		return 0, 0, err
	}
	return orderID, entryID, nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, apperror.NewBadRequest("invalid id")
	}
	return id, nil
}

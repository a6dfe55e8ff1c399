package orders

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/orderhistory/internal/apperror"
	"github.com/keyxmakerx/orderhistory/internal/plugins/orderlog"
)

// Handler handles HTTP requests for order mutations.
type Handler struct {
	service OrderService
	locker  orderlog.OrderLocker
}

// NewHandler creates a new orders handler.
func NewHandler(service OrderService, locker orderlog.OrderLocker) *Handler {
	return &Handler{service: service, locker: locker}
}

// orderView is the JSON form of an order.
type orderView struct {
	ID        int64  `json:"id"`
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Customer  string `json:"customer"`
	Email     string `json:"email"`
	Total     string `json:"total"`
	MemberID  int64  `json:"memberId,omitempty"`
	ItemCount int    `json:"itemCount"`
}

func newOrderView(o *Order) orderView {
	return orderView{
		ID:        o.id,
		Reference: o.reference,
		Status:    o.status,
		Customer:  o.CustomerName(),
		Email:     o.email,
		Total:     o.total,
		MemberID:  o.memberID,
		ItemCount: len(o.Items()),
	}
}

// writeResponse pairs the updated order with the log entries it produced.
type writeResponse struct {
	Order   orderView            `json:"order"`
	Entries []*orderlog.LogEntry `json:"entries"`
}

// UpdateStatus changes the order status (PUT /orders/:id/status).
func (h *Handler) UpdateStatus(c echo.Context) error {
	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	return h.locked(c, func(ctx context.Context, id int64) (*Order, []*orderlog.LogEntry, error) {
		return h.service.UpdateStatus(ctx, id, req.Status)
	})
}

// AssignMember changes the order's member (PUT /orders/:id/member).
func (h *Handler) AssignMember(c echo.Context) error {
	var req struct {
		MemberID int64 `json:"memberId"`
	}
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	return h.locked(c, func(ctx context.Context, id int64) (*Order, []*orderlog.LogEntry, error) {
		return h.service.AssignMember(ctx, id, req.MemberID)
	})
}

// AddItem puts a new line on the order (POST /orders/:id/items).
func (h *Handler) AddItem(c echo.Context) error {
	var req struct {
		Title     string `json:"title"`
		Quantity  int    `json:"quantity"`
		UnitPrice string `json:"unitPrice"`
	}
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	return h.locked(c, func(ctx context.Context, id int64) (*Order, []*orderlog.LogEntry, error) {
		return h.service.AddItem(ctx, id, req.Title, req.Quantity, req.UnitPrice)
	})
}

// SetItemQuantity changes a line's quantity (PUT /orders/:id/items/:itemId).
func (h *Handler) SetItemQuantity(c echo.Context) error {
	itemID, err := itemParam(c)
	if err != nil {
		return err
	}
	var req struct {
		Quantity *int `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if req.Quantity == nil {
		return apperror.NewValidation("quantity is required")
	}

	return h.locked(c, func(ctx context.Context, id int64) (*Order, []*orderlog.LogEntry, error) {
		return h.service.SetItemQuantity(ctx, id, itemID, *req.Quantity)
	})
}

// RemoveItem takes a line off the order (DELETE /orders/:id/items/:itemId).
func (h *Handler) RemoveItem(c echo.Context) error {
	itemID, err := itemParam(c)
	if err != nil {
		return err
	}

	return h.locked(c, func(ctx context.Context, id int64) (*Order, []*orderlog.LogEntry, error) {
		return h.service.RemoveItem(ctx, id, itemID)
	})
}

// UpdateShippingAddress replaces the shipping address
// (PUT /orders/:id/shipping-address).
func (h *Handler) UpdateShippingAddress(c echo.Context) error {
	var req AddressInput
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	return h.locked(c, func(ctx context.Context, id int64) (*Order, []*orderlog.LogEntry, error) {
		return h.service.UpdateShippingAddress(ctx, id, req)
	})
}

// UpdateBillingAddress sets a separate billing address
// (PUT /orders/:id/billing-address).
func (h *Handler) UpdateBillingAddress(c echo.Context) error {
	var req AddressInput
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	return h.locked(c, func(ctx context.Context, id int64) (*Order, []*orderlog.LogEntry, error) {
		return h.service.UpdateBillingAddress(ctx, id, &req)
	})
}

// ClearBillingAddress makes billing follow the shipping address again
// (DELETE /orders/:id/billing-address).
func (h *Handler) ClearBillingAddress(c echo.Context) error {
	return h.locked(c, func(ctx context.Context, id int64) (*Order, []*orderlog.LogEntry, error) {
		return h.service.UpdateBillingAddress(ctx, id, nil)
	})
}

func itemParam(c echo.Context) (int64, error) {
	itemID, err := strconv.ParseInt(c.Param("itemId"), 10, 64)
	if err != nil || itemID < 1 {
		return 0, apperror.NewBadRequest("invalid item id")
	}
	return itemID, nil
}

// locked runs a mutation while holding the order's writer lock.
func (h *Handler) locked(c echo.Context, fn func(ctx context.Context, id int64) (*Order, []*orderlog.LogEntry, error)) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		return apperror.NewBadRequest("invalid order id")
	}
	ctx := c.Request().Context()

	release, err := h.locker.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	o, entries, err := fn(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, writeResponse{Order: newOrderView(o), Entries: entries})
}

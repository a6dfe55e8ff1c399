package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/keyxmakerx/orderhistory/internal/apperror"
	"github.com/keyxmakerx/orderhistory/internal/plugins/orderlog"
)

// Column limits of the shop tables.
const (
	maxStatusLength    = 50
	maxItemTitleLength = 255
)

// Transactor runs fn inside one database transaction carried by ctx.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// AddressInput is a full postal address as submitted by a client.
type AddressInput struct {
	Name     string `json:"name"`
	Street   string `json:"street"`
	City     string `json:"city"`
	State    string `json:"state"`
	Postcode string `json:"postcode"`
	Country  string `json:"country"`
}

func (in AddressInput) applyTo(a *Address) {
	a.SetName(strings.TrimSpace(in.Name))
	a.SetStreet(strings.TrimSpace(in.Street))
	a.SetCity(strings.TrimSpace(in.City))
	a.SetState(strings.TrimSpace(in.State))
	a.SetPostcode(strings.TrimSpace(in.Postcode))
	a.SetCountry(strings.ToUpper(strings.TrimSpace(in.Country)))
}

func (in AddressInput) validate() error {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Street) == "" {
		return apperror.NewValidation("address name and street are required")
	}
	if c := strings.TrimSpace(in.Country); c != "" && len(c) != 2 {
		return apperror.NewValidation("country must be a two-letter code")
	}
	return nil
}

// OrderService handles the order mutations this service owns. Every write
// saves the order and logs it in one transaction, then cleans the order.
type OrderService interface {
	// FindOrder loads an order for the order log.
	FindOrder(ctx context.Context, id int64) (orderlog.Order, error)

	// UpdateStatus sets the order's status.
	UpdateStatus(ctx context.Context, id int64, status string) (*Order, []*orderlog.LogEntry, error)

	// AssignMember moves the order to another member; memberID 0 makes it
	// a guest order.
	AssignMember(ctx context.Context, id, memberID int64) (*Order, []*orderlog.LogEntry, error)

	// AddItem puts a new line on the order.
	AddItem(ctx context.Context, id int64, title string, quantity int, unitPrice string) (*Order, []*orderlog.LogEntry, error)

	// SetItemQuantity changes a line's quantity. Zero removes the line.
	SetItemQuantity(ctx context.Context, id, itemID int64, quantity int) (*Order, []*orderlog.LogEntry, error)

	// RemoveItem takes a line off the order.
	RemoveItem(ctx context.Context, id, itemID int64) (*Order, []*orderlog.LogEntry, error)

	// UpdateShippingAddress replaces the shipping address fields, creating
	// the address when the order has none.
	UpdateShippingAddress(ctx context.Context, id int64, in AddressInput) (*Order, []*orderlog.LogEntry, error)

	// UpdateBillingAddress does the same for the billing address. A nil
	// input makes billing follow the shipping address again.
	UpdateBillingAddress(ctx context.Context, id int64, in *AddressInput) (*Order, []*orderlog.LogEntry, error)
}

// orderService implements OrderService.
type orderService struct {
	repo     OrderRepository
	observer orderlog.MutationObserver
	tx       Transactor
}

// NewOrderService creates a new order service.
func NewOrderService(repo OrderRepository, observer orderlog.MutationObserver, tx Transactor) OrderService {
	return &orderService{repo: repo, observer: observer, tx: tx}
}

// FindOrder returns the order as the order log's interface. A failed lookup
// returns a nil interface, never a typed nil.
func (s *orderService) FindOrder(ctx context.Context, id int64) (orderlog.Order, error) {
	o, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// UpdateStatus validates and applies a status change.
func (s *orderService) UpdateStatus(ctx context.Context, id int64, status string) (*Order, []*orderlog.LogEntry, error) {
	status = strings.TrimSpace(status)
	if status == "" {
		return nil, nil, apperror.NewValidation("status is required")
	}
	if len(status) > maxStatusLength {
		return nil, nil, apperror.NewValidation(fmt.Sprintf("status must be at most %d characters", maxStatusLength))
	}

	o, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if o.status == status {
		return o, nil, nil
	}

	o.SetStatus(status)
	return s.write(ctx, o, s.observer.OrderWritten)
}

// AssignMember changes the order's owner.
func (s *orderService) AssignMember(ctx context.Context, id, memberID int64) (*Order, []*orderlog.LogEntry, error) {
	if memberID < 0 {
		return nil, nil, apperror.NewValidation("member ID must not be negative")
	}

	o, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if o.memberID == memberID {
		return o, nil, nil
	}

	var m *Member
	if memberID != 0 {
		if m, err = s.repo.FindMember(ctx, memberID); err != nil {
			return nil, nil, err
		}
	}

	o.SetMember(m)
	return s.write(ctx, o, s.observer.OrderWritten)
}

// AddItem validates and appends a line.
func (s *orderService) AddItem(ctx context.Context, id int64, title string, quantity int, unitPrice string) (*Order, []*orderlog.LogEntry, error) {
	title = strings.TrimSpace(title)
	unitPrice = strings.TrimSpace(unitPrice)
	switch {
	case title == "":
		return nil, nil, apperror.NewValidation("item title is required")
	case len(title) > maxItemTitleLength:
		return nil, nil, apperror.NewValidation(fmt.Sprintf("item title must be at most %d characters", maxItemTitleLength))
	case quantity < 1:
		return nil, nil, apperror.NewValidation("quantity must be at least 1")
	}
	if p, err := strconv.ParseFloat(unitPrice, 64); err != nil || p < 0 {
		return nil, nil, apperror.NewValidation("unit price must be a non-negative amount")
	}

	o, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	it := o.AddItem(title, quantity, unitPrice)
	return s.write(ctx, o, single(func(ctx context.Context) (*orderlog.LogEntry, error) {
		return s.observer.OnItemAdded(ctx, o, it, quantity)
	}))
}

// SetItemQuantity changes a line's quantity, or removes it at zero.
func (s *orderService) SetItemQuantity(ctx context.Context, id, itemID int64, quantity int) (*Order, []*orderlog.LogEntry, error) {
	if quantity < 0 {
		return nil, nil, apperror.NewValidation("quantity must not be negative")
	}
	if quantity == 0 {
		return s.RemoveItem(ctx, id, itemID)
	}

	o, it, err := s.findItem(ctx, id, itemID)
	if err != nil {
		return nil, nil, err
	}
	if it.quantity == quantity {
		return o, nil, nil
	}

	it.SetQuantity(quantity)
	return s.write(ctx, o, single(func(ctx context.Context) (*orderlog.LogEntry, error) {
		return s.observer.OnItemQuantityChanged(ctx, o, it, quantity)
	}))
}

// RemoveItem takes a line off the order.
func (s *orderService) RemoveItem(ctx context.Context, id, itemID int64) (*Order, []*orderlog.LogEntry, error) {
	o, _, err := s.findItem(ctx, id, itemID)
	if err != nil {
		return nil, nil, err
	}

	it := o.RemoveItem(itemID)
	return s.write(ctx, o, single(func(ctx context.Context) (*orderlog.LogEntry, error) {
		return s.observer.OnItemRemoved(ctx, o, it)
	}))
}

func (s *orderService) findItem(ctx context.Context, id, itemID int64) (*Order, *Item, error) {
	o, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	it := o.FindItem(itemID)
	if it == nil {
		return nil, nil, apperror.NewNotFound("order item not found")
	}
	return o, it, nil
}

// UpdateShippingAddress applies in to the shipping address.
func (s *orderService) UpdateShippingAddress(ctx context.Context, id int64, in AddressInput) (*Order, []*orderlog.LogEntry, error) {
	if err := in.validate(); err != nil {
		return nil, nil, err
	}

	o, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if o.shipping == nil {
		a := &Address{}
		a.brandNew = true
		o.SetShippingAddress(a)
	}
	in.applyTo(o.shipping)
	if len(o.shipping.ChangedFields()) == 0 {
		return o, nil, nil
	}

	return s.write(ctx, o, single(func(ctx context.Context) (*orderlog.LogEntry, error) {
		return s.observer.OnShippingAddressChanged(ctx, o, o.shipping)
	}))
}

// UpdateBillingAddress applies in to the billing address, or drops the
// separate billing address when in is nil.
func (s *orderService) UpdateBillingAddress(ctx context.Context, id int64, in *AddressInput) (*Order, []*orderlog.LogEntry, error) {
	if in != nil {
		if err := in.validate(); err != nil {
			return nil, nil, err
		}
	}

	o, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case in == nil:
		o.SetBillingAddress(nil)
	case o.billing == nil:
		a := &Address{}
		a.brandNew = true
		in.applyTo(a)
		o.SetBillingAddress(a)
	default:
		in.applyTo(o.billing)
		o.SetBillingAddress(o.billing)
	}
	if len(o.ChangedFields()) == 0 {
		return o, nil, nil
	}

	return s.write(ctx, o, single(func(ctx context.Context) (*orderlog.LogEntry, error) {
		return s.observer.OnBillingAddressChanged(ctx, o, o.BillingAddress())
	}))
}

// logFunc writes the log entries of one order mutation.
type logFunc func(ctx context.Context, order orderlog.Order) ([]*orderlog.LogEntry, error)

func single(fn func(ctx context.Context) (*orderlog.LogEntry, error)) logFunc {
	return func(ctx context.Context, _ orderlog.Order) ([]*orderlog.LogEntry, error) {
		entry, err := fn(ctx)
		if err != nil || entry == nil {
			return nil, err
		}
		return []*orderlog.LogEntry{entry}, nil
	}
}

// write saves the order and logs it in one transaction. Either both land or
// neither does. The order is cleaned only after the commit.
func (s *orderService) write(ctx context.Context, o *Order, logFn logFunc) (*Order, []*orderlog.LogEntry, error) {
	var entries []*orderlog.LogEntry
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Save(ctx, o); err != nil {
			return apperror.NewInternal(fmt.Errorf("saving order: %w", err))
		}

		var err error
		entries, err = logFn(ctx, o)
		return err
	})
	if err != nil {
		slog.Error("order write rolled back",
			slog.Int64("order_id", o.id),
			slog.Any("error", err),
		)
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return nil, nil, appErr
		}
		return nil, nil, apperror.NewInternal(fmt.Errorf("writing order %d: %w", o.id, err))
	}

	o.Clean()
	slog.Info("order updated",
		slog.Int64("order_id", o.id),
		slog.String("status", o.status),
		slog.Int("log_entries", len(entries)),
	)
	return o, entries, nil
}

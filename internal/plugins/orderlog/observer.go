package orderlog

import (
	"context"
	"fmt"

	"github.com/keyxmakerx/orderhistory/internal/apperror"
)

// MutationObserver is called by the code that owns an order mutation, once
// per mutation. Each method logs the matching event and returns the entry
// written, or nil when nothing was worth logging.
type MutationObserver interface {
	OnStart(ctx context.Context, order Order, referrer string) (*LogEntry, error)
	OnPlace(ctx context.Context, order Order) (*LogEntry, error)
	OnPaymentAttempt(ctx context.Context, order Order) (*LogEntry, error)
	OnPaid(ctx context.Context, order Order) (*LogEntry, error)
	OnStatusChange(ctx context.Context, order Order) (*LogEntry, error)
	OnCancel(ctx context.Context, order Order) (*LogEntry, error)
	OnRecover(ctx context.Context, order Order, referrer, method string) (*LogEntry, error)

	OnItemAdded(ctx context.Context, order Order, item Item, quantity int) (*LogEntry, error)
	OnItemRemoved(ctx context.Context, order Order, item Item) (*LogEntry, error)
	OnItemQuantityChanged(ctx context.Context, order Order, item Item, quantity int) (*LogEntry, error)

	OnShippingAddressChanged(ctx context.Context, order Order, addr Address) (*LogEntry, error)
	OnBillingAddressChanged(ctx context.Context, order Order, addr Address) (*LogEntry, error)
	OnMemberChanged(ctx context.Context, order Order, member Member) (*LogEntry, error)

	OnForwardedViaEmail(ctx context.Context, order Order, recipient string) (*LogEntry, error)
	OnPrintedByCustomer(ctx context.Context, order Order) (*LogEntry, error)
	OnRepeatedByCustomer(ctx context.Context, order Order, sourceReference string) (*LogEntry, error)

	// OrderWritten inspects a saved order and fires the events its changes
	// imply: cancel or status-change for a new status, member-changed for a
	// new owner.
	OrderWritten(ctx context.Context, order Order) ([]*LogEntry, error)
}

// Auxiliary keys specific to customer actions.
const (
	KeyEmail      = "Email"
	KeyRepeatedOf = "RepeatedOf"
)

// Observer is the MutationObserver backed by a LogService.
type Observer struct {
	svc      LogService
	compiler *Compiler
}

var _ MutationObserver = (*Observer)(nil)

// NewObserver creates an observer that logs through svc.
func NewObserver(svc LogService, cfg Config) *Observer {
	return &Observer{svc: svc, compiler: NewCompiler(cfg)}
}

func (o *Observer) OnStart(ctx context.Context, order Order, referrer string) (*LogEntry, error) {
	return o.svc.Log(ctx, order, EventStart, map[string]any{KeyReferrer: referrer}, true)
}

func (o *Observer) OnPlace(ctx context.Context, order Order) (*LogEntry, error) {
	return o.svc.Log(ctx, order, EventPlace, nil, true)
}

func (o *Observer) OnPaymentAttempt(ctx context.Context, order Order) (*LogEntry, error) {
	return o.svc.Log(ctx, order, EventPaymentAttempt, nil, true)
}

func (o *Observer) OnPaid(ctx context.Context, order Order) (*LogEntry, error) {
	return o.svc.Log(ctx, order, EventPaid, nil, true)
}

func (o *Observer) OnStatusChange(ctx context.Context, order Order) (*LogEntry, error) {
	return o.svc.Log(ctx, order, EventStatusChange, nil, true)
}

func (o *Observer) OnCancel(ctx context.Context, order Order) (*LogEntry, error) {
	return o.svc.Log(ctx, order, EventCancel, nil, true)
}

func (o *Observer) OnRecover(ctx context.Context, order Order, referrer, method string) (*LogEntry, error) {
	return o.svc.Log(ctx, order, EventRecover, map[string]any{
		KeyReferrer: referrer,
		KeyMethod:   method,
	}, true)
}

func (o *Observer) OnItemAdded(ctx context.Context, order Order, item Item, quantity int) (*LogEntry, error) {
	return o.svc.Log(ctx, order, EventItemAdded, map[string]any{
		KeyOrderItem: item,
		KeyQuantity:  quantity,
	}, false)
}

// OnItemRemoved logs a removal as a quantity of zero.
func (o *Observer) OnItemRemoved(ctx context.Context, order Order, item Item) (*LogEntry, error) {
	return o.svc.Log(ctx, order, EventItemRemoved, map[string]any{
		KeyOrderItem: item,
		KeyQuantity:  0,
	}, false)
}

func (o *Observer) OnItemQuantityChanged(ctx context.Context, order Order, item Item, quantity int) (*LogEntry, error) {
	return o.svc.Log(ctx, order, EventItemQuantityChanged, map[string]any{
		KeyOrderItem: item,
		KeyQuantity:  quantity,
	}, false)
}

func (o *Observer) OnShippingAddressChanged(ctx context.Context, order Order, addr Address) (*LogEntry, error) {
	return o.svc.Log(ctx, order, EventShippingAddressChanged, map[string]any{KeyShippingAddress: addr}, false)
}

func (o *Observer) OnBillingAddressChanged(ctx context.Context, order Order, addr Address) (*LogEntry, error) {
	return o.svc.Log(ctx, order, EventBillingAddressChanged, map[string]any{KeyBillingAddress: addr}, false)
}

func (o *Observer) OnMemberChanged(ctx context.Context, order Order, member Member) (*LogEntry, error) {
	return o.svc.Log(ctx, order, EventMemberChanged, map[string]any{KeyMember: member}, false)
}

// Customer actions carry no order changes, so they are always forced.

func (o *Observer) OnForwardedViaEmail(ctx context.Context, order Order, recipient string) (*LogEntry, error) {
	return o.svc.Log(ctx, order, EventForwardedViaEmail, map[string]any{KeyEmail: recipient}, true)
}

func (o *Observer) OnPrintedByCustomer(ctx context.Context, order Order) (*LogEntry, error) {
	return o.svc.Log(ctx, order, EventPrintedByCustomer, nil, true)
}

func (o *Observer) OnRepeatedByCustomer(ctx context.Context, order Order, sourceReference string) (*LogEntry, error) {
	return o.svc.Log(ctx, order, EventRepeatedByCustomer, map[string]any{KeyRepeatedOf: sourceReference}, true)
}

// OrderWritten routes the changes of a saved order to their events.
func (o *Observer) OrderWritten(ctx context.Context, order Order) ([]*LogEntry, error) {
	changes := order.ChangedFields()
	var written []*LogEntry

	if ev, ok := o.compiler.ClassifyStatusChange(changes); ok {
		var (
			entry *LogEntry
			err   error
		)
		if ev == EventCancel {
			entry, err = o.OnCancel(ctx, order)
		} else {
			entry, err = o.OnStatusChange(ctx, order)
		}
		if err != nil {
			return written, err
		}
		if entry != nil {
			written = append(written, entry)
		}
	}

	if _, ok := changes[KeyMemberID]; ok {
		entry, err := o.OnMemberChanged(ctx, order, order.Member())
		if err != nil {
			return written, err
		}
		if entry != nil {
			written = append(written, entry)
		}
	}
	return written, nil
}

// FireCustomerEvent runs the observer method for a customer action. detail
// is the forward recipient or the source order reference; other actions
// ignore it.
func FireCustomerEvent(ctx context.Context, obs MutationObserver, order Order, ev Event, detail string) (*LogEntry, error) {
	switch ev {
	case EventForwardedViaEmail:
		return obs.OnForwardedViaEmail(ctx, order, detail)
	case EventPrintedByCustomer:
		return obs.OnPrintedByCustomer(ctx, order)
	case EventRepeatedByCustomer:
		return obs.OnRepeatedByCustomer(ctx, order, detail)
	}
	return nil, apperror.NewBadRequest(fmt.Sprintf("%q is not a customer action", ev))
}

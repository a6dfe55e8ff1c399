// Package orderlog keeps the status history of a purchase order. Every
// lifecycle transition (started, placed, paid, cancelled, shipped, ...)
// becomes a LogEntry, except where compaction intervenes: automated
// "Updated" entries are capped per order and the oldest are evicted.
//
// The order itself and the mail transport are external collaborators. This
// package only sees them through the Order and Mailer interfaces.
package orderlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"
)

// --- Events ---

// Event names a mutation of an order that may produce a log entry.
type Event string

const (
	EventStart                  Event = "start"
	EventPlace                  Event = "place"
	EventPaymentAttempt         Event = "payment-attempt"
	EventPaid                   Event = "paid"
	EventStatusChange           Event = "status-change"
	EventCancel                 Event = "cancel"
	EventRecover                Event = "recover"
	EventItemAdded              Event = "item-added"
	EventItemRemoved            Event = "item-removed"
	EventItemQuantityChanged    Event = "item-quantity-changed"
	EventShippingAddressChanged Event = "shipping-address-changed"
	EventBillingAddressChanged  Event = "billing-address-changed"
	EventMemberChanged          Event = "member-changed"
	EventForwardedViaEmail      Event = "forwarded-via-email"
	EventPrintedByCustomer      Event = "printed-by-customer"
	EventRepeatedByCustomer     Event = "repeated-by-customer"
)

// allEvents is the closed set of events the compiler understands.
var allEvents = []Event{
	EventStart, EventPlace, EventPaymentAttempt, EventPaid, EventStatusChange,
	EventCancel, EventRecover, EventItemAdded, EventItemRemoved,
	EventItemQuantityChanged, EventShippingAddressChanged,
	EventBillingAddressChanged, EventMemberChanged, EventForwardedViaEmail,
	EventPrintedByCustomer, EventRepeatedByCustomer,
}

// Valid reports whether e is a known event.
func (e Event) Valid() bool {
	return slices.Contains(allEvents, e)
}

// customerEvents may be fired from the public order page.
var customerEvents = []Event{
	EventForwardedViaEmail, EventPrintedByCustomer, EventRepeatedByCustomer,
}

// --- Change Log ---

// ChangeKind tags the variant held by a Change.
type ChangeKind string

const (
	// KindScalar is a field that went from Before to After.
	KindScalar ChangeKind = "scalar"

	// KindNested holds the field diff of a related object.
	KindNested ChangeKind = "nested"

	// KindRaw holds a value that has no diff of its own (e.g. a quantity).
	KindRaw ChangeKind = "raw"
)

// Change is one entry of a ChangeLog. Exactly one of the variant payloads
// is meaningful, selected by Kind.
type Change struct {
	Kind   ChangeKind `json:"kind"`
	Before any        `json:"before,omitempty"`
	After  any        `json:"after,omitempty"`
	Fields ChangeLog  `json:"fields,omitempty"`
	Value  any        `json:"value,omitempty"`
}

// Scalar builds a before/after field change.
func Scalar(before, after any) Change {
	return Change{Kind: KindScalar, Before: before, After: after}
}

// Nested builds a change holding a related object's own diff.
func Nested(fields ChangeLog) Change {
	return Change{Kind: KindNested, Fields: fields}
}

// Raw builds a change holding a plain value.
func Raw(value any) Change {
	return Change{Kind: KindRaw, Value: value}
}

// ChangeLog maps a field or related object name to what happened to it.
type ChangeLog map[string]Change

// Clone returns a deep copy so callers cannot mutate a stored log.
func (cl ChangeLog) Clone() ChangeLog {
	if cl == nil {
		return ChangeLog{}
	}
	out := make(ChangeLog, len(cl))
	for k, v := range cl {
		if v.Fields != nil {
			v.Fields = v.Fields.Clone()
		}
		out[k] = v
	}
	return out
}

// UnmarshalJSON decodes a stored change log. Whole numbers come back as int
// and other numbers as float64, so a reloaded log compares equal to the one
// that was written.
func (cl *ChangeLog) UnmarshalJSON(data []byte) error {
	type plain ChangeLog

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var m plain
	if err := dec.Decode(&m); err != nil {
		return err
	}
	for k, c := range m {
		c.Before = normalizeNumber(c.Before)
		c.After = normalizeNumber(c.After)
		c.Value = normalizeNumber(c.Value)
		m[k] = c
	}
	*cl = ChangeLog(m)
	return nil
}

func normalizeNumber(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i)
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []any:
		for i := range t {
			t[i] = normalizeNumber(t[i])
		}
	case map[string]any:
		for k := range t {
			t[k] = normalizeNumber(t[k])
		}
	}
	return v
}

// Keys returns the changed names in sorted order.
func (cl ChangeLog) Keys() []string {
	return slices.Sorted(maps.Keys(cl))
}

// --- Collaborators ---

// Diffable is anything that can report its own field-level changes since
// it was loaded.
type Diffable interface {
	ChangedFields() ChangeLog
}

// Item is an order line.
type Item interface {
	Diffable
	Title() string
	Quantity() int
}

// Address is a shipping or billing address.
type Address interface {
	Diffable
	fmt.Stringer
}

// Member is the registered customer who owns an order.
type Member interface {
	Diffable
	Name() string
}

// Order is the purchase order a log belongs to. ChangedFields reports
// scalar field changes plus one level of related-object diffs.
type Order interface {
	Diffable
	ID() int64
	Status() string
	Reference() string
	LatestEmail() string
	CustomerName() string
	Total() string
	Items() []Item

	// Member returns nil for guest orders.
	Member() Member

	// ShippingAddress and BillingAddress return nil when unset.
	ShippingAddress() Address
	BillingAddress() Address
}

// GatewayReporter is optionally implemented by orders that know which
// payment gateway captured their last payment.
type GatewayReporter interface {
	PaymentGateway() string
}

// --- Log Entry ---

// LogEntry is one row of an order's status history.
type LogEntry struct {
	ID      int64  `json:"id"`
	OrderID int64  `json:"orderId"`
	Status  string `json:"status"`
	Title   string `json:"title"`
	Note    string `json:"note,omitempty"`

	ChangeLog ChangeLog `json:"changeLog,omitempty"`

	// Public entries are visible to the customer on their order page.
	Public    bool       `json:"public"`
	Unread    bool       `json:"unread"`
	FirstRead *time.Time `json:"firstRead,omitempty"`

	// Automated is true when the entry came from the change compiler.
	Automated bool `json:"automated"`

	// Send asks for an email on first write. Sent is stamped once the email
	// went out, together with the resolved envelope.
	Send          bool       `json:"send"`
	Sent          *time.Time `json:"sent,omitempty"`
	SendTo        string     `json:"sendTo,omitempty"`
	SendFrom      string     `json:"sendFrom,omitempty"`
	SendSubject   string     `json:"sendSubject,omitempty"`
	SendBody      string     `json:"sendBody,omitempty"`
	SendHideOrder bool       `json:"sendHideOrder"`

	DispatchTicket string     `json:"dispatchTicket,omitempty"`
	DispatchedBy   string     `json:"dispatchedBy,omitempty"`
	DispatchedOn   *time.Time `json:"dispatchedOn,omitempty"`
	DispatchURI    string     `json:"dispatchUri,omitempty"`

	// AuthorID identifies the staff member behind a manual entry.
	AuthorID  string    `json:"authorId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`

	discarded bool
}

// AssignStatus sets the status an automated entry for ev receives.
func (e *LogEntry) AssignStatus(c *Catalog, ev Event) {
	e.Status = c.StatusForEvent(ev)
}

// FinalizeTitle fills defaults that must hold once the entry is persisted:
// a status (GenericStatus if empty) and a title (the status if empty).
func (e *LogEntry) FinalizeTitle() {
	if e.Status == "" {
		e.Status = GenericStatus
	}
	if e.Title == "" {
		e.Title = e.Status
	}
}

// Discard marks the entry as dropped: it must never be persisted.
func (e *LogEntry) Discard() {
	e.discarded = true
}

// Discarded reports whether Discard was called.
func (e *LogEntry) Discarded() bool {
	return e.discarded
}

// AwaitingSend reports whether an email was requested but has not gone out.
func (e *LogEntry) AwaitingSend() bool {
	return e.Send && e.Sent == nil
}

// --- Manual Entries ---

// ManualEntry is a log entry written by staff or by a customer action
// rather than by the change compiler.
type ManualEntry struct {
	Status         string     `json:"status"`
	Title          string     `json:"title"`
	Note           string     `json:"note"`
	Public         bool       `json:"public"`
	Send           bool       `json:"send"`
	SendTo         string     `json:"sendTo"`
	SendFrom       string     `json:"sendFrom"`
	SendSubject    string     `json:"sendSubject"`
	SendBody       string     `json:"sendBody"`
	SendHideOrder  bool       `json:"sendHideOrder"`
	DispatchTicket string     `json:"dispatchTicket"`
	DispatchedBy   string     `json:"dispatchedBy"`
	DispatchedOn   *time.Time `json:"dispatchedOn"`
	DispatchURI    string     `json:"dispatchUri"`
	AuthorID       string     `json:"-"`
}

// toEntry builds the unsaved entry for an order.
func (m ManualEntry) toEntry(orderID int64) *LogEntry {
	return &LogEntry{
		OrderID:        orderID,
		Status:         m.Status,
		Title:          m.Title,
		Note:           m.Note,
		Public:         m.Public,
		Unread:         true,
		Send:           m.Send,
		SendTo:         m.SendTo,
		SendFrom:       m.SendFrom,
		SendSubject:    m.SendSubject,
		SendBody:       m.SendBody,
		SendHideOrder:  m.SendHideOrder,
		DispatchTicket: m.DispatchTicket,
		DispatchedBy:   m.DispatchedBy,
		DispatchedOn:   m.DispatchedOn,
		DispatchURI:    m.DispatchURI,
		AuthorID:       m.AuthorID,
	}
}

// DisplayEntry is a log entry decorated for rendering: icon, status label,
// human-readable details and resolved tracking URL.
type DisplayEntry struct {
	LogEntry
	Label       string   `json:"label"`
	Icon        string   `json:"icon"`
	Details     []string `json:"details,omitempty"`
	TrackingURL string   `json:"trackingUrl,omitempty"`
}

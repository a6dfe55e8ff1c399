// Package orders holds the shop's purchase orders as the order log sees
// them: a change-tracked order with its items, addresses and member,
// loaded from the shop's MariaDB tables.
package orders

import (
	"strings"

	"github.com/keyxmakerx/orderhistory/internal/plugins/orderlog"
)

// Order statuses as stored by the shop.
const (
	StatusCart            = "Cart"
	StatusUnpaid          = "Unpaid"
	StatusPaid            = "Paid"
	StatusProcessing      = "Processing"
	StatusSent            = "Sent"
	StatusComplete        = "Complete"
	StatusMemberCancelled = orderlog.OrderStatusMemberCancelled
	StatusAdminCancelled  = orderlog.OrderStatusAdminCancelled
)

// --- Order ---

// Order is a purchase order. Mutations go through setters so the order can
// report what changed since it was loaded.
type Order struct {
	tracker

	id              int64
	reference       string
	status          string
	email           string
	firstName       string
	surname         string
	total           string
	memberID        int64
	separateBilling bool
	paymentGateway  string

	member   *Member
	shipping *Address
	billing  *Address
	items    []*Item
}

var (
	_ orderlog.Order           = (*Order)(nil)
	_ orderlog.GatewayReporter = (*Order)(nil)
)

func (o *Order) ID() int64              { return o.id }
func (o *Order) Status() string         { return o.status }
func (o *Order) Reference() string      { return o.reference }
func (o *Order) LatestEmail() string    { return o.email }
func (o *Order) Total() string          { return o.total }
func (o *Order) MemberID() int64        { return o.memberID }
func (o *Order) PaymentGateway() string { return o.paymentGateway }

// CustomerName is the name the order was placed under.
func (o *Order) CustomerName() string {
	return strings.TrimSpace(o.firstName + " " + o.surname)
}

// Items returns the order lines still on the order.
func (o *Order) Items() []orderlog.Item {
	out := make([]orderlog.Item, 0, len(o.items))
	for _, it := range o.items {
		if !it.removed {
			out = append(out, it)
		}
	}
	return out
}

// Member returns nil for guest orders. The explicit nil keeps a nil
// *Member from becoming a non-nil interface.
func (o *Order) Member() orderlog.Member {
	if o.member == nil {
		return nil
	}
	return o.member
}

func (o *Order) ShippingAddress() orderlog.Address {
	if o.shipping == nil {
		return nil
	}
	return o.shipping
}

func (o *Order) BillingAddress() orderlog.Address {
	if o.billing == nil {
		return nil
	}
	return o.billing
}

// ChangedFields returns the order's own field changes plus one level of
// related-object diffs.
func (o *Order) ChangedFields() orderlog.ChangeLog {
	out := o.tracker.ChangedFields()

	related := map[string]orderlog.Diffable{}
	if o.member != nil {
		related[orderlog.KeyMember] = o.member
	}
	if o.shipping != nil {
		related[orderlog.KeyShippingAddress] = o.shipping
	}
	if o.billing != nil {
		related[orderlog.KeyBillingAddress] = o.billing
	}
	for key, rel := range related {
		if fields := rel.ChangedFields(); len(fields) > 0 {
			out[key] = orderlog.Nested(fields)
		}
	}
	return out
}

// Clean forgets the changes of the order and everything attached to it,
// and drops removed items.
func (o *Order) Clean() {
	o.tracker.Clean()
	if o.member != nil {
		o.member.Clean()
	}
	if o.shipping != nil {
		o.shipping.Clean()
	}
	if o.billing != nil {
		o.billing.Clean()
	}
	kept := o.items[:0]
	for _, it := range o.items {
		if !it.removed {
			it.Clean()
			kept = append(kept, it)
		}
	}
	o.items = kept
}

// --- Setters ---

func (o *Order) SetStatus(status string) {
	o.set("Status", o.status, status)
	o.status = status
}

// SetMember assigns the order to m, or makes it a guest order when m is nil.
func (o *Order) SetMember(m *Member) {
	var id int64
	if m != nil {
		id = m.id
	}
	o.set(orderlog.KeyMemberID, o.memberID, id)
	o.memberID = id
	o.member = m
}

func (o *Order) SetShippingAddress(a *Address) {
	o.shipping = a
}

func (o *Order) SetBillingAddress(a *Address) {
	o.set("SeparateBillingAddress", o.separateBilling, a != nil)
	o.separateBilling = a != nil
	o.billing = a
}

// AddItem appends a new line to the order.
func (o *Order) AddItem(title string, quantity int, unitPrice string) *Item {
	it := &Item{title: title, quantity: quantity, unitPrice: unitPrice}
	it.brandNew = true
	it.set("Title", "", title)
	it.set("Quantity", 0, quantity)
	o.items = append(o.items, it)
	return it
}

// RemoveItem takes a line off the order. It returns nil when no line has
// the given ID.
func (o *Order) RemoveItem(id int64) *Item {
	for _, it := range o.items {
		if it.id == id && !it.removed {
			it.SetQuantity(0)
			it.removed = true
			return it
		}
	}
	return nil
}

// FindItem returns the line with the given ID, or nil.
func (o *Order) FindItem(id int64) *Item {
	for _, it := range o.items {
		if it.id == id && !it.removed {
			return it
		}
	}
	return nil
}

// --- Item ---

// Item is an order line.
type Item struct {
	tracker

	id        int64
	title     string
	quantity  int
	unitPrice string
	removed   bool
}

var _ orderlog.Item = (*Item)(nil)

func (i *Item) ID() int64         { return i.id }
func (i *Item) Title() string     { return i.title }
func (i *Item) Quantity() int     { return i.quantity }
func (i *Item) UnitPrice() string { return i.unitPrice }

func (i *Item) SetQuantity(q int) {
	i.set("Quantity", i.quantity, q)
	i.quantity = q
}

// --- Address ---

// Address is a postal address attached to an order.
type Address struct {
	tracker

	id       int64
	name     string
	street   string
	city     string
	state    string
	postcode string
	country  string
}

var _ orderlog.Address = (*Address)(nil)

// NewAddress builds an address that did not exist before.
func NewAddress(name, street, city, state, postcode, country string) *Address {
	a := &Address{}
	a.brandNew = true
	a.SetName(name)
	a.SetStreet(street)
	a.SetCity(city)
	a.SetState(state)
	a.SetPostcode(postcode)
	a.SetCountry(country)
	return a
}

func (a *Address) SetName(v string)     { a.set("Name", a.name, v); a.name = v }
func (a *Address) SetStreet(v string)   { a.set("Street", a.street, v); a.street = v }
func (a *Address) SetCity(v string)     { a.set("City", a.city, v); a.city = v }
func (a *Address) SetState(v string)    { a.set("State", a.state, v); a.state = v }
func (a *Address) SetPostcode(v string) { a.set("Postcode", a.postcode, v); a.postcode = v }
func (a *Address) SetCountry(v string)  { a.set("Country", a.country, v); a.country = v }

// String renders the address on one line, skipping empty parts.
func (a *Address) String() string {
	locality := strings.TrimSpace(strings.Join(nonEmpty(a.city, a.state, a.postcode), " "))
	return strings.Join(nonEmpty(a.name, a.street, locality, a.country), ", ")
}

// --- Member ---

// Member is a registered customer.
type Member struct {
	tracker

	id        int64
	firstName string
	surname   string
	email     string
}

var _ orderlog.Member = (*Member)(nil)

func (m *Member) ID() int64     { return m.id }
func (m *Member) Email() string { return m.email }

// Name is the member's full name.
func (m *Member) Name() string {
	return strings.TrimSpace(m.firstName + " " + m.surname)
}

func nonEmpty(parts ...string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package orderlog

import (
	"slices"
	"strings"
	"unicode"
)

// --- Status Constants ---
// Status codes are free-form strings: staff may type any status, but these
// are the ones the system itself assigns or knows how to display.

const (
	StatusStarted            = "Started"
	StatusRestarted          = "Restarted"
	StatusPlaced             = "Placed"
	StatusProcessing         = "Processing"
	StatusPaid               = "Paid"
	StatusCancelled          = "Cancelled"
	StatusCompleted          = "Completed"
	StatusShipped            = "Shipped"
	StatusArchived           = "Archived"
	StatusNotified           = "Notified"
	StatusQuery              = "Query"
	StatusRefunded           = "Refunded"
	StatusForwardedViaEmail  = "ForwardedViaEmail"
	StatusPrintedByCustomer  = "PrintedByCustomer"
	StatusRepeatedByCustomer = "RepeatedByCustomer"

	// GenericStatus is the catch-all for automated entries without a mapped
	// status. Only entries with this status are subject to eviction.
	GenericStatus = "Updated"
)

// fallbackIcon is shown for statuses that have no configured icon.
const fallbackIcon = `<i class="fa order-statusIcon--minor icon-timeline--minor"></i>`

// paidIconClass is the marker class on the Paid icon that the payment
// gateway token is appended after.
const paidIconClass = "order-statusIcon--paid"

// StatusInfo is the display metadata for a known status.
type StatusInfo struct {
	Title string `json:"title"`
	Icon  string `json:"icon"`
}

// Catalog is the static registry of statuses. It is pure lookup: nothing
// on it mutates after construction.
type Catalog struct {
	// Statuses maps known status codes to their display metadata.
	Statuses map[string]StatusInfo

	// EventStatus maps an event to the status its automated entry receives.
	// Events without a mapping get GenericStatus.
	EventStatus map[Event]string

	// IgnoreAsState lists statuses that never represent the order's state.
	IgnoreAsState []string

	// Reserved statuses may only be assigned by the system.
	Reserved []string

	// Exclusive statuses may appear at most once per order.
	Exclusive []string

	// Priority ranks statuses for state resolution and display ordering.
	// Earlier entries outrank later ones; unlisted statuses rank last.
	Priority []string

	// ShippingProviders maps carrier names to their tracking page URL.
	ShippingProviders map[string]string
}

// DefaultCatalog returns the catalog with the built-in statuses.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Statuses: map[string]StatusInfo{
			StatusNotified:   {Title: "Notified", Icon: `<i class="fa fa-comment order-statusIcon--notified"></i>`},
			StatusShipped:    {Title: "Shipped", Icon: `<i class="fa fa-send order-statusIcon--shipped"></i>`},
			StatusCompleted:  {Title: "Completed", Icon: `<i class="fa fa-star order-statusIcon--completed"></i>`},
			StatusArchived:   {Title: "Archived", Icon: `<i class="fa fa-archive order-statusIcon--archived"></i>`},
			StatusCancelled:  {Title: "Cancelled", Icon: `<i class="fa fa-remove order-statusIcon--cancelled"></i>`},
			StatusQuery:      {Title: "Query", Icon: `<i class="fa fa-question order-statusIcon--query"></i>`},
			StatusRefunded:   {Title: "Refunded", Icon: `<i class="fa fa-undo order-statusIcon--refunded"></i>`},
			StatusPaid:       {Title: "Paid", Icon: `<i class="fa fa-money order-statusIcon--paid"></i>`},
			StatusPlaced:     {Title: "Placed", Icon: `<i class="fa fa-check order-statusIcon--placed"></i>`},
			StatusProcessing: {Title: "Processing", Icon: `<i class="fa fa-refresh order-statusIcon--processing"></i>`},
			StatusStarted:    {Title: "Started", Icon: `<i class="fa fa-star-o order-statusIcon--started"></i>`},
		},
		EventStatus: map[Event]string{
			EventStart:              StatusStarted,
			EventPlace:              StatusPlaced,
			EventPaymentAttempt:     StatusProcessing,
			EventPaid:               StatusPaid,
			EventCancel:             StatusCancelled,
			EventRecover:            StatusRestarted,
			EventForwardedViaEmail:  StatusForwardedViaEmail,
			EventPrintedByCustomer:  StatusPrintedByCustomer,
			EventRepeatedByCustomer: StatusRepeatedByCustomer,
		},
		IgnoreAsState: []string{
			StatusNotified,
			GenericStatus,
			StatusForwardedViaEmail,
			StatusPrintedByCustomer,
		},
		Reserved: []string{
			StatusStarted,
			StatusCompleted,
			StatusCancelled,
		},
		Exclusive: []string{
			StatusShipped,
			StatusCompleted,
			StatusCancelled,
			StatusPlaced,
			StatusStarted,
		},
		Priority: []string{
			StatusCompleted,
			StatusCancelled,
			StatusRefunded,
			StatusQuery,
			StatusPaid,
			StatusProcessing,
			StatusPlaced,
			GenericStatus,
			StatusStarted,
		},
		ShippingProviders: map[string]string{
			"Australia Post": "http://auspost.com.au/track/track.html",
			"TNT Express":    "http://www.tntexpress.com.au/interaction/asps/trackdtl_tntau.asp",
		},
	}
}

// IconFor returns the icon markup for a status. Paid entries get an extra
// class derived from the payment gateway (lowercased, whitespace removed).
// Unknown statuses get a generic minor icon.
func (c *Catalog) IconFor(status, gateway string) string {
	icon := c.Statuses[status].Icon

	if status == StatusPaid && icon != "" && gateway != "" {
		icon = strings.Replace(icon, paidIconClass, paidIconClass+" "+gatewayClass(gateway), 1)
	}

	if icon == "" {
		return fallbackIcon
	}
	return icon
}

// gatewayClass builds the icon class token for a payment gateway name.
func gatewayClass(gateway string) string {
	if gateway == "PayPal_Express" {
		return "fa-paypal"
	}
	token := strings.ToLower(strings.Join(strings.Fields(gateway), ""))
	return "fa-cc-" + token + " fa-" + token
}

// IsStateStatus reports whether entries with this status may represent the
// order's current state.
func (c *Catalog) IsStateStatus(status string) bool {
	return !slices.Contains(c.IgnoreAsState, status)
}

// IsReserved reports whether only the system may assign this status.
func (c *Catalog) IsReserved(status string) bool {
	return slices.Contains(c.Reserved, status)
}

// IsExclusive reports whether this status may appear at most once per order.
func (c *Catalog) IsExclusive(status string) bool {
	return slices.Contains(c.Exclusive, status)
}

// IsGeneric reports whether status is the evictable catch-all status.
func (c *Catalog) IsGeneric(status string) bool {
	return status == GenericStatus
}

// PriorityOrder returns a copy of the status priority table.
func (c *Catalog) PriorityOrder() []string {
	return slices.Clone(c.Priority)
}

// Rank returns the position of status in the priority table. Unlisted
// statuses share the lowest rank, len(Priority).
func (c *Catalog) Rank(status string) int {
	if i := slices.Index(c.Priority, status); i >= 0 {
		return i
	}
	return len(c.Priority)
}

// StatusForEvent returns the status an automated entry for ev receives.
func (c *Catalog) StatusForEvent(ev Event) string {
	if s, ok := c.EventStatus[ev]; ok && s != "" {
		return s
	}
	return GenericStatus
}

// Title returns the configured display title for status, or a label
// derived from the code itself.
func (c *Catalog) Title(status string) string {
	if info, ok := c.Statuses[status]; ok && info.Title != "" {
		return info.Title
	}
	return Label(status)
}

// TrackingURL returns the tracking page for a carrier, or "" if unknown.
func (c *Catalog) TrackingURL(carrier string) string {
	for name, url := range c.ShippingProviders {
		if strings.EqualFold(name, strings.TrimSpace(carrier)) {
			return url
		}
	}
	return ""
}

// Label turns a status code into words: "PrintedByCustomer" becomes
// "Printed By Customer" and "Send_To" becomes "Send To".
func Label(code string) string {
	var b strings.Builder
	runes := []rune(strings.ReplaceAll(code, "_", " "))
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) && unicode.IsLower(runes[i-1]) {
			b.WriteRune(' ')
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

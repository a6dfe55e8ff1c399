package orderlog

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// detailFields are the order fields whose scalar changes are worth showing
// in a timeline.
var detailFields = []string{"IPAddress", "Reference", "SeparateBillingAddress", "Notes", "Referrer", "Total"}

// sentLayout formats the notification timestamp in details.
const sentLayout = "2006-01-02 15:04:05"

// Details summarises an entry for a timeline: its note, what changed for
// generic entries, when the customer was notified and who wrote it.
func Details(e *LogEntry) []string {
	var details []string

	if e.Note != "" {
		details = append(details, e.Note)
	}

	if e.Status == GenericStatus {
		details = append(details, changeDetails(e.ChangeLog)...)
	}

	if e.Sent != nil {
		details = append(details, "Notified customer on: "+e.Sent.Format(sentLayout))
	}
	if e.AuthorID != "" {
		details = append(details, "Author: "+e.AuthorID)
	}
	return details
}

func changeDetails(cl ChangeLog) []string {
	var details []string

	if item, ok := cl[KeyOrderItem]; ok {
		if qty, ok := cl[KeyQuantity]; ok {
			title := objectLabel(item, "item")
			switch {
			case hasField(item, KeyBrandNew):
				details = append(details, fmt.Sprintf("Added %s of %s", formatValue(qty.Value), title))
			case truthy(qty.Value):
				details = append(details, fmt.Sprintf("Set %s to %s", title, formatValue(qty.Value)))
			default:
				details = append(details, fmt.Sprintf("Removed %s", title))
			}
		}
	}

	if addr, ok := cl[KeyShippingAddress]; ok {
		if label := objectLabel(addr, ""); label != "" {
			details = append(details, "Ship to: "+label)
		}
	}
	if addr, ok := cl[KeyBillingAddress]; ok {
		if label := objectLabel(addr, ""); label != "" {
			details = append(details, "Bill to: "+label)
		}
	}
	if member, ok := cl[KeyMember]; ok {
		details = append(details, "Member: "+objectLabel(member, ""))
	}

	for _, field := range detailFields {
		change, ok := cl[field]
		if !ok {
			continue
		}
		switch change.Kind {
		case KindScalar:
			before := formatValue(change.Before)
			if before == "" {
				before = "none"
			}
			details = append(details, fmt.Sprintf("%s changed from %s to %s",
				Label(field), before, formatValue(change.After)))
		case KindRaw:
			if s, ok := change.Value.(string); ok {
				details = append(details, Label(field)+": "+s)
			}
		}
	}
	return details
}

// objectLabel returns the display name stored for a nested or raw object.
func objectLabel(c Change, fallback string) string {
	switch c.Kind {
	case KindNested:
		if l, ok := c.Fields[KeyLabel]; ok {
			if s := formatValue(l.Value); s != "" {
				return s
			}
		}
		if t, ok := c.Fields["Title"]; ok {
			if s := formatValue(t.After); s != "" {
				return s
			}
			return formatValue(t.Before)
		}
	case KindRaw:
		if s := formatValue(c.Value); s != "" {
			return s
		}
	}
	return fallback
}

func hasField(c Change, key string) bool {
	_, ok := c.Fields[key]
	return c.Kind == KindNested && ok
}

// truthy reports whether a decoded JSON value is non-zero.
func truthy(v any) bool {
	switch n := v.(type) {
	case nil:
		return false
	case bool:
		return n
	case int:
		return n != 0
	case int64:
		return n != 0
	case float64:
		return n != 0
	case string:
		return n != "" && n != "0"
	}
	return true
}

// formatValue renders a change value. Whole floats print without a
// fraction.
func formatValue(v any) string {
	switch n := v.(type) {
	case nil:
		return ""
	case string:
		return n
	case float64:
		if n == math.Trunc(n) {
			return strconv.FormatInt(int64(n), 10)
		}
		return strconv.FormatFloat(n, 'f', -1, 64)
	case time.Time:
		return n.Format(sentLayout)
	}
	return fmt.Sprint(v)
}

// TrackingURL returns the dispatch URI, or the tracking page of the carrier
// the entry was dispatched by.
func (e *LogEntry) TrackingURL(cat *Catalog) string {
	if e.DispatchURI != "" {
		return e.DispatchURI
	}
	if e.DispatchedBy == "" {
		return ""
	}
	return cat.TrackingURL(e.DispatchedBy)
}

// Decorate builds the display form of an entry.
func Decorate(cat *Catalog, e *LogEntry, gateway string) DisplayEntry {
	return DisplayEntry{
		LogEntry:    *e,
		Label:       cat.Title(e.Status),
		Icon:        cat.IconFor(e.Status, gateway),
		Details:     Details(e),
		TrackingURL: e.TrackingURL(cat),
	}
}

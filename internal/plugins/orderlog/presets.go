package orderlog

import (
	"fmt"
	"html"
	"strings"
)

// Preset names a canned manual entry staff can start from.
type Preset string

const (
	// PresetNotified sends a free-form email to the customer.
	PresetNotified Preset = "notified"

	// PresetShipped sends shipping details.
	PresetShipped Preset = "shipped"

	// PresetQuery records a query made by the customer. The envelope is
	// reversed so the message goes to the shop.
	PresetQuery Preset = "query"
)

// Valid reports whether p is a known preset. The empty preset is valid and
// means "no preset".
func (p Preset) Valid() bool {
	switch p {
	case "", PresetNotified, PresetShipped, PresetQuery:
		return true
	}
	return false
}

// ApplyPreset fills the preset's defaults into m. Fields staff already set
// are kept. Placeholders in the title and note are resolved against order
// so the stored entry reads correctly without the order at hand.
func ApplyPreset(p Preset, m ManualEntry, order Order, cfg Config) (ManualEntry, error) {
	cfg = cfg.withDefaults()

	switch p {
	case "":
		return m, nil

	case PresetNotified:
		m.Status = StatusNotified
		m.Send = true
		m.Public = true
		m.Note = orDefault(m.Note, "Email was sent to customer")

	case PresetShipped:
		m.Status = StatusShipped
		m.Public = true
		m.Send = true
		m.Title = orDefault(m.Title, "$Order.Reference has been shipped")
		m.Note = orDefault(m.Note, "$Order.Reference has been shipped to the following address: $Order.ShippingAddress.Title")
		m.SendSubject = orDefault(m.SendSubject, "$Order.Reference has been shipped")
		m.SendBody = orDefault(m.SendBody,
			"<strong>$Order.Reference</strong> has been shipped to the following address:<br />\n"+
				"<strong>$Order.ShippingAddress.Title</strong>"+dispatchInformation(m, cfg.Catalog))

	case PresetQuery:
		m.Status = StatusQuery
		m.Send = true
		m.Public = true
		m.Title = orDefault(m.Title, "A query was made by the customer")
		m.SendSubject = orDefault(m.SendSubject, "Query concerning $Order.Reference")
		if m.SendTo == "" {
			m.SendTo = orDefault(cfg.ReceiptEmail, cfg.AdminEmail)
		}
		if m.SendFrom == "" {
			m.SendFrom = strings.TrimSpace(order.LatestEmail())
		}

	default:
		return m, fmt.Errorf("unknown preset %q", p)
	}

	r := placeholders(order, false)
	m.Title = r.Replace(m.Title)
	m.Note = r.Replace(m.Note)
	return m, nil
}

// dispatchInformation renders the carrier block of a shipping email.
func dispatchInformation(m ManualEntry, cat *Catalog) string {
	if m.DispatchTicket == "" && m.DispatchedBy == "" {
		return ""
	}

	var b strings.Builder
	b.WriteString("<br /><br />\n\n<p>")
	if m.DispatchedBy != "" {
		b.WriteString("Dispatched by " + html.EscapeString(m.DispatchedBy))
		if m.DispatchedOn != nil {
			b.WriteString(" on " + m.DispatchedOn.Format("2 January 2006"))
		}
		b.WriteString("<br />\n")
	}
	if m.DispatchTicket != "" {
		b.WriteString("Tracking number: " + html.EscapeString(m.DispatchTicket) + "<br />\n")
	}
	url := m.DispatchURI
	if url == "" {
		url = cat.TrackingURL(m.DispatchedBy)
	}
	if url != "" {
		u := html.EscapeString(url)
		b.WriteString(`Track your parcel at <a href="` + u + `">` + u + `</a>`)
	}
	b.WriteString("</p>")
	return b.String()
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

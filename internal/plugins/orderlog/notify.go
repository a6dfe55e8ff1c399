package orderlog

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/keyxmakerx/orderhistory/internal/sanitize"
)

// Mailer sends one email. Implementations own the transport; the body is
// HTML.
type Mailer interface {
	SendMail(ctx context.Context, to, from, subject, body string) error
}

// Envelope is a fully resolved email, ready to send.
type Envelope struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Placeholders understood in subjects and bodies.
const (
	PlaceholderReference       = "$Order.Reference"
	PlaceholderShippingAddress = "$Order.ShippingAddress"
	PlaceholderBillingAddress  = "$Order.BillingAddress"
	PlaceholderCustomerName    = "$Order.Customer.Name"
	PlaceholderTotal           = "$Order.Total"
	PlaceholderItemCount       = "$Order.Items.count"
)

// guestName stands in for the customer name on guest orders.
const guestName = "Guest"

// Notifier composes and sends the email attached to a log entry.
type Notifier struct {
	mailer Mailer
	cfg    Config
}

// NewNotifier creates a notifier sending through mailer.
func NewNotifier(mailer Mailer, cfg Config) *Notifier {
	return &Notifier{mailer: mailer, cfg: cfg.withDefaults()}
}

// Compose resolves the envelope for entry. Explicit Send_* fields win;
// anything unset falls back to values derived from the order.
func (n *Notifier) Compose(entry *LogEntry, order Order) (Envelope, error) {
	env := Envelope{
		To:   strings.TrimSpace(entry.SendTo),
		From: strings.TrimSpace(entry.SendFrom),
	}

	if env.To == "" {
		email := strings.TrimSpace(order.LatestEmail())
		if email == "" {
			return Envelope{}, fmt.Errorf("%w: order %d has no contact email", ErrNotificationFailed, order.ID())
		}
		if name := strings.TrimSpace(order.CustomerName()); name != "" {
			env.To = name + " <" + email + ">"
		} else {
			env.To = email
		}
	}

	if env.From == "" {
		env.From = n.cfg.ReceiptEmail
		if env.From == "" {
			env.From = n.cfg.AdminEmail
		}
	}

	subject := entry.SendSubject
	if strings.TrimSpace(subject) == "" {
		subject = n.cfg.SubjectTemplate
	}
	env.Subject = headerSafe(placeholders(order, false).Replace(subject))

	body := entry.SendBody
	if strings.TrimSpace(body) == "" {
		body = sanitize.BBCode(entry.Note)
	}
	body = placeholders(order, true).Replace(body)
	if !entry.SendHideOrder {
		body += orderSummary(order)
	}
	env.Body = sanitize.HTML(body)

	return env, nil
}

// Notify sends the entry's email if one is requested and none went out
// yet. On success it stamps Sent and snapshots the envelope onto the
// entry; on failure the entry is left untouched.
func (n *Notifier) Notify(ctx context.Context, entry *LogEntry, order Order) error {
	if !entry.AwaitingSend() {
		return nil
	}

	env, err := n.Compose(entry, order)
	if err != nil {
		return err
	}

	if err := n.mailer.SendMail(ctx, env.To, env.From, env.Subject, env.Body); err != nil {
		return fmt.Errorf("%w: %w", ErrNotificationFailed, err)
	}

	sent := n.cfg.now()
	entry.Sent = &sent
	entry.SendTo = env.To
	entry.SendFrom = env.From
	entry.SendSubject = env.Subject
	entry.SendBody = env.Body
	return nil
}

// placeholders builds the substitution table for an order. Longer keys come
// first so "$Order.ShippingAddress.Title" is not cut short by its prefix.
// Values going into HTML bodies are escaped.
func placeholders(order Order, escape bool) *strings.Replacer {
	esc := func(s string) string { return s }
	if escape {
		esc = html.EscapeString
	}

	customer := guestName
	if m := order.Member(); !isNil(m) && strings.TrimSpace(m.Name()) != "" {
		customer = m.Name()
	} else if name := strings.TrimSpace(order.CustomerName()); name != "" {
		customer = name
	}

	shipping := addressString(order.ShippingAddress())
	billing := addressString(order.BillingAddress())

	return strings.NewReplacer(
		PlaceholderShippingAddress+".Title", esc(shipping),
		PlaceholderBillingAddress+".Title", esc(billing),
		PlaceholderShippingAddress, esc(shipping),
		PlaceholderBillingAddress, esc(billing),
		PlaceholderCustomerName, esc(customer),
		PlaceholderReference, esc(order.Reference()),
		PlaceholderTotal, esc(order.Total()),
		PlaceholderItemCount, strconv.Itoa(len(order.Items())),
	)
}

func addressString(a Address) string {
	if isNil(a) {
		return ""
	}
	return a.String()
}

// orderSummary is the footer appended to bodies unless the entry hides the
// order.
func orderSummary(order Order) string {
	return fmt.Sprintf(`<p class="order-summary">Order %s: %d item(s), total %s</p>`,
		html.EscapeString(order.Reference()), len(order.Items()), html.EscapeString(order.Total()))
}

// headerSafe removes line breaks so a subject cannot inject headers.
func headerSafe(s string) string {
	return strings.Join(strings.Fields(strings.NewReplacer("\r", " ", "\n", " ").Replace(s)), " ")
}

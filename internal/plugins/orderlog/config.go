package orderlog

import (
	"slices"
	"time"
)

// DefaultMaxRecordsPerOrder caps the number of generic "Updated" entries
// kept per order.
const DefaultMaxRecordsPerOrder = 50

// DefaultSubjectTemplate is the email subject used when an entry does not
// set one.
const DefaultSubjectTemplate = "Web Order - $Order.Reference"

// Order statuses that route a status change to the cancel event.
const (
	OrderStatusMemberCancelled = "MemberCancelled"
	OrderStatusAdminCancelled  = "AdminCancelled"
)

// Config holds everything the compiler, store and notifier need. It is
// built once at startup and passed in at construction.
type Config struct {
	Catalog *Catalog

	// MaxRecordsPerOrder is the cap on automated generic entries per order.
	MaxRecordsPerOrder int

	// IgnoredEvents do not produce an entry unless the order's status changed
	// or the write is forced.
	IgnoredEvents []Event

	// ReceiptEmail is the default sender; AdminEmail is the fallback.
	ReceiptEmail string
	AdminEmail   string

	SubjectTemplate string

	// CancelledStatuses are order statuses that mean the order was cancelled.
	CancelledStatuses []string

	// Now is the clock. Tests replace it.
	Now func() time.Time
}

// DefaultConfig returns a Config with the built-in catalog and limits.
func DefaultConfig() Config {
	return Config{
		Catalog:            DefaultCatalog(),
		MaxRecordsPerOrder: DefaultMaxRecordsPerOrder,
		SubjectTemplate:    DefaultSubjectTemplate,
		CancelledStatuses:  []string{OrderStatusMemberCancelled, OrderStatusAdminCancelled},
		Now:                time.Now,
	}
}

// withDefaults fills zero values so a partially built Config is usable.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Catalog == nil {
		c.Catalog = d.Catalog
	}
	if c.MaxRecordsPerOrder < 1 {
		c.MaxRecordsPerOrder = d.MaxRecordsPerOrder
	}
	if c.SubjectTemplate == "" {
		c.SubjectTemplate = d.SubjectTemplate
	}
	if c.CancelledStatuses == nil {
		c.CancelledStatuses = d.CancelledStatuses
	}
	if c.Now == nil {
		c.Now = d.Now
	}
	return c
}

// IsIgnored reports whether ev is in the ignored-events set.
func (c Config) IsIgnored(ev Event) bool {
	return slices.Contains(c.IgnoredEvents, ev)
}

// now returns the current time truncated to the second, matching the
// precision of the DATETIME columns.
func (c Config) now() time.Time {
	return c.Now().UTC().Truncate(time.Second)
}

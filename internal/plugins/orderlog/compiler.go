package orderlog

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
)

// Well-known change log keys.
const (
	KeyStatus          = "Status"
	KeyOrderItem       = "OrderItem"
	KeyQuantity        = "Quantity"
	KeyShippingAddress = "ShippingAddress"
	KeyBillingAddress  = "BillingAddress"
	KeyMember          = "Member"
	KeyMemberID        = "MemberID"
	KeyReferrer        = "Referrer"
	KeyMethod          = "Method"

	// KeyBrandNew marks the diff of an object that did not exist before.
	KeyBrandNew = "_brandnew"

	// KeyLabel carries the display name of a nested object.
	KeyLabel = "_label"
)

// Compiler turns an order mutation into an automated log entry.
type Compiler struct {
	cfg Config
}

// NewCompiler creates a compiler with the given configuration.
func NewCompiler(cfg Config) *Compiler {
	return &Compiler{cfg: cfg.withDefaults()}
}

// Compile builds the automated entry for ev. It reads the order's own diff
// and folds in the auxiliary objects: diffable ones contribute their diff
// when they have one, anything else is stored as is.
//
// It returns ErrCompilationSkipped when nothing warrants an entry.
func (c *Compiler) Compile(order Order, ev Event, aux map[string]any, force bool) (*LogEntry, error) {
	if order == nil {
		return nil, fmt.Errorf("compiling %s: nil order", ev)
	}

	changes := order.ChangedFields().Clone()
	_, statusChanged := changes[KeyStatus]

	if !statusChanged && c.cfg.IsIgnored(ev) && !force {
		return nil, ErrCompilationSkipped
	}

	entry := &LogEntry{
		OrderID:   order.ID(),
		Automated: true,
		Unread:    true,
	}
	entry.AssignStatus(c.cfg.Catalog, ev)

	for _, key := range slices.Sorted(maps.Keys(aux)) {
		if change, ok := auxChange(aux[key]); ok {
			changes[key] = change
		}
	}

	if len(changes) == 0 && !force {
		entry.Discard()
		return nil, ErrCompilationSkipped
	}

	if len(changes) > 0 {
		entry.ChangeLog = changes
	}
	return entry, nil
}

// auxChange converts one auxiliary value into a change. ok is false when the
// value contributes nothing.
func auxChange(v any) (Change, bool) {
	if isNil(v) {
		return Change{}, false
	}

	if c, ok := v.(Change); ok {
		return c, true
	}

	d, ok := v.(Diffable)
	if !ok {
		if s, ok := v.(fmt.Stringer); ok {
			return Raw(s.String()), true
		}
		return Raw(v), true
	}

	fields := d.ChangedFields()
	if len(fields) == 0 {
		return Change{}, false
	}
	fields = fields.Clone()
	if label := labelOf(v); label != "" {
		if _, exists := fields[KeyLabel]; !exists {
			fields[KeyLabel] = Raw(label)
		}
	}
	return Nested(fields), true
}

// labelOf returns the display name of a known collaborator type.
func labelOf(v any) string {
	switch o := v.(type) {
	case Item:
		return o.Title()
	case Member:
		return o.Name()
	case Address:
		return o.String()
	}
	return ""
}

// isNil reports whether v is nil or an interface holding a nil pointer.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func:
		return rv.IsNil()
	}
	return false
}

// ClassifyStatusChange returns the event a status change on the order
// itself should fire: cancel for cancellation statuses, status-change for
// anything else. ok is false when the diff has no status change.
func (c *Compiler) ClassifyStatusChange(changes ChangeLog) (ev Event, ok bool) {
	change, exists := changes[KeyStatus]
	if !exists {
		return "", false
	}

	after, _ := change.After.(string)
	if slices.Contains(c.cfg.CancelledStatuses, after) {
		return EventCancel, true
	}
	return EventStatusChange, true
}

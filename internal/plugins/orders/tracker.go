package orders

import (
	"reflect"

	"github.com/keyxmakerx/orderhistory/internal/plugins/orderlog"
)

// tracker records field changes since an object was loaded. A field set
// back to its loaded value stops counting as changed.
type tracker struct {
	original map[string]any
	changes  orderlog.ChangeLog
	brandNew bool
}

// set records that field moved from before to after.
func (t *tracker) set(field string, before, after any) {
	if t.changes == nil {
		t.changes = orderlog.ChangeLog{}
	}
	if t.original == nil {
		t.original = map[string]any{}
	}
	if _, seen := t.original[field]; !seen {
		t.original[field] = before
	}

	orig := t.original[field]
	if reflect.DeepEqual(orig, after) {
		delete(t.changes, field)
		return
	}
	t.changes[field] = orderlog.Scalar(orig, after)
}

// changed reports whether field differs from its loaded value.
func (t *tracker) changed(field string) bool {
	_, ok := t.changes[field]
	return ok
}

// ChangedFields returns the recorded changes. Objects created since load
// carry a brand-new marker.
func (t *tracker) ChangedFields() orderlog.ChangeLog {
	out := t.changes.Clone()
	if t.brandNew {
		out[orderlog.KeyBrandNew] = orderlog.Raw(true)
	}
	return out
}

// Clean forgets all changes, as after a successful save.
func (t *tracker) Clean() {
	t.original = nil
	t.changes = nil
	t.brandNew = false
}

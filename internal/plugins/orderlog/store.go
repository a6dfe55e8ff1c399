package orderlog

import (
	"cmp"
	"slices"
)

// compareEntries orders entries by status priority, then newest first. IDs
// break ties between entries created in the same second.
func compareEntries(cat *Catalog) func(a, b *LogEntry) int {
	return func(a, b *LogEntry) int {
		if r := cmp.Compare(cat.Rank(a.Status), cat.Rank(b.Status)); r != 0 {
			return r
		}
		if r := b.CreatedAt.Compare(a.CreatedAt); r != 0 {
			return r
		}
		return cmp.Compare(b.ID, a.ID)
	}
}

// SortForDisplay returns a copy of entries ordered for display: by the
// catalog's priority table, ties broken by creation time descending.
func SortForDisplay(cat *Catalog, entries []*LogEntry) []*LogEntry {
	out := slices.Clone(entries)
	slices.SortStableFunc(out, compareEntries(cat))
	return out
}

// ResolveState returns the status that represents the order's state: the
// top-ranked entry among those allowed to carry state. When none qualify
// it returns fallback, the order's own status field.
func ResolveState(cat *Catalog, entries []*LogEntry, fallback string) string {
	var best *LogEntry
	less := compareEntries(cat)
	for _, e := range entries {
		if !cat.IsStateStatus(e.Status) {
			continue
		}
		if best == nil || less(e, best) < 0 {
			best = e
		}
	}
	if best == nil {
		return fallback
	}
	return best.Status
}

// evictionCount returns how many of the existing generic entries must go so
// that, once one more is inserted, at most limit remain.
func evictionCount(existing, limit int) int {
	if n := existing - (limit - 1); n > 0 {
		return n
	}
	return 0
}

// checkExclusive rejects entry when its status is exclusive and already on
// the order's log.
func checkExclusive(cat *Catalog, entry *LogEntry, alreadyPresent bool) error {
	if cat.IsExclusive(entry.Status) && alreadyPresent {
		return ErrInvalidStatusTransition
	}
	return nil
}

// filterPublic keeps only customer-visible entries.
func filterPublic(entries []*LogEntry) []*LogEntry {
	out := make([]*LogEntry, 0, len(entries))
	for _, e := range entries {
		if e.Public {
			out = append(out, e)
		}
	}
	return out
}

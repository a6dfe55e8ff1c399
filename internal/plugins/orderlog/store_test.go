package orderlog

import (
	"testing"
	"time"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func entryAt(id int64, status string, offset time.Duration) *LogEntry {
	return &LogEntry{ID: id, OrderID: 42, Status: status, CreatedAt: base.Add(offset)}
}

func statuses(entries []*LogEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Status
	}
	return out
}

func TestSortForDisplay_Priority(t *testing.T) {
	cat := DefaultCatalog()
	entries := []*LogEntry{
		entryAt(1, StatusStarted, 0),
		entryAt(2, StatusPlaced, time.Minute),
		entryAt(3, StatusPaid, 2*time.Minute),
		entryAt(4, GenericStatus, 3*time.Minute),
		entryAt(5, StatusShipped, 4*time.Minute),
		entryAt(6, StatusCompleted, 5*time.Minute),
	}

	got := statuses(SortForDisplay(cat, entries))
	want := []string{StatusCompleted, StatusPaid, StatusPlaced, GenericStatus, StatusStarted, StatusShipped}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: expected %s, got %s (full: %v)", i, want[i], got[i], got)
		}
	}

	// The input slice keeps its order.
	if entries[0].ID != 1 {
		t.Error("SortForDisplay reordered its input")
	}
}

func TestSortForDisplay_TiesNewestFirst(t *testing.T) {
	cat := DefaultCatalog()
	entries := []*LogEntry{
		entryAt(1, GenericStatus, 0),
		entryAt(2, GenericStatus, time.Minute),
		entryAt(3, GenericStatus, time.Minute),
	}

	got := SortForDisplay(cat, entries)
	if got[0].ID != 3 || got[1].ID != 2 || got[2].ID != 1 {
		t.Errorf("expected IDs 3,2,1, got %d,%d,%d", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestResolveState(t *testing.T) {
	cat := DefaultCatalog()

	tests := []struct {
		name     string
		entries  []*LogEntry
		fallback string
		want     string
	}{
		{"empty uses fallback", nil, "Unpaid", "Unpaid"},
		{
			"paid outranks placed",
			[]*LogEntry{entryAt(1, StatusPlaced, 0), entryAt(2, StatusPaid, time.Minute)},
			"Unpaid", StatusPaid,
		},
		{
			"completed outranks later paid",
			[]*LogEntry{entryAt(1, StatusCompleted, 0), entryAt(2, StatusPaid, time.Hour)},
			"", StatusCompleted,
		},
		{
			"notified never carries state",
			[]*LogEntry{entryAt(1, StatusNotified, 0), entryAt(2, StatusPrintedByCustomer, 0)},
			"Unpaid", "Unpaid",
		},
		{
			"generic updates are not state",
			[]*LogEntry{entryAt(1, GenericStatus, time.Hour), entryAt(2, StatusStarted, 0)},
			"", StatusStarted,
		},
		{
			"unranked status beats nothing",
			[]*LogEntry{entryAt(1, StatusShipped, 0)},
			"Unpaid", StatusShipped,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveState(cat, tt.entries, tt.fallback); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestEvictionCount(t *testing.T) {
	tests := []struct {
		existing, limit, want int
	}{
		{0, 50, 0},
		{48, 50, 0},
		{49, 50, 0},
		{50, 50, 1},
		{55, 50, 6},
		{0, 1, 0},
		{3, 1, 3},
	}
	for _, tt := range tests {
		if got := evictionCount(tt.existing, tt.limit); got != tt.want {
			t.Errorf("evictionCount(%d, %d) = %d, want %d", tt.existing, tt.limit, got, tt.want)
		}
	}
}

func TestCatalog_Lookups(t *testing.T) {
	cat := DefaultCatalog()

	if !cat.IsReserved(StatusCompleted) || cat.IsReserved(StatusShipped) {
		t.Error("unexpected reserved statuses")
	}
	if !cat.IsExclusive(StatusShipped) || cat.IsExclusive(StatusPaid) {
		t.Error("unexpected exclusive statuses")
	}
	if cat.IsStateStatus(StatusNotified) || !cat.IsStateStatus(StatusPaid) {
		t.Error("unexpected state statuses")
	}
	if got := cat.StatusForEvent(EventItemAdded); got != GenericStatus {
		t.Errorf("expected unmapped event to get %s, got %s", GenericStatus, got)
	}
	if got := cat.StatusForEvent(EventRecover); got != StatusRestarted {
		t.Errorf("expected %s, got %s", StatusRestarted, got)
	}
	if got := cat.Rank("Whatever"); got != len(cat.Priority) {
		t.Errorf("expected unranked status at %d, got %d", len(cat.Priority), got)
	}

	order := cat.PriorityOrder()
	order[0] = "Mutated"
	if cat.Priority[0] != StatusCompleted {
		t.Error("PriorityOrder exposed the catalog's slice")
	}
}

func TestCatalog_IconFor(t *testing.T) {
	cat := DefaultCatalog()

	if got := cat.IconFor("Unknown", ""); got != fallbackIcon {
		t.Errorf("expected fallback icon, got %s", got)
	}

	paid := cat.IconFor(StatusPaid, "Credit Card")
	want := `<i class="fa fa-money order-statusIcon--paid fa-cc-creditcard fa-creditcard"></i>`
	if paid != want {
		t.Errorf("expected %s, got %s", want, paid)
	}

	paypal := cat.IconFor(StatusPaid, "PayPal_Express")
	if paypal != `<i class="fa fa-money order-statusIcon--paid fa-paypal"></i>` {
		t.Errorf("unexpected paypal icon %s", paypal)
	}

	if got := cat.IconFor(StatusShipped, "Credit Card"); got != cat.Statuses[StatusShipped].Icon {
		t.Errorf("gateway must only decorate paid icons, got %s", got)
	}
}

func TestCatalog_TitleAndLabel(t *testing.T) {
	cat := DefaultCatalog()

	if got := cat.Title(StatusShipped); got != "Shipped" {
		t.Errorf("expected Shipped, got %s", got)
	}
	if got := cat.Title(StatusPrintedByCustomer); got != "Printed By Customer" {
		t.Errorf("expected derived label, got %s", got)
	}
	if got := Label("Send_To"); got != "Send To" {
		t.Errorf("expected Send To, got %s", got)
	}
	if got := Label("IPAddress"); got != "IPAddress" {
		t.Errorf("expected acronym kept, got %s", got)
	}
}

func TestCatalog_TrackingURL(t *testing.T) {
	cat := DefaultCatalog()

	if got := cat.TrackingURL(" australia post "); got != "http://auspost.com.au/track/track.html" {
		t.Errorf("unexpected tracking url %s", got)
	}
	if got := cat.TrackingURL("Pigeon"); got != "" {
		t.Errorf("expected no url for unknown carrier, got %s", got)
	}
}

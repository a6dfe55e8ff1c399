package orderlog

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDetails_ItemChanges(t *testing.T) {
	tests := []struct {
		name string
		log  ChangeLog
		want string
	}{
		{
			"added",
			ChangeLog{
				KeyOrderItem: Nested(ChangeLog{KeyBrandNew: Raw(true), KeyLabel: Raw("Widget")}),
				KeyQuantity:  Raw(3),
			},
			"Added 3 of Widget",
		},
		{
			"quantity",
			ChangeLog{
				KeyOrderItem: Nested(ChangeLog{"Quantity": Scalar(1, 4), KeyLabel: Raw("Widget")}),
				KeyQuantity:  Raw(4),
			},
			"Set Widget to 4",
		},
		{
			"removed",
			ChangeLog{
				KeyOrderItem: Nested(ChangeLog{"Quantity": Scalar(2, 0), KeyLabel: Raw("Widget")}),
				KeyQuantity:  Raw(0),
			},
			"Removed Widget",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Details(&LogEntry{Status: GenericStatus, ChangeLog: tt.log})
			if len(got) != 1 || got[0] != tt.want {
				t.Errorf("expected [%s], got %v", tt.want, got)
			}
		})
	}
}

func TestDetails_AfterJSONRoundTrip(t *testing.T) {
	in := ChangeLog{
		KeyOrderItem: Nested(ChangeLog{KeyBrandNew: Raw(true), KeyLabel: Raw("Widget")}),
		KeyQuantity:  Raw(2),
	}
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out ChangeLog
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got := Details(&LogEntry{Status: GenericStatus, ChangeLog: out})
	if len(got) != 1 || got[0] != "Added 2 of Widget" {
		t.Errorf("expected [Added 2 of Widget], got %v", got)
	}
}

func TestDetails_AddressesMemberAndFields(t *testing.T) {
	sent := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	e := &LogEntry{
		Status: GenericStatus,
		Note:   "Customer called",
		ChangeLog: ChangeLog{
			KeyShippingAddress: Nested(ChangeLog{"City": Scalar("A", "B"), KeyLabel: Raw("1 Main St, B")}),
			KeyBillingAddress:  Nested(ChangeLog{KeyLabel: Raw("9 High St")}),
			KeyMember:          Nested(ChangeLog{KeyLabel: Raw("Jane Doe")}),
			"Notes":            Scalar("", "Leave at door"),
			"Referrer":         Raw("https://ads.example"),
			"Ignored":          Scalar("a", "b"),
		},
		Sent:     &sent,
		AuthorID: "staff-1",
	}

	want := []string{
		"Customer called",
		"Ship to: 1 Main St, B",
		"Bill to: 9 High St",
		"Member: Jane Doe",
		"Notes changed from none to Leave at door",
		"Referrer: https://ads.example",
		"Notified customer on: 2026-03-01 10:30:00",
		"Author: staff-1",
	}
	got := Details(e)
	if len(got) != len(want) {
		t.Fatalf("expected %d details, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("detail %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestDetails_NonGenericSkipsChanges(t *testing.T) {
	got := Details(&LogEntry{
		Status:    StatusPaid,
		ChangeLog: ChangeLog{"Notes": Scalar("", "x")},
	})
	if len(got) != 0 {
		t.Errorf("expected no details, got %v", got)
	}
}

func TestDecorate(t *testing.T) {
	cat := DefaultCatalog()
	e := &LogEntry{ID: 3, Status: StatusShipped, DispatchedBy: "TNT Express", Note: "Left depot"}

	d := Decorate(cat, e, "")
	if d.Label != "Shipped" {
		t.Errorf("expected label Shipped, got %s", d.Label)
	}
	if d.Icon != cat.Statuses[StatusShipped].Icon {
		t.Errorf("unexpected icon %s", d.Icon)
	}
	if d.TrackingURL == "" {
		t.Error("expected carrier tracking URL")
	}
	if len(d.Details) != 1 || d.Details[0] != "Left depot" {
		t.Errorf("unexpected details %v", d.Details)
	}
	if d.ID != 3 {
		t.Errorf("expected embedded entry, got ID %d", d.ID)
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{float64(3), "3"},
		{2.5, "2.5"},
		{true, "true"},
		{7, "7"},
	}
	for _, tt := range tests {
		if got := formatValue(tt.in); got != tt.want {
			t.Errorf("formatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

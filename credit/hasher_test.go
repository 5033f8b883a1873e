package credit

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCanonicalHash_MapOrderIndependent(t *testing.T) {
	a := map[string]interface{}{"x": 1, "y": "two", "z": []int{1, 2, 3}}
	b := map[string]interface{}{"z": []int{1, 2, 3}, "y": "two", "x": 1}

	ha, err := CanonicalHash(a)
	if err != nil {
		t.Fatal(err)
	}
	hb, err := CanonicalHash(b)
	if err != nil {
		t.Fatal(err)
	}
	if ha != hb {
		t.Fatalf("hashes differ for equivalent maps: %s vs %s", ha, hb)
	}
}

func TestCanonicalHash_DetectsChange(t *testing.T) {
	rent := decimal.RequireFromString("1800")
	due := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	p1 := CreditPeriod{Period: "2024-03", RentAmount: &rent, DueDate: &due, AmountPaid: decimal.RequireFromString("1800"), Status: PeriodStatusOnTime}
	p2 := p1
	p2.AmountPaid = decimal.RequireFromString("900")
	p2.Status = PeriodStatusPartial

	h1, err := CanonicalHash(p1)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := CanonicalHash(p2)
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Fatal("hash did not change when the underlying data changed")
	}
}

func TestCanonicalHash_StableAcrossCalls(t *testing.T) {
	rent := decimal.RequireFromString("1234.50")
	p := CreditPeriod{Period: "2024-01", RentAmount: &rent, AmountPaid: decimal.Zero, Status: PeriodStatusUnpaid}

	first, err := CanonicalHash(p)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 50; i++ {
		h, err := CanonicalHash(p)
		if err != nil {
			t.Fatal(err)
		}
		if h != first {
			t.Fatalf("run %d: hash drifted: %s vs %s", i, h, first)
		}
	}
}

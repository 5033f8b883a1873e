package credit

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func intPtr(i int) *int { return &i }

func TestDeriveForPeriod_StatusTable(t *testing.T) {
	rent := decPtr("1800")
	due := datePtr(2024, time.March, 1)

	cases := []struct {
		name     string
		charge   *Charge
		payments []Payment
		want     PeriodStatus
		wantDays *int
	}{
		{
			name: "paid three days after due is late_1_29",
			charge: &Charge{Id: 1, Period: "2024-03", Amount: rent, DueDate: due},
			payments: []Payment{
				{RentChargeId: intPtr(1), Amount: decimal.RequireFromString("1800"), PaidAt: datePtr(2024, time.March, 4)},
			},
			want:     PeriodStatusLate1_29,
			wantDays: intPtr(3),
		},
		{
			name: "paid before due is on_time",
			charge: &Charge{Id: 1, Period: "2024-03", Amount: rent, DueDate: due},
			payments: []Payment{
				{RentChargeId: intPtr(1), Amount: decimal.RequireFromString("1800"), PaidAt: datePtr(2024, time.February, 28)},
			},
			want:     PeriodStatusOnTime,
			wantDays: intPtr(-1),
		},
		{
			name: "paid exactly on due date is on_time",
			charge: &Charge{Id: 1, Period: "2024-03", Amount: rent, DueDate: due},
			payments: []Payment{
				{RentChargeId: intPtr(1), Amount: decimal.RequireFromString("1800"), PaidAt: datePtr(2024, time.March, 1)},
			},
			want:     PeriodStatusOnTime,
			wantDays: intPtr(0),
		},
		{
			name: "29 days late stays late_1_29",
			charge: &Charge{Id: 1, Period: "2024-03", Amount: rent, DueDate: due},
			payments: []Payment{
				{RentChargeId: intPtr(1), Amount: decimal.RequireFromString("1800"), PaidAt: datePtr(2024, time.March, 30)},
			},
			want:     PeriodStatusLate1_29,
			wantDays: intPtr(29),
		},
		{
			name: "30 days late rolls to late_30_59",
			charge: &Charge{Id: 1, Period: "2024-03", Amount: rent, DueDate: due},
			payments: []Payment{
				{RentChargeId: intPtr(1), Amount: decimal.RequireFromString("1800"), PaidAt: datePtr(2024, time.March, 31)},
			},
			want:     PeriodStatusLate30_59,
			wantDays: intPtr(30),
		},
		{
			name: "59 days late stays late_30_59",
			charge: &Charge{Id: 1, Period: "2024-03", Amount: rent, DueDate: due},
			payments: []Payment{
				{RentChargeId: intPtr(1), Amount: decimal.RequireFromString("1800"), PaidAt: datePtr(2024, time.April, 29)},
			},
			want:     PeriodStatusLate30_59,
			wantDays: intPtr(59),
		},
		{
			name: "60 days late rolls to late_60_plus",
			charge: &Charge{Id: 1, Period: "2024-03", Amount: rent, DueDate: due},
			payments: []Payment{
				{RentChargeId: intPtr(1), Amount: decimal.RequireFromString("1800"), PaidAt: datePtr(2024, time.April, 30)},
			},
			want:     PeriodStatusLate60Plus,
			wantDays: intPtr(60),
		},
		{
			name: "partial payment",
			charge: &Charge{Id: 1, Period: "2024-03", Amount: rent, DueDate: due},
			payments: []Payment{
				{RentChargeId: intPtr(1), Amount: decimal.RequireFromString("900"), PaidAt: datePtr(2024, time.March, 1)},
			},
			want: PeriodStatusPartial,
		},
		{
			name:   "no payments is unpaid",
			charge: &Charge{Id: 1, Period: "2024-03", Amount: rent, DueDate: due},
			want:   PeriodStatusUnpaid,
		},
		{
			name:   "charge without amount is no_data",
			charge: &Charge{Id: 1, Period: "2024-03", DueDate: due},
			want:   PeriodStatusNoData,
		},
		{
			name:   "charge without due date is no_data",
			charge: &Charge{Id: 1, Period: "2024-03", Amount: rent},
			want:   PeriodStatusNoData,
		},
		{
			name: "no matching charge is no_data",
			want: PeriodStatusNoData,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var charges []Charge
			if tc.charge != nil {
				charges = []Charge{*tc.charge}
			}
			got := DeriveForPeriod(charges, tc.payments, "2024-03")
			if got.Status != tc.want {
				t.Fatalf("status = %s, want %s", got.Status, tc.want)
			}
			if tc.wantDays != nil {
				if got.DaysLate == nil || *got.DaysLate != *tc.wantDays {
					t.Fatalf("daysLate = %v, want %d", got.DaysLate, *tc.wantDays)
				}
			}
		})
	}
}

func TestDeriveForPeriod_PaymentMatching(t *testing.T) {
	rent := decPtr("1000")
	charges := []Charge{
		{Id: 7, Period: "2024-05", Amount: rent, DueDate: datePtr(2024, time.May, 1)},
	}
	payments := []Payment{
		// Explicit linkage wins even when paid in a different month.
		{RentChargeId: intPtr(7), Amount: decimal.RequireFromString("400"), PaidAt: datePtr(2024, time.June, 2)},
		// Unlinked falls back to paid-at month.
		{Amount: decimal.RequireFromString("600"), PaidAt: datePtr(2024, time.May, 3)},
		// Linked to another charge: excluded.
		{RentChargeId: intPtr(99), Amount: decimal.RequireFromString("500"), PaidAt: datePtr(2024, time.May, 4)},
	}

	got := DeriveForPeriod(charges, payments, "2024-05")
	if !got.AmountPaid.Equal(decimal.RequireFromString("1000")) {
		t.Fatalf("amountPaid = %s, want 1000", got.AmountPaid)
	}
	// Earliest matching payment timestamp.
	if got.PaidAt == nil || !got.PaidAt.Equal(time.Date(2024, time.May, 3, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("paidAt = %v, want 2024-05-03", got.PaidAt)
	}
}

func TestDeriveForPeriod_DueDateMonthFallbackCharge(t *testing.T) {
	rent := decPtr("1500")
	charges := []Charge{
		{Id: 3, Amount: rent, DueDate: datePtr(2024, time.April, 1)},
	}
	got := DeriveForPeriod(charges, nil, "2024-04")
	if got.Status != PeriodStatusUnpaid {
		t.Fatalf("status = %s, want unpaid (fallback charge should match)", got.Status)
	}
	if got.RentAmount == nil || !got.RentAmount.Equal(*rent) {
		t.Fatalf("rentAmount = %v, want 1500", got.RentAmount)
	}
}

func TestDeriveCreditHistory_WindowAndOrder(t *testing.T) {
	now := time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)
	periods := DeriveCreditHistory(nil, nil, 3, now)

	if len(periods) != 3 {
		t.Fatalf("len = %d, want 3", len(periods))
	}
	want := []string{"2024-04", "2024-05", "2024-06"}
	for i, p := range periods {
		if p.Period != want[i] {
			t.Fatalf("periods[%d] = %s, want %s", i, p.Period, want[i])
		}
		if p.Status != PeriodStatusNoData {
			t.Fatalf("periods[%d].Status = %s, want no_data", i, p.Status)
		}
	}
}

func TestDeriveCreditHistory_YearBoundary(t *testing.T) {
	now := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)
	periods := DeriveCreditHistory(nil, nil, 2, now)
	if periods[0].Period != "2023-12" || periods[1].Period != "2024-01" {
		t.Fatalf("got %s, %s; want 2023-12, 2024-01", periods[0].Period, periods[1].Period)
	}
}

func TestStatusForDaysLate_BoundaryTable(t *testing.T) {
	cases := map[int]PeriodStatus{
		-5: PeriodStatusOnTime,
		0:  PeriodStatusOnTime,
		1:  PeriodStatusLate1_29,
		29: PeriodStatusLate1_29,
		30: PeriodStatusLate30_59,
		59: PeriodStatusLate30_59,
		60: PeriodStatusLate60Plus,
		90: PeriodStatusLate60Plus,
	}
	for days, want := range cases {
		if got := statusForDaysLate(days); got != want {
			t.Fatalf("statusForDaysLate(%d) = %s, want %s", days, got, want)
		}
	}
}

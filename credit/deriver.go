package credit

import (
	"time"

	"github.com/shopspring/decimal"
)

type PeriodStatus string

const (
	PeriodStatusOnTime     PeriodStatus = "on_time"
	PeriodStatusLate1_29   PeriodStatus = "late_1_29"
	PeriodStatusLate30_59  PeriodStatus = "late_30_59"
	PeriodStatusLate60Plus PeriodStatus = "late_60_plus"
	PeriodStatusPartial    PeriodStatus = "partial"
	PeriodStatusUnpaid     PeriodStatus = "unpaid"
	PeriodStatusNoData     PeriodStatus = "no_data"
)

const DefaultHistoryMonths = 24

// Charge and Payment are the deriver's view of the rent ledger. Conversion from
// the stored records happens at the call site so this package stays pure.
type Charge struct {
	Id      int
	Period  string
	Amount  *decimal.Decimal
	DueDate *time.Time
}

type Payment struct {
	RentChargeId *int
	Amount       decimal.Decimal
	PaidAt       *time.Time
}

// CreditPeriod is one calendar month of a tenant's rent obligation/payment.
// Status is a pure function of (RentAmount, DueDate, AmountPaid, PaidAt);
// no other period's state may influence it.
type CreditPeriod struct {
	Period     string           `json:"period"`
	RentAmount *decimal.Decimal `json:"rent_amount"`
	DueDate    *time.Time       `json:"due_date"`
	AmountPaid decimal.Decimal  `json:"amount_paid"`
	PaidAt     *time.Time       `json:"paid_at"`
	DaysLate   *int             `json:"days_late"`
	Status     PeriodStatus     `json:"status"`
}

// DeriveCreditHistory produces an ascending-chronological timeline for the most
// recent `months` calendar months ending at now's month.
func DeriveCreditHistory(charges []Charge, payments []Payment, months int, now time.Time) []CreditPeriod {
	if months <= 0 {
		months = DefaultHistoryMonths
	}
	now = now.UTC()
	periods := make([]CreditPeriod, 0, months)
	for i := months - 1; i >= 0; i-- {
		month := time.Date(now.Year(), now.Month()-time.Month(i), 1, 0, 0, 0, 0, time.UTC)
		periods = append(periods, DeriveForPeriod(charges, payments, month.Format("2006-01")))
	}
	return periods
}

// DeriveForPeriod derives the single month `period` (YYYY-MM). The worker uses
// this month-scoped form so re-derivation cannot drift on unrelated months.
func DeriveForPeriod(charges []Charge, payments []Payment, period string) CreditPeriod {
	charge := matchCharge(charges, period)

	cp := CreditPeriod{
		Period:     period,
		AmountPaid: decimal.Zero,
	}
	if charge != nil {
		cp.RentAmount = charge.Amount
		cp.DueDate = charge.DueDate
	}

	for _, p := range matchPayments(payments, charge, period) {
		cp.AmountPaid = cp.AmountPaid.Add(p.Amount)
		if p.PaidAt != nil && (cp.PaidAt == nil || p.PaidAt.Before(*cp.PaidAt)) {
			paidAt := *p.PaidAt
			cp.PaidAt = &paidAt
		}
	}

	cp.Status, cp.DaysLate = deriveStatus(charge, cp.AmountPaid, cp.PaidAt)
	return cp
}

// deriveStatus implements the decision order:
// no charge -> no_data; charge without amount or due date -> no_data;
// paid == 0 -> unpaid; partial; else bucket by days late.
func deriveStatus(charge *Charge, amountPaid decimal.Decimal, paidAt *time.Time) (PeriodStatus, *int) {
	if charge == nil {
		return PeriodStatusNoData, nil
	}
	if charge.Amount == nil || charge.DueDate == nil {
		return PeriodStatusNoData, nil
	}
	if amountPaid.IsZero() {
		return PeriodStatusUnpaid, nil
	}
	if amountPaid.LessThan(*charge.Amount) {
		return PeriodStatusPartial, nil
	}
	if paidAt == nil {
		// Paid in full but no usable timestamp; count it as on time.
		return PeriodStatusOnTime, nil
	}
	days := daysBetween(*charge.DueDate, *paidAt)
	return statusForDaysLate(days), &days
}

// statusForDaysLate is the explicit boundary table:
// <=0 on_time, 1..29, 30..59, >=60.
func statusForDaysLate(days int) PeriodStatus {
	switch {
	case days <= 0:
		return PeriodStatusOnTime
	case days <= 29:
		return PeriodStatusLate1_29
	case days <= 59:
		return PeriodStatusLate30_59
	default:
		return PeriodStatusLate60Plus
	}
}

// daysBetween is floor((paidAt - dueDate) in days) on UTC-normalized dates.
func daysBetween(dueDate, paidAt time.Time) int {
	due := time.Date(dueDate.UTC().Year(), dueDate.UTC().Month(), dueDate.UTC().Day(), 0, 0, 0, 0, time.UTC)
	paid := time.Date(paidAt.UTC().Year(), paidAt.UTC().Month(), paidAt.UTC().Day(), 0, 0, 0, 0, time.UTC)
	return int(paid.Sub(due).Hours() / 24)
}

// matchCharge prefers the charge whose explicit period matches, falling back to
// a due date inside the month.
func matchCharge(charges []Charge, period string) *Charge {
	for i := range charges {
		if charges[i].Period == period {
			return &charges[i]
		}
	}
	for i := range charges {
		if charges[i].Period == "" && charges[i].DueDate != nil &&
			charges[i].DueDate.UTC().Format("2006-01") == period {
			return &charges[i]
		}
	}
	return nil
}

// matchPayments prefers explicit charge linkage; unlinked payments fall back to
// a paid-at month match against the charge's month.
func matchPayments(payments []Payment, charge *Charge, period string) []Payment {
	if charge == nil {
		return nil
	}
	var matched []Payment
	for _, p := range payments {
		if p.RentChargeId != nil {
			if *p.RentChargeId == charge.Id {
				matched = append(matched, p)
			}
			continue
		}
		if p.PaidAt != nil && p.PaidAt.UTC().Format("2006-01") == period {
			matched = append(matched, p)
		}
	}
	return matched
}

package credit

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bureau status-code vocabulary. The numeric codes follow the bureau convention
// of naming delinquency buckets by the days-past-due band they roll into.
const (
	BureauCodeOK      = "OK"
	BureauCode30      = "30"
	BureauCode60      = "60"
	BureauCode90      = "90"
	BureauCodePartial = "PARTIAL"
	BureauCodeUnpaid  = "UNPAID"
	BureauCodeNoData  = "NO_DATA"
)

type BureauRecord struct {
	Period     string           `json:"period"`
	StatusCode string           `json:"status_code"`
	RentAmount *decimal.Decimal `json:"rent_amount"`
	AmountPaid decimal.Decimal  `json:"amount_paid"`
	DueDate    *time.Time       `json:"due_date"`
	PaidAt     *time.Time       `json:"paid_at"`
	DaysLate   *int             `json:"days_late"`
}

var bureauCodeByStatus = map[PeriodStatus]string{
	PeriodStatusOnTime:     BureauCodeOK,
	PeriodStatusLate1_29:   BureauCode30,
	PeriodStatusLate30_59:  BureauCode60,
	PeriodStatusLate60Plus: BureauCode90,
	PeriodStatusPartial:    BureauCodePartial,
	PeriodStatusUnpaid:     BureauCodeUnpaid,
	PeriodStatusNoData:     BureauCodeNoData,
}

// MapToBureauRecords is a pure one-to-one substitution of the internal status
// enum for the bureau vocabulary.
func MapToBureauRecords(periods []CreditPeriod) []BureauRecord {
	records := make([]BureauRecord, 0, len(periods))
	for _, p := range periods {
		code, ok := bureauCodeByStatus[p.Status]
		if !ok {
			code = BureauCodeNoData
		}
		records = append(records, BureauRecord{
			Period:     p.Period,
			StatusCode: code,
			RentAmount: p.RentAmount,
			AmountPaid: p.AmountPaid,
			DueDate:    p.DueDate,
			PaidAt:     p.PaidAt,
			DaysLate:   p.DaysLate,
		})
	}
	return records
}

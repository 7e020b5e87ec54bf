package market

import (
	"fmt"
	"time"
)

// Futures month codes, January through December.
var monthCodes = [13]string{"", "F", "G", "H", "J", "K", "M", "N", "Q", "U", "V", "X", "Z"}

// MonthCode returns the futures month letter for the given month.
func MonthCode(m time.Month) string {
	return monthCodes[int(m)]
}

// ContractSymbol renders the exchange symbol for a VX contract month,
// e.g. VXF17 for the January 2017 contract.
func ContractSymbol(year int, month time.Month) string {
	return fmt.Sprintf("VX%s%02d", MonthCode(month), year%100)
}

// VXSettlement computes the final settlement date of the VX contract for the
// given month. Per the CBOE contract specification the final settlement date
// is the Wednesday 30 days prior to the third Friday of the calendar month
// following the contract month; if that Wednesday or that Friday is a
// holiday, settlement moves to the business day preceding the Wednesday.
func VXSettlement(year int, month time.Month) time.Time {
	next := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	thirdFriday := nthWeekday(next.Year(), next.Month(), time.Friday, 3)
	settle := thirdFriday.AddDate(0, 0, -30)
	if !IsBusinessDay(thirdFriday) || !IsBusinessDay(settle) {
		settle = PrevBusinessDay(settle)
	}
	return settle
}

// PriorVXSettlement returns the settlement date of the contract month
// preceding the given one.
func PriorVXSettlement(year int, month time.Month) time.Time {
	prev := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	return VXSettlement(prev.Year(), prev.Month())
}

// LastSettledDay returns the most recent trading day on or before now, i.e.
// the last day for which daily settlement values can exist.
func LastSettledDay(now time.Time) time.Time {
	d := Normalize(now)
	if IsBusinessDay(d) {
		return d
	}
	return PrevBusinessDay(d)
}

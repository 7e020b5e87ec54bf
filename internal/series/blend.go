package series

import (
	"time"

	"github.com/shopspring/decimal"

	"vx-continuous/internal/contract"
	"vx-continuous/internal/market"
	"vx-continuous/internal/roll"
)

// BlendPoint is one day of the 30-day constant-maturity blend of the front
// and second contracts.
type BlendPoint struct {
	Date        time.Time
	Value       decimal.Decimal
	FrontWeight decimal.Decimal
	FrontSymbol string
}

// ConstantMaturity computes the short-term constant-maturity value for each
// trading day in [start, end]: a linear blend of the front and second
// contract settles, weighted by the fraction of the current roll period
// remaining. Days on which no second contract trades are skipped; the blend
// is a derived report, not part of the stitched series contract.
func ConstantMaturity(chain *contract.Chain, rolls []roll.Event, start, end time.Time) ([]BlendPoint, error) {
	contracts := chain.Contracts()
	one := decimal.NewFromInt(1)

	points := make([]BlendPoint, 0)
	seg := 0
	for _, day := range market.BusinessDays(start, end) {
		for seg < len(rolls) && !day.Before(rolls[seg].RollDate) {
			seg++
		}
		if seg+1 >= len(contracts) {
			break
		}
		front, second := contracts[seg], contracts[seg+1]

		frontPrice, okFront := front.PriceOn(day)
		secondPrice, okSecond := second.PriceOn(day)
		if !okFront || !okSecond {
			continue
		}

		// Roll period anchors on expirations, matching the exchange's
		// fixed settlement schedule.
		var priorExp time.Time
		if seg > 0 {
			priorExp = contracts[seg-1].Expiration()
		} else {
			exp := front.Expiration()
			priorExp = market.PriorVXSettlement(exp.Year(), exp.Month())
		}

		period := market.BusinessDaysBetween(priorExp, front.Expiration())
		if period <= 0 {
			continue
		}
		remaining := market.BusinessDaysBetween(day, front.Expiration()) - 1
		if remaining < 0 {
			remaining = 0
		}

		w1 := decimal.NewFromInt(int64(remaining)).Div(decimal.NewFromInt(int64(period)))
		w2 := one.Sub(w1)

		points = append(points, BlendPoint{
			Date:        day,
			Value:       w1.Mul(frontPrice).Add(w2.Mul(secondPrice)),
			FrontWeight: w1,
			FrontSymbol: front.Symbol(),
		})
	}

	return points, nil
}

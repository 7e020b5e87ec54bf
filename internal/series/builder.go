package series

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"vx-continuous/internal/contract"
	"vx-continuous/internal/market"
	"vx-continuous/internal/roll"
)

// Request names the inputs of one build. The chain is owned by the caller
// and only read here.
type Request struct {
	Chain      *contract.Chain
	Rolls      []roll.Event
	Adjustment roll.Adjustment
	RollPolicy string
	Start      time.Time
	End        time.Time
}

// Build stitches the chain into a ContinuousSeries covering every trading
// day in [Start, End].
//
// Authority: days strictly before a roll date are sourced from that roll's
// outgoing contract, days at or after from the incoming one. Adjustments
// compound backward: each emitted point applies the composition of every
// roll factor occurring after its date to the raw contract price, so earlier
// history lines up with the final segment and no previously derived value is
// ever mutated.
func Build(req Request) (*ContinuousSeries, error) {
	if req.Chain == nil {
		return nil, fmt.Errorf("series: chain is required")
	}
	start := market.Normalize(req.Start)
	end := market.Normalize(req.End)
	if start.After(end) {
		return nil, fmt.Errorf("series: start %s after end %s",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	contracts := req.Chain.Contracts()
	if len(req.Rolls) != len(contracts)-1 {
		return nil, fmt.Errorf("series: %d roll events for %d contracts", len(req.Rolls), len(contracts))
	}

	// The last contract must itself reach the end of the requested range.
	lastTrading := end
	if !market.IsBusinessDay(lastTrading) {
		lastTrading = market.PrevBusinessDay(lastTrading)
	}
	if !lastTrading.Before(start) && req.Chain.Back().LastDate().Before(lastTrading) {
		return nil, &UncoveredRangeError{
			From: market.NextBusinessDay(req.Chain.Back().LastDate()),
			To:   end,
		}
	}

	// Accumulated adjustment per segment, composed back to front: the final
	// segment is emitted raw, every earlier segment carries all factors of
	// the rolls that follow it.
	acc := make([]decimal.Decimal, len(contracts))
	acc[len(contracts)-1] = req.Adjustment.Identity()
	for i := len(req.Rolls) - 1; i >= 0; i-- {
		acc[i] = req.Adjustment.Compose(acc[i+1], req.Rolls[i].Factor)
	}

	days := market.BusinessDays(start, end)
	points := make([]Point, 0, len(days))
	seg := 0
	for _, day := range days {
		for seg < len(req.Rolls) && !day.Before(req.Rolls[seg].RollDate) {
			seg++
		}
		authority := contracts[seg]
		raw, ok := authority.PriceOn(day)
		if !ok {
			return nil, &GapError{Date: day, Symbol: authority.Symbol()}
		}
		points = append(points, Point{
			Date:   day,
			Price:  req.Adjustment.Apply(raw, acc[seg]),
			Symbol: authority.Symbol(),
		})
	}

	rolls := make([]roll.Event, len(req.Rolls))
	copy(rolls, req.Rolls)

	return &ContinuousSeries{
		Underlying: req.Chain.Underlying(),
		RollPolicy: req.RollPolicy,
		Adjustment: req.Adjustment,
		Start:      start,
		End:        end,
		Points:     points,
		Rolls:      rolls,
	}, nil
}

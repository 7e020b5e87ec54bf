package series

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"vx-continuous/internal/roll"
)

// Point is one day of the continuous series. Symbol records which contract
// authored the day, for traceability back to raw data.
type Point struct {
	Date   time.Time
	Price  decimal.Decimal
	Symbol string
}

// ContinuousSeries is the stitched, adjusted price series for one underlying
// over one date range. It is immutable once built; a request with different
// policies or refreshed source data produces a distinct instance.
type ContinuousSeries struct {
	Underlying string
	RollPolicy string
	Adjustment roll.Adjustment
	Start      time.Time
	End        time.Time
	Points     []Point
	Rolls      []roll.Event
}

// GapError indicates a trading day inside the requested range that the
// authoritative contract does not cover. Gaps are surfaced, never
// interpolated.
type GapError struct {
	Date   time.Time
	Symbol string
}

func (e *GapError) Error() string {
	return fmt.Sprintf("series: no observation for %s on trading day %s",
		e.Symbol, e.Date.Format("2006-01-02"))
}

// UncoveredRangeError indicates the requested range extends beyond the last
// contract's data.
type UncoveredRangeError struct {
	From time.Time
	To   time.Time
}

func (e *UncoveredRangeError) Error() string {
	return fmt.Sprintf("series: range tail %s..%s not covered by any contract",
		e.From.Format("2006-01-02"), e.To.Format("2006-01-02"))
}

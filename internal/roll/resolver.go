package roll

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"vx-continuous/internal/contract"
)

// Event records one switch of authority from an expiring contract to its
// successor. Factor is the pair-local adjustment at RollDate under the
// adjustment policy the schedule was resolved with; under AdjustNone it is
// zero and never applied. Events are immutable once resolved.
type Event struct {
	RollDate       time.Time
	OutgoingSymbol string
	IncomingSymbol string
	Factor         decimal.Decimal
}

// AmbiguousRollError indicates no valid roll day exists between two adjacent
// contracts under the active policy. The resolver never guesses an adjacent
// day instead.
type AmbiguousRollError struct {
	Outgoing string
	Incoming string
	Policy   string
	Reason   string
}

func (e *AmbiguousRollError) Error() string {
	return fmt.Sprintf("roll %s -> %s under policy %s: %s", e.Outgoing, e.Incoming, e.Policy, e.Reason)
}

// Resolve computes the ordered roll schedule for every adjacent pair in the
// chain. Each roll date must fall strictly inside the overlap of the pair's
// data ranges and must be observed in both contracts, so the adjustment
// factor can be taken from the same trading day on both sides.
func Resolve(chain *contract.Chain, policy Policy, adjust Adjustment) ([]Event, error) {
	contracts := chain.Contracts()
	events := make([]Event, 0, len(contracts)-1)

	var prevRoll time.Time
	for i := 0; i+1 < len(contracts); i++ {
		outgoing, incoming := contracts[i], contracts[i+1]

		date, err := policy.RollDate(outgoing, incoming)
		if err != nil {
			return nil, fmt.Errorf("resolve roll %s -> %s: %w", outgoing.Symbol(), incoming.Symbol(), err)
		}

		if !date.After(outgoing.FirstDate()) || !date.Before(incoming.LastDate()) {
			return nil, &AmbiguousRollError{
				Outgoing: outgoing.Symbol(),
				Incoming: incoming.Symbol(),
				Policy:   policy.String(),
				Reason:   fmt.Sprintf("roll date %s outside pair data overlap", date.Format("2006-01-02")),
			}
		}

		outPrice, outOK := outgoing.PriceOn(date)
		inPrice, inOK := incoming.PriceOn(date)
		if !outOK || !inOK {
			return nil, &AmbiguousRollError{
				Outgoing: outgoing.Symbol(),
				Incoming: incoming.Symbol(),
				Policy:   policy.String(),
				Reason:   fmt.Sprintf("no shared observation on roll date %s", date.Format("2006-01-02")),
			}
		}

		if i > 0 && !date.After(prevRoll) {
			return nil, &AmbiguousRollError{
				Outgoing: outgoing.Symbol(),
				Incoming: incoming.Symbol(),
				Policy:   policy.String(),
				Reason:   fmt.Sprintf("roll date %s not after previous roll %s", date.Format("2006-01-02"), prevRoll.Format("2006-01-02")),
			}
		}
		prevRoll = date

		var factor decimal.Decimal
		switch adjust {
		case AdjustRatio:
			if outPrice.IsZero() {
				return nil, &AmbiguousRollError{
					Outgoing: outgoing.Symbol(),
					Incoming: incoming.Symbol(),
					Policy:   policy.String(),
					Reason:   fmt.Sprintf("outgoing price is zero on %s, ratio undefined", date.Format("2006-01-02")),
				}
			}
			factor = inPrice.Div(outPrice)
		case AdjustDifference:
			factor = inPrice.Sub(outPrice)
		}

		events = append(events, Event{
			RollDate:       date,
			OutgoingSymbol: outgoing.Symbol(),
			IncomingSymbol: incoming.Symbol(),
			Factor:         factor,
		})
	}

	return events, nil
}

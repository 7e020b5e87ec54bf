package roll

import (
	"fmt"
	"time"

	"vx-continuous/internal/contract"
	"vx-continuous/internal/market"
)

// Policy computes the roll date for one adjacent contract pair.
type Policy interface {
	RollDate(outgoing, incoming *contract.Contract) (time.Time, error)
	String() string
}

// FixedOffset rolls a fixed number of trading days before the outgoing
// contract's last tradable day (the business day preceding expiration, since
// no observations exist on or after expiration itself).
type FixedOffset struct {
	Days int
}

// RollDate implements Policy.
func (p FixedOffset) RollDate(outgoing, _ *contract.Contract) (time.Time, error) {
	if p.Days < 0 {
		return time.Time{}, fmt.Errorf("fixed offset must not be negative, got %d", p.Days)
	}
	d := market.PrevBusinessDay(outgoing.Expiration())
	for i := 0; i < p.Days; i++ {
		d = market.PrevBusinessDay(d)
	}
	return d, nil
}

func (p FixedOffset) String() string {
	return fmt.Sprintf("fixed_offset(%d)", p.Days)
}

// VXSettlement rolls on the business day preceding the outgoing contract's
// computed VX final settlement date: the Wednesday 30 days prior to the third
// Friday of the following month, nudged back around holidays. VIX futures
// settle on this fixed schedule tied to SPX option expiration, so no
// volume-crossover heuristic is involved.
type VXSettlement struct{}

// RollDate implements Policy.
func (VXSettlement) RollDate(outgoing, _ *contract.Contract) (time.Time, error) {
	exp := outgoing.Expiration()
	settle := market.VXSettlement(exp.Year(), exp.Month())
	return market.PrevBusinessDay(settle), nil
}

func (VXSettlement) String() string { return "vx_settlement" }

// ParsePolicy resolves a roll policy name from configuration.
func ParsePolicy(name string, offsetDays int) (Policy, error) {
	switch name {
	case "fixed_offset":
		return FixedOffset{Days: offsetDays}, nil
	case "vx_settlement":
		return VXSettlement{}, nil
	}
	return nil, fmt.Errorf("unknown roll policy %q", name)
}

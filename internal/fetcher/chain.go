package fetcher

import (
	"context"
	"fmt"
	"time"

	"vx-continuous/internal/contract"
	"vx-continuous/internal/market"
)

// FetchChain assembles the contract chain whose data covers [start, end].
// It walks contract months forward from the one settling after start until
// one settles after end, then fetches one extra month so the second leg of
// the constant-maturity blend exists through the end of the range.
func FetchChain(ctx context.Context, f ContractFetcher, underlying string, start, end time.Time) (*contract.Chain, error) {
	start = market.Normalize(start)
	end = market.Normalize(end)
	if start.After(end) {
		return nil, fmt.Errorf("fetch chain: start %s after end %s",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	contracts := make([]*contract.Contract, 0, 16)
	monthCursor := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	extra := 1
	for {
		year, month := monthCursor.Year(), monthCursor.Month()
		settle := market.VXSettlement(year, month)

		if settle.After(start) {
			c, err := f.FetchContract(ctx, year, month)
			if err != nil {
				return nil, err
			}
			contracts = append(contracts, c)
		}

		if settle.After(end) {
			if extra == 0 {
				break
			}
			extra--
		}
		monthCursor = monthCursor.AddDate(0, 1, 0)
	}

	return contract.NewChain(underlying, contracts)
}

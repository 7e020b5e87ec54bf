package app

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"vx-continuous/internal/cache"
	"vx-continuous/internal/contract"
	"vx-continuous/internal/fetcher"
	"vx-continuous/internal/market"
	"vx-continuous/internal/roll"
	"vx-continuous/internal/series"
)

// Simulate 基于合成合约链执行一次构建，不访问网络与数据库。
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	if opts.Months < 2 {
		return fmt.Errorf("at least two contract months are required")
	}

	policy, err := a.Config.RollPolicy()
	if err != nil {
		return err
	}
	adjust, err := a.Config.Adjustment()
	if err != nil {
		return err
	}

	end := market.LastSettledDay(time.Now().UTC())
	start := market.Normalize(end.AddDate(0, -opts.Months+1, 0))

	synthetic := &syntheticFetcher{seed: opts.Seed}
	chain, err := fetcher.FetchChain(ctx, synthetic, a.Config.Build.Underlying, start, end)
	if err != nil {
		return err
	}
	if chain.Len() > 1 {
		chain, err = contract.NewChain(chain.Underlying(), chain.Contracts()[:chain.Len()-1])
		if err != nil {
			return err
		}
	}

	key := cache.KeyForChain(chain, policy, adjust, start, end)

	rolls, err := roll.Resolve(chain, policy, adjust)
	if err != nil {
		return err
	}

	ser, err := series.Build(series.Request{
		Chain:      chain,
		Rolls:      rolls,
		Adjustment: adjust,
		RollPolicy: policy.String(),
		Start:      start,
		End:        end,
	})
	if err != nil {
		return err
	}

	printSeriesSummary(ser, key.Fingerprint())
	a.Logger.Info().
		Int("contracts", chain.Len()).
		Int("points", len(ser.Points)).
		Msg("synthetic build complete")
	return nil
}

// syntheticFetcher generates deterministic walk-style contract histories so
// the full pipeline can run offline.
type syntheticFetcher struct {
	seed int64
}

func (f *syntheticFetcher) FetchContract(_ context.Context, year int, month time.Month) (*contract.Contract, error) {
	settle := market.VXSettlement(year, month)
	symbol := market.ContractSymbol(year, month)

	rng := rand.New(rand.NewSource(f.seed + int64(year)*100 + int64(month)))
	level := 16.0 + rng.Float64()*8.0

	first := market.Normalize(settle.AddDate(0, -7, 0))
	last := market.PrevBusinessDay(settle)

	days := market.BusinessDays(first, last)
	observations := make([]contract.Observation, 0, len(days))
	for i, day := range days {
		drift := math.Sin(float64(i)/9.0) * 1.5
		noise := (rng.Float64() - 0.5) * 0.4
		price := decimal.NewFromFloat(level + drift + noise).Round(3)
		observations = append(observations, contract.Observation{Date: day, Price: price})
	}

	return contract.NewContract(symbol, settle, observations)
}

var _ fetcher.ContractFetcher = (*syntheticFetcher)(nil)

package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"vx-continuous/internal/cache"
	"vx-continuous/internal/contract"
	"vx-continuous/internal/fetcher"
	"vx-continuous/internal/market"
	"vx-continuous/internal/roll"
	"vx-continuous/internal/series"
)

// Build performs a one-shot chain fetch and continuous-series build, then
// prints the roll schedule and range summary. Results are memoized through
// the cache manager and persisted when a database is configured.
func (a *App) Build(ctx context.Context, opts BuildOptions) error {
	end := market.LastSettledDay(time.Now().UTC())
	if opts.To != nil {
		end = market.Normalize(*opts.To)
	}
	start := end.AddDate(-a.Config.Build.LookbackYears, 0, 0)
	if opts.From != nil {
		start = market.Normalize(*opts.From)
	}
	if !start.Before(end) {
		return fmt.Errorf("from must be before to")
	}

	policy, err := a.Config.RollPolicy()
	if err != nil {
		return err
	}
	adjust, err := a.Config.Adjustment()
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	var seriesStore cache.SeriesStore
	if store != nil {
		seriesStore = store
	}
	manager := cache.NewManager(seriesStore, a.Logger)

	chain, err := fetcher.FetchChain(ctx, a.newFetcher(), a.Config.Build.Underlying, start, end)
	if err != nil {
		return err
	}

	// Drop the extra blend leg; its roll date lies beyond observed data.
	if chain.Len() > 1 {
		chain, err = contract.NewChain(chain.Underlying(), chain.Contracts()[:chain.Len()-1])
		if err != nil {
			return err
		}
	}

	key := cache.KeyForChain(chain, policy, adjust, start, end)
	fingerprint := key.Fingerprint()

	ser, err := manager.GetOrBuild(ctx, fingerprint, func(ctx context.Context) (*series.ContinuousSeries, error) {
		rolls, resolveErr := roll.Resolve(chain, policy, adjust)
		if resolveErr != nil {
			return nil, resolveErr
		}
		return series.Build(series.Request{
			Chain:      chain,
			Rolls:      rolls,
			Adjustment: adjust,
			RollPolicy: policy.String(),
			Start:      start,
			End:        end,
		})
	})
	if err != nil {
		return err
	}

	printSeriesSummary(ser, fingerprint)
	return nil
}

func printSeriesSummary(ser *series.ContinuousSeries, fingerprint string) {
	fmt.Fprintf(os.Stdout, "%s %s..%s  policy=%s adjustment=%s points=%d fingerprint=%.12s\n",
		ser.Underlying,
		ser.Start.Format("2006-01-02"),
		ser.End.Format("2006-01-02"),
		ser.RollPolicy,
		ser.Adjustment,
		len(ser.Points),
		fingerprint,
	)

	if len(ser.Rolls) == 0 {
		return
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Roll Date\tOutgoing\tIncoming\tFactor")
	for _, ev := range ser.Rolls {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n",
			ev.RollDate.Format("2006-01-02"),
			ev.OutgoingSymbol,
			ev.IncomingSymbol,
			ev.Factor.StringFixed(6),
		)
	}
	writer.Flush()
}

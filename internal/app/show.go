package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Show prints recent stored builds.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show builds")
	}
	if closeStore != nil {
		defer closeStore()
	}

	records, err := store.ListRecentBuilds(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no builds found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Built (UTC)\tUnderlying\tRange\tRoll Policy\tAdjustment\tPoints\tRolls\tFingerprint")

	for _, record := range records {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s..%s\t%s\t%s\t%d\t%d\t%.12s\n",
			record.BuiltAt.UTC().Format(time.RFC3339),
			record.Underlying,
			record.RangeStart.Format("2006-01-02"),
			record.RangeEnd.Format("2006-01-02"),
			record.RollPolicy,
			record.Adjustment,
			record.PointCount,
			record.RollCount,
			record.Fingerprint,
		)
	}

	writer.Flush()
	return nil
}

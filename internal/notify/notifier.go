package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Summary 封装一次重建完成后的播报内容。
type Summary struct {
	TradeDate        time.Time
	Underlying       string
	FrontSymbol      string
	ContinuousClose  decimal.Decimal
	ConstantMaturity decimal.Decimal
	NextRollDate     time.Time
	RollsApplied     int
	Fingerprint      string
}

// Notifier 定义播报输送接口。
type Notifier interface {
	Notify(ctx context.Context, summary Summary) error
}

func renderMessage(s Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s continuous futures %s\n", s.Underlying, s.TradeDate.Format("2006-01-02"))
	fmt.Fprintf(&b, "Close: %s (front %s)\n", s.ContinuousClose.StringFixed(3), s.FrontSymbol)
	if !s.ConstantMaturity.IsZero() {
		fmt.Fprintf(&b, "30d constant maturity: %s\n", s.ConstantMaturity.StringFixed(3))
	}
	if !s.NextRollDate.IsZero() {
		fmt.Fprintf(&b, "Next roll: %s\n", s.NextRollDate.Format("2006-01-02"))
	}
	fmt.Fprintf(&b, "Rolls applied: %d", s.RollsApplied)
	return b.String()
}

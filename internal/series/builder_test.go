package series

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"vx-continuous/internal/contract"
	"vx-continuous/internal/roll"
)

var tolerance = decimal.RequireFromString("0.000001")

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func mkContract(t *testing.T, symbol string, expiration time.Time, history [][2]string) *contract.Contract {
	t.Helper()
	observations := make([]contract.Observation, 0, len(history))
	for _, row := range history {
		date, err := time.Parse("2006-01-02", row[0])
		if err != nil {
			t.Fatal(err)
		}
		observations = append(observations, contract.Observation{Date: date, Price: decimal.RequireFromString(row[1])})
	}
	c, err := contract.NewContract(symbol, expiration, observations)
	if err != nil {
		t.Fatalf("构造合约 %s 失败: %v", symbol, err)
	}
	return c
}

// testChain spans the business days 2024-01-10..18 with a roll boundary at
// 2024-01-16 (settlement 2024-01-17, 2024-01-15 is a holiday).
func testChain(t *testing.T) *contract.Chain {
	t.Helper()
	jan := mkContract(t, "VXF24", day(2024, time.January, 17), [][2]string{
		{"2024-01-10", "19.8"},
		{"2024-01-11", "20.0"},
		{"2024-01-12", "20.2"},
		{"2024-01-16", "20.5"},
	})
	feb := mkContract(t, "VXG24", day(2024, time.February, 14), [][2]string{
		{"2024-01-10", "20.6"},
		{"2024-01-11", "20.8"},
		{"2024-01-12", "20.9"},
		{"2024-01-16", "21.0"},
		{"2024-01-17", "21.2"},
		{"2024-01-18", "21.1"},
	})
	chain, err := contract.NewChain("VX", []*contract.Contract{jan, feb})
	if err != nil {
		t.Fatal(err)
	}
	return chain
}

func testRolls(adjust roll.Adjustment) []roll.Event {
	var factor decimal.Decimal
	switch adjust {
	case roll.AdjustRatio:
		factor = decimal.RequireFromString("21.0").Div(decimal.RequireFromString("20.5"))
	case roll.AdjustDifference:
		factor = decimal.RequireFromString("0.5")
	}
	return []roll.Event{{
		RollDate:       day(2024, time.January, 16),
		OutgoingSymbol: "VXF24",
		IncomingSymbol: "VXG24",
		Factor:         factor,
	}}
}

func buildRequest(t *testing.T, adjust roll.Adjustment) Request {
	t.Helper()
	return Request{
		Chain:      testChain(t),
		Rolls:      testRolls(adjust),
		Adjustment: adjust,
		RollPolicy: "vx_settlement",
		Start:      day(2024, time.January, 10),
		End:        day(2024, time.January, 18),
	}
}

func approxEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(tolerance)
}

func TestBuildRatio(t *testing.T) {
	ser, err := Build(buildRequest(t, roll.AdjustRatio))
	if err != nil {
		t.Fatalf("Build 失败: %v", err)
	}
	if len(ser.Points) != 6 {
		t.Fatalf("期望 6 个点, 实际 %d", len(ser.Points))
	}

	// Pre-roll days scale by 21.0/20.5; e.g. the 20.0 close becomes ~20.4878.
	want := decimal.RequireFromString("20.0").Mul(decimal.RequireFromString("21.0")).Div(decimal.RequireFromString("20.5"))
	if !approxEqual(ser.Points[1].Price, want) {
		t.Fatalf("换月前价格期望 %s, 实际 %s", want, ser.Points[1].Price)
	}
	if ser.Points[1].Symbol != "VXF24" {
		t.Fatalf("换月前权威合约应为 VXF24, 实际 %s", ser.Points[1].Symbol)
	}

	// Days at and after the roll come from the incoming contract, unadjusted.
	if !ser.Points[3].Date.Equal(day(2024, time.January, 16)) {
		t.Fatalf("第 4 个点应为换月日, 实际 %s", ser.Points[3].Date.Format("2006-01-02"))
	}
	if ser.Points[3].Symbol != "VXG24" || !ser.Points[3].Price.Equal(decimal.RequireFromString("21.0")) {
		t.Fatalf("换月日应为 VXG24 的原始价 21.0, 实际 %s %s", ser.Points[3].Symbol, ser.Points[3].Price)
	}

	// Across the boundary the adjusted series carries the outgoing
	// contract's own return: both days are expressed in incoming units.
	wantRatio := decimal.RequireFromString("20.5").Div(decimal.RequireFromString("20.2"))
	adjRatio := ser.Points[3].Price.Div(ser.Points[2].Price)
	if !approxEqual(wantRatio, adjRatio) {
		t.Fatalf("换月边界应保持收益率: 期望 %s, 实际 %s", wantRatio, adjRatio)
	}
}

func TestBuildDifference(t *testing.T) {
	ser, err := Build(buildRequest(t, roll.AdjustDifference))
	if err != nil {
		t.Fatal(err)
	}

	// Pre-roll days shift by +0.5.
	if !ser.Points[1].Price.Equal(decimal.RequireFromString("20.5")) {
		t.Fatalf("换月前价格期望 20.5, 实际 %s", ser.Points[1].Price)
	}

	// Across the boundary the adjusted series carries the outgoing
	// contract's own point move.
	wantMove := decimal.RequireFromString("20.5").Sub(decimal.RequireFromString("20.2"))
	adjMove := ser.Points[3].Price.Sub(ser.Points[2].Price)
	if !adjMove.Equal(wantMove) {
		t.Fatalf("换月边界应保持点差: 期望 %s, 实际 %s", wantMove, adjMove)
	}
}

func TestBuildNone(t *testing.T) {
	ser, err := Build(buildRequest(t, roll.AdjustNone))
	if err != nil {
		t.Fatal(err)
	}

	// Raw concatenation: every point equals the authoring contract's close.
	raws := []string{"19.8", "20.0", "20.2", "21.0", "21.2", "21.1"}
	for i, want := range raws {
		if !ser.Points[i].Price.Equal(decimal.RequireFromString(want)) {
			t.Fatalf("第 %d 个点期望原始价 %s, 实际 %s", i, want, ser.Points[i].Price)
		}
	}
}

func TestBuildDatesStrictlyIncreasing(t *testing.T) {
	ser, err := Build(buildRequest(t, roll.AdjustRatio))
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(ser.Points); i++ {
		if !ser.Points[i].Date.After(ser.Points[i-1].Date) {
			t.Fatalf("日期应严格递增, 第 %d 个点为 %s", i, ser.Points[i].Date.Format("2006-01-02"))
		}
	}
}

func TestBuildIdempotent(t *testing.T) {
	first, err := Build(buildRequest(t, roll.AdjustRatio))
	if err != nil {
		t.Fatal(err)
	}
	second, err := Build(buildRequest(t, roll.AdjustRatio))
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Points) != len(second.Points) {
		t.Fatal("两次构建的点数应一致")
	}
	for i := range first.Points {
		if !first.Points[i].Price.Equal(second.Points[i].Price) {
			t.Fatalf("第 %d 个点两次构建不一致: %s vs %s", i, first.Points[i].Price, second.Points[i].Price)
		}
	}
}

func TestBuildGapError(t *testing.T) {
	jan := mkContract(t, "VXF24", day(2024, time.January, 17), [][2]string{
		{"2024-01-10", "19.8"},
		{"2024-01-12", "20.2"}, // no mark on the 11th
		{"2024-01-16", "20.5"},
	})
	feb := mkContract(t, "VXG24", day(2024, time.February, 14), [][2]string{
		{"2024-01-10", "20.6"},
		{"2024-01-16", "21.0"},
		{"2024-01-17", "21.2"},
		{"2024-01-18", "21.1"},
	})
	chain, err := contract.NewChain("VX", []*contract.Contract{jan, feb})
	if err != nil {
		t.Fatal(err)
	}

	_, err = Build(Request{
		Chain:      chain,
		Rolls:      testRolls(roll.AdjustNone),
		Adjustment: roll.AdjustNone,
		RollPolicy: "vx_settlement",
		Start:      day(2024, time.January, 10),
		End:        day(2024, time.January, 18),
	})
	var gap *GapError
	if !errors.As(err, &gap) {
		t.Fatalf("缺口应返回 GapError, 实际 %v", err)
	}
	if !gap.Date.Equal(day(2024, time.January, 11)) || gap.Symbol != "VXF24" {
		t.Fatalf("GapError 定位不正确: %v", gap)
	}
}

func TestBuildUncoveredRange(t *testing.T) {
	req := buildRequest(t, roll.AdjustRatio)
	req.End = day(2024, time.January, 22) // past the last contract's data
	_, err := Build(req)
	var uncovered *UncoveredRangeError
	if !errors.As(err, &uncovered) {
		t.Fatalf("超出覆盖范围应返回 UncoveredRangeError, 实际 %v", err)
	}
}

func TestBuildRollCountMismatch(t *testing.T) {
	req := buildRequest(t, roll.AdjustRatio)
	req.Rolls = nil
	if _, err := Build(req); err == nil {
		t.Fatal("换月事件数量与合约数不匹配时应报错")
	}
}

func TestConstantMaturity(t *testing.T) {
	chain := testChain(t)
	rolls := testRolls(roll.AdjustRatio)

	points, err := ConstantMaturity(chain, rolls, day(2024, time.January, 10), day(2024, time.January, 12))
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 3 {
		t.Fatalf("期望 3 个混合点, 实际 %d", len(points))
	}

	one := decimal.NewFromInt(1)
	for i, p := range points {
		if p.FrontWeight.LessThan(decimal.Zero) || p.FrontWeight.GreaterThan(one) {
			t.Fatalf("权重应在 [0,1] 内, 实际 %s", p.FrontWeight)
		}
		if i > 0 && p.FrontWeight.GreaterThan(points[i-1].FrontWeight) {
			t.Fatal("前月权重应随时间递减")
		}
		if p.FrontSymbol != "VXF24" {
			t.Fatalf("前月合约应为 VXF24, 实际 %s", p.FrontSymbol)
		}
	}

	// 2024-01-11: two trading days remain before settlement out of the
	// 17-day roll period anchored on the 2023-12-20 prior settlement.
	p := points[1]
	w1 := decimal.NewFromInt(2).Div(decimal.NewFromInt(17))
	want := w1.Mul(decimal.RequireFromString("20.0")).Add(one.Sub(w1).Mul(decimal.RequireFromString("20.8")))
	if !approxEqual(p.Value, want) {
		t.Fatalf("混合值期望 %s, 实际 %s", want, p.Value)
	}
	if !approxEqual(p.FrontWeight, w1) {
		t.Fatalf("前月权重期望 %s, 实际 %s", w1, p.FrontWeight)
	}
}

package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vx-continuous/internal/contract"
	"vx-continuous/internal/market"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

const csvHeader = "Trade Date,Futures,Open,High,Low,Close,Settle,Change,Total Volume,EFP,Open Interest\n"

func TestFetchContractSuccess(t *testing.T) {
	var requestedPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestedPath = r.URL.Path
		w.Header().Set("Content-Type", "text/csv")
		fmt.Fprint(w, csvHeader)
		fmt.Fprint(w, "2024-01-10,VX (Jan 2024),19.9,20.1,19.7,19.9,19.8,0.1,1000,0,5000\n")
		fmt.Fprint(w, "2024-01-11,VX (Jan 2024),19.8,20.2,19.8,20.0,20.0,0.2,1100,0,5100\n")
		fmt.Fprint(w, "2024-01-16,VX (Jan 2024),20.1,20.6,20.0,20.5,20.5,0.5,1200,0,5200\n")
		// The expiration-day row must be dropped.
		fmt.Fprint(w, "2024-01-17,VX (Jan 2024),20.4,20.8,20.3,20.7,20.7,0.2,1300,0,5300\n")
	}))
	defer srv.Close()

	f := NewCBOE(CBOEOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	c, err := f.FetchContract(context.Background(), 2024, time.January)
	if err != nil {
		t.Fatalf("抓取合约失败: %v", err)
	}

	if !strings.HasSuffix(requestedPath, "/VX/2024-01-17") {
		t.Fatalf("新站点路径应以结算日结尾, 实际 %s", requestedPath)
	}
	if c.Symbol() != "VXF24" {
		t.Fatalf("合约符号期望 VXF24, 实际 %s", c.Symbol())
	}
	if !c.Expiration().Equal(market.VXSettlement(2024, time.January)) {
		t.Fatalf("到期日不正确: %s", c.Expiration().Format("2006-01-02"))
	}
	if len(c.Observations()) != 3 {
		t.Fatalf("到期日行应被丢弃, 期望 3 条观测, 实际 %d", len(c.Observations()))
	}
	price, ok := c.PriceOn(time.Date(2024, time.January, 16, 0, 0, 0, 0, time.UTC))
	if !ok || !price.Equal(decimal.RequireFromString("20.5")) {
		t.Fatalf("2024-01-16 结算价期望 20.5, 实际 %s", price)
	}
}

func TestFetchContractLegacyScaling(t *testing.T) {
	var requestedPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestedPath = r.URL.Path
		w.Header().Set("Content-Type", "text/csv")
		fmt.Fprint(w, csvHeader)
		// Legacy files use MM/DD/YYYY dates and 10x settle quotes.
		fmt.Fprint(w, "10/02/2006,VX (Oct 2006),150.0,152.0,147.0,148.5,148.0,-1.0,500,0,2000\n")
		fmt.Fprint(w, "10/03/2006,VX (Oct 2006),148.0,149.0,146.0,147.0,147.5,-0.5,450,0,2100\n")
	}))
	defer srv.Close()

	f := NewCBOE(CBOEOptions{LegacyBaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	c, err := f.FetchContract(context.Background(), 2006, time.October)
	if err != nil {
		t.Fatalf("抓取历史合约失败: %v", err)
	}

	if !strings.HasSuffix(requestedPath, "/CFE_V06_VX.csv") {
		t.Fatalf("旧站点路径应为 CFE_V06_VX.csv, 实际 %s", requestedPath)
	}
	price, ok := c.PriceOn(time.Date(2006, time.October, 2, 0, 0, 0, 0, time.UTC))
	if !ok || !price.Equal(decimal.RequireFromString("14.8")) {
		t.Fatalf("缩放前价格 148.0 应除以 10, 实际 %s", price)
	}
}

func TestFetchContractHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewCBOE(CBOEOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := f.FetchContract(context.Background(), 2024, time.January); err == nil {
		t.Fatal("HTTP 404 应返回错误")
	}
}

func TestFetchContractEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, csvHeader)
	}))
	defer srv.Close()

	f := NewCBOE(CBOEOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := f.FetchContract(context.Background(), 2024, time.January); err == nil {
		t.Fatal("无可交易行时应返回错误")
	}
}

// staticFetcher serves synthetic histories so chain assembly is testable
// without HTTP.
type staticFetcher struct {
	fetched []string
}

func (s *staticFetcher) FetchContract(_ context.Context, year int, month time.Month) (*contract.Contract, error) {
	settle := market.VXSettlement(year, month)
	symbol := market.ContractSymbol(year, month)
	s.fetched = append(s.fetched, symbol)

	first := market.Normalize(settle.AddDate(0, -3, 0))
	last := market.PrevBusinessDay(settle)
	days := market.BusinessDays(first, last)
	observations := make([]contract.Observation, 0, len(days))
	for _, d := range days {
		observations = append(observations, contract.Observation{Date: d, Price: decimal.NewFromInt(20)})
	}
	return contract.NewContract(symbol, settle, observations)
}

func TestFetchChainCoversRange(t *testing.T) {
	f := &staticFetcher{}
	start := time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, time.March, 8, 0, 0, 0, 0, time.UTC)

	chain, err := FetchChain(context.Background(), f, "VX", start, end)
	if err != nil {
		t.Fatalf("FetchChain 失败: %v", err)
	}

	// Jan, Feb, and Mar cover the range; Apr is the extra blend leg.
	want := []string{"VXF24", "VXG24", "VXH24", "VXJ24"}
	if len(f.fetched) != len(want) {
		t.Fatalf("期望抓取 %v, 实际 %v", want, f.fetched)
	}
	for i := range want {
		if f.fetched[i] != want[i] {
			t.Fatalf("期望抓取 %v, 实际 %v", want, f.fetched)
		}
	}
	if chain.Front().Symbol() != "VXF24" || chain.Back().Symbol() != "VXJ24" {
		t.Fatalf("链首尾不正确: %s..%s", chain.Front().Symbol(), chain.Back().Symbol())
	}
	if !chain.Front().Expiration().After(start) {
		t.Fatal("首合约应在起始日之后结算")
	}
}

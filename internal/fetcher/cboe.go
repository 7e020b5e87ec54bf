package fetcher

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vx-continuous/internal/contract"
	"vx-continuous/internal/market"
)

const (
	// Contracts expiring before this date live on CBOE's legacy datahouse.
	cboeNewSiteStart = "2013-01-02"
	// Settle prices before this date are quoted at 10x and must be scaled.
	cboePriceScaleCutoff = "2007-03-23"
)

var dec10 = decimal.NewFromInt(10)

// CBOEOptions parameterise the CBOE historical-data fetcher.
type CBOEOptions struct {
	BaseURL       string
	LegacyBaseURL string
	Timeout       time.Duration
	UserAgent     string
	SettlementLag int
}

// CBOE downloads monthly VX contract histories from CBOE's market statistics
// endpoints.
type CBOE struct {
	opts      CBOEOptions
	logger    zerolog.Logger
	client    *http.Client
	baseURL   string
	legacyURL string
}

// NewCBOE constructs a CBOE contract fetcher.
func NewCBOE(opts CBOEOptions, logger zerolog.Logger) *CBOE {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://markets.cboe.com/us/futures/market_statistics/historical_data/products/csv"
	}
	legacyURL := strings.TrimRight(opts.LegacyBaseURL, "/")
	if legacyURL == "" {
		legacyURL = "https://cfe.cboe.com/Publish/ScheduledTask/MktData/datahouse"
	}

	return &CBOE{
		opts:      opts,
		logger:    logger.With().Str("component", "cboe_fetcher").Logger(),
		client:    &http.Client{Timeout: timeout},
		baseURL:   baseURL,
		legacyURL: legacyURL,
	}
}

// FetchContract retrieves the VX contract for the given month, dropping
// entries at or past expiration and scaling pre-2007 quotes.
func (f *CBOE) FetchContract(ctx context.Context, year int, month time.Month) (*contract.Contract, error) {
	settle := market.VXSettlement(year, month)
	symbol := market.ContractSymbol(year, month)

	newSiteStart, _ := time.Parse("2006-01-02", cboeNewSiteStart)
	monthStart := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)

	var url string
	if monthStart.Before(newSiteStart) {
		url = fmt.Sprintf("%s/CFE_%s%02d_VX.csv", f.legacyURL, market.MonthCode(month), year%100)
	} else {
		url = fmt.Sprintf("%s/VX/%s", f.baseURL, settle.Format("2006-01-02"))
	}

	f.logger.Debug().Str("symbol", symbol).Str("url", url).Msg("fetching contract history")

	body, err := f.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch contract %s: %w", symbol, err)
	}

	observations, err := parseContractCSV(body, settle)
	if err != nil {
		return nil, fmt.Errorf("parse contract %s: %w", symbol, err)
	}
	if len(observations) == 0 {
		return nil, fmt.Errorf("contract %s: source returned no tradable rows", symbol)
	}

	c, err := contract.NewContract(symbol, settle, observations, contract.WithSettlementLag(f.opts.SettlementLag))
	if err != nil {
		return nil, fmt.Errorf("ingest contract %s: %w", symbol, err)
	}

	f.logger.Debug().Str("symbol", symbol).
		Int("observations", len(observations)).
		Time("expiration", settle).
		Msg("contract ingested")
	return c, nil
}

func (f *CBOE) get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	ua := strings.TrimSpace(f.opts.UserAgent)
	if ua == "" {
		ua = "vx-continuous/1.0"
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/csv")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("cboe returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	return resp.Body, nil
}

// parseContractCSV reads CBOE's daily history format: a header row followed
// by Trade Date, Futures, Open, High, Low, Close, Settle, ... rows. Legacy
// files date rows as MM/DD/YYYY, the current site as YYYY-MM-DD.
func parseContractCSV(body io.ReadCloser, expiration time.Time) ([]contract.Observation, error) {
	defer body.Close()

	reader := csv.NewReader(body)
	reader.FieldsPerRecord = -1

	scaleCutoff, _ := time.Parse("2006-01-02", cboePriceScaleCutoff)

	observations := make([]contract.Observation, 0, 160)
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if first {
			first = false
			if len(record) > 0 && strings.EqualFold(strings.TrimSpace(record[0]), "Trade Date") {
				continue
			}
		}
		if len(record) < 7 {
			continue
		}

		date, err := parseTradeDate(strings.TrimSpace(record[0]))
		if err != nil {
			continue
		}
		if !date.Before(expiration) {
			// Entries at expiration and beyond are not tradable history.
			continue
		}

		settleField := strings.TrimSpace(record[6])
		if settleField == "" {
			continue
		}
		price, err := decimal.NewFromString(settleField)
		if err != nil {
			return nil, fmt.Errorf("parse settle %q on %s: %w", settleField, record[0], err)
		}
		if date.Before(scaleCutoff) {
			price = price.Div(dec10)
		}

		observations = append(observations, contract.Observation{Date: date, Price: price})
	}

	sort.Slice(observations, func(i, j int) bool {
		return observations[i].Date.Before(observations[j].Date)
	})
	return observations, nil
}

func parseTradeDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse("01/02/2006", s)
}

var _ ContractFetcher = (*CBOE)(nil)

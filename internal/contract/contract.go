package contract

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"vx-continuous/internal/market"
)

// Observation is a single settled price for one trading day.
type Observation struct {
	Date  time.Time
	Price decimal.Decimal
}

// Contract holds the full price history of one expiring futures instrument.
// It is validated at construction and never mutated afterwards; refreshed
// source data must be ingested as a new Contract (its content digest changes).
type Contract struct {
	symbol       string
	expiration   time.Time
	observations []Observation
	byDate       map[time.Time]int
	digest       string
}

// Option customises contract ingestion.
type Option func(*ingestOptions)

type ingestOptions struct {
	settlementLagDays int
}

// WithSettlementLag permits observations up to n calendar days past the
// expiration date, for exchanges that publish final marks after settlement.
func WithSettlementLag(n int) Option {
	return func(o *ingestOptions) { o.settlementLagDays = n }
}

// NewContract validates and ingests one contract's price history.
// Observation dates must be strictly increasing and must all fall before the
// expiration date plus the configured settlement lag.
func NewContract(symbol string, expiration time.Time, observations []Observation, opts ...Option) (*Contract, error) {
	var ingest ingestOptions
	for _, opt := range opts {
		opt(&ingest)
	}

	if symbol == "" {
		return nil, fmt.Errorf("contract: symbol is required")
	}
	if len(observations) == 0 {
		return nil, fmt.Errorf("contract %s: no observations", symbol)
	}

	expiration = market.Normalize(expiration)
	cutoff := expiration.AddDate(0, 0, ingest.settlementLagDays)

	c := &Contract{
		symbol:       symbol,
		expiration:   expiration,
		observations: make([]Observation, 0, len(observations)),
		byDate:       make(map[time.Time]int, len(observations)),
	}

	var prev time.Time
	for i, obs := range observations {
		date := market.Normalize(obs.Date)
		if i > 0 && !date.After(prev) {
			return nil, &UnorderedObservationsError{Symbol: symbol, Date: date}
		}
		if !date.Before(cutoff) {
			return nil, &ObservationAfterExpiryError{Symbol: symbol, Date: date, Expiration: expiration}
		}
		c.byDate[date] = len(c.observations)
		c.observations = append(c.observations, Observation{Date: date, Price: obs.Price})
		prev = date
	}

	c.digest = computeDigest(c)
	return c, nil
}

// Symbol returns the instrument identifier.
func (c *Contract) Symbol() string { return c.symbol }

// Expiration returns the date the contract stops trading.
func (c *Contract) Expiration() time.Time { return c.expiration }

// Observations returns the ordered price history. Callers must not modify
// the returned slice.
func (c *Contract) Observations() []Observation { return c.observations }

// FirstDate returns the earliest observed trading day.
func (c *Contract) FirstDate() time.Time { return c.observations[0].Date }

// LastDate returns the latest observed trading day.
func (c *Contract) LastDate() time.Time { return c.observations[len(c.observations)-1].Date }

// PriceOn looks up the settled price for a trading day.
func (c *Contract) PriceOn(date time.Time) (decimal.Decimal, bool) {
	i, ok := c.byDate[market.Normalize(date)]
	if !ok {
		return decimal.Decimal{}, false
	}
	return c.observations[i].Price, true
}

// Digest is a deterministic content fingerprint of the contract. Any change
// to the symbol, expiration, or a single observation yields a new digest.
func (c *Contract) Digest() string { return c.digest }

func computeDigest(c *Contract) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n%s\n", c.symbol, c.expiration.Format("2006-01-02"))
	for _, obs := range c.observations {
		fmt.Fprintf(h, "%s=%s\n", obs.Date.Format("2006-01-02"), obs.Price.String())
	}
	return hex.EncodeToString(h.Sum(nil))
}

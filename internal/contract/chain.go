package contract

import (
	"fmt"
)

// Chain is an ordered collection of contracts for one underlying, strictly
// increasing by expiration date. The chain is read-only once constructed.
type Chain struct {
	underlying string
	contracts  []*Contract
}

// NewChain validates ordering and uniqueness of the contract sequence.
// Violations are fatal for the chain; callers must supply corrected input.
func NewChain(underlying string, contracts []*Contract) (*Chain, error) {
	if underlying == "" {
		return nil, fmt.Errorf("chain: underlying is required")
	}
	if len(contracts) == 0 {
		return nil, fmt.Errorf("chain %s: no contracts", underlying)
	}

	for i := 1; i < len(contracts); i++ {
		prev, next := contracts[i-1], contracts[i]
		if next.Expiration().Equal(prev.Expiration()) {
			return nil, &DuplicateExpirationError{
				Expiration: next.Expiration(),
				First:      prev.Symbol(),
				Second:     next.Symbol(),
			}
		}
		if next.Expiration().Before(prev.Expiration()) {
			return nil, &OutOfOrderError{Prev: prev.Symbol(), Next: next.Symbol()}
		}
	}

	return &Chain{underlying: underlying, contracts: contracts}, nil
}

// Underlying names the instrument family.
func (c *Chain) Underlying() string { return c.underlying }

// Contracts returns the ordered contracts. Callers must not modify the slice.
func (c *Chain) Contracts() []*Contract { return c.contracts }

// Len returns the number of contracts in the chain.
func (c *Chain) Len() int { return len(c.contracts) }

// Front returns the earliest-expiring contract.
func (c *Chain) Front() *Contract { return c.contracts[0] }

// Back returns the latest-expiring contract.
func (c *Chain) Back() *Contract { return c.contracts[len(c.contracts)-1] }

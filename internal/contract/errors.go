package contract

import (
	"fmt"
	"time"
)

// UnorderedObservationsError indicates observation dates are not strictly
// increasing.
type UnorderedObservationsError struct {
	Symbol string
	Date   time.Time
}

func (e *UnorderedObservationsError) Error() string {
	return fmt.Sprintf("contract %s: observation dates not strictly increasing at %s",
		e.Symbol, e.Date.Format("2006-01-02"))
}

// ObservationAfterExpiryError indicates an observation dated at or past the
// contract's expiration (plus any permitted settlement lag).
type ObservationAfterExpiryError struct {
	Symbol     string
	Date       time.Time
	Expiration time.Time
}

func (e *ObservationAfterExpiryError) Error() string {
	return fmt.Sprintf("contract %s: observation on %s at or past expiration %s",
		e.Symbol, e.Date.Format("2006-01-02"), e.Expiration.Format("2006-01-02"))
}

// DuplicateExpirationError indicates two chain contracts share an expiration.
type DuplicateExpirationError struct {
	Expiration    time.Time
	First, Second string
}

func (e *DuplicateExpirationError) Error() string {
	return fmt.Sprintf("chain: contracts %s and %s share expiration %s",
		e.First, e.Second, e.Expiration.Format("2006-01-02"))
}

// OutOfOrderError indicates chain contracts are not sorted by expiration.
type OutOfOrderError struct {
	Prev, Next string
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("chain: contract %s expires before its predecessor %s", e.Next, e.Prev)
}

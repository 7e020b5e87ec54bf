package fetcher

import (
	"context"
	"time"

	"vx-continuous/internal/contract"
)

// ContractFetcher retrieves one expiring contract's full price history for a
// contract month. Implementations validate basic schema correctness; the
// returned contract has already passed ingestion validation.
type ContractFetcher interface {
	FetchContract(ctx context.Context, year int, month time.Month) (*contract.Contract, error)
}

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"vx-continuous/internal/contract"
	"vx-continuous/internal/roll"
)

// ContractRef identifies one chain member by symbol and raw-data content
// digest, so a fingerprint changes whenever the underlying data does even if
// the chain composition looks unchanged.
type ContractRef struct {
	Symbol string
	Digest string
}

// Key names everything that makes one build request distinct.
type Key struct {
	Underlying string
	Contracts  []ContractRef
	RollPolicy string
	Adjustment roll.Adjustment
	Start      time.Time
	End        time.Time
}

// KeyForChain assembles a build key from a materialized chain and policies.
func KeyForChain(chain *contract.Chain, policy roll.Policy, adjust roll.Adjustment, start, end time.Time) Key {
	refs := make([]ContractRef, 0, chain.Len())
	for _, c := range chain.Contracts() {
		refs = append(refs, ContractRef{Symbol: c.Symbol(), Digest: c.Digest()})
	}
	return Key{
		Underlying: chain.Underlying(),
		Contracts:  refs,
		RollPolicy: policy.String(),
		Adjustment: adjust,
		Start:      start,
		End:        end,
	}
}

// Fingerprint renders the key as a deterministic hex digest.
func (k Key) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "underlying=%s\n", k.Underlying)
	for _, ref := range k.Contracts {
		fmt.Fprintf(h, "contract=%s:%s\n", ref.Symbol, ref.Digest)
	}
	fmt.Fprintf(h, "roll=%s\nadjust=%s\nrange=%s..%s\n",
		k.RollPolicy, k.Adjustment,
		k.Start.UTC().Format("2006-01-02"), k.End.UTC().Format("2006-01-02"))
	return hex.EncodeToString(h.Sum(nil))
}

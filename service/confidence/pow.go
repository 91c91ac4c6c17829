// Package confidence converts a caller-supplied confidence probability into
// a concrete confirmation depth for a given consensus family.
package confidence

import (
	"fmt"
	"math"

	"github.com/dabberpk/BlockchainAccessLayer/service/chain"
)

// Calculator maps a requested confidence in [0,1) to the number of
// block-confirmations required to reach it. Implementations are pure and
// perform no I/O, so the transaction state machine can stay agnostic of the
// consensus family.
type Calculator interface {
	Depth(confidence float64) (int64, error)
}

// maxDepth bounds the search so a pathological adversary ratio cannot spin
// forever. Well-formed inputs resolve in a few dozen blocks at most.
const maxDepth = 1000

// PoWCalculator computes confirmation depths for proof-of-work ledgers
// using the double-spend race model from the Bitcoin whitepaper,
// parameterized by the hash-rate fraction assumed to be adversarial.
type PoWCalculator struct {
	adversaryRatio float64
}

// NewPoWCalculator creates a calculator assuming the given adversarial
// hash-rate fraction. The ratio must be in (0, 0.5); at 0.5 and above no
// finite depth yields any confidence.
func NewPoWCalculator(adversaryRatio float64) (*PoWCalculator, error) {
	if adversaryRatio <= 0 || adversaryRatio >= 0.5 {
		return nil, chain.Parameterf("adversary hash-rate ratio must be in (0, 0.5), got %v", adversaryRatio)
	}
	return &PoWCalculator{adversaryRatio: adversaryRatio}, nil
}

// Depth returns the smallest number of confirmations z such that the
// probability of a successful double-spend race against z blocks is at most
// 1-confidence. Depth 0 means the caller accepts the transaction at first
// sight.
func (c *PoWCalculator) Depth(confidence float64) (int64, error) {
	if confidence < 0 || confidence >= 1 {
		return 0, chain.Parameterf("required confidence must be in [0, 1), got %v", confidence)
	}

	tolerated := 1 - confidence
	for z := int64(0); z <= maxDepth; z++ {
		if c.attackerSuccessProbability(z) <= tolerated {
			return z, nil
		}
	}
	return 0, fmt.Errorf("confidence %v not reachable within %d confirmations", confidence, maxDepth)
}

// attackerSuccessProbability evaluates the catch-up probability for an
// attacker mining a private chain against z confirmations, following the
// analysis in section 11 of the Bitcoin whitepaper.
func (c *PoWCalculator) attackerSuccessProbability(z int64) float64 {
	q := c.adversaryRatio
	p := 1 - q
	lambda := float64(z) * (q / p)

	sum := 1.0
	poisson := math.Exp(-lambda)
	for k := int64(0); k <= z; k++ {
		if k > 0 {
			poisson *= lambda / float64(k)
		}
		sum -= poisson * (1 - math.Pow(q/p, float64(z-k)))
	}
	return sum
}

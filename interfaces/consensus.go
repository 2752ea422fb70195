package interfaces

import (
	"context"
	"time"
)

// BlockConsensusItf is the view of a block the proof-of-work engine needs.
type BlockConsensusItf interface {
	GetParentHash() string
	GetMiner() string
	GetRequired() int
	GetNonce() string
	GetHash() string
	GetDifficulty() int
	// Seal stores the winning search result. It is called at most once per block.
	Seal(nonce, hash string, difficulty int, attempts uint64)
}

// NonceSource yields uniformly distributed 64-bit values.
// *math/rand.Rand and *math/rand/v2.Rand both satisfy it.
type NonceSource interface {
	Uint64() uint64
}

// MiningResult describes how a block was found.
type MiningResult struct {
	Attempts uint64        `json:"attempts"`
	Duration time.Duration `json:"duration"`
	Workers  int           `json:"workers"`
}

// HashRate returns digests per second.
func (r *MiningResult) HashRate() float64 {
	if r == nil || r.Duration <= 0 {
		return 0
	}
	return float64(r.Attempts) / r.Duration.Seconds()
}

// Engine interface
type Engine interface {
	MineBlock(ctx context.Context, block BlockConsensusItf) (*MiningResult, error)
	ValidateProofOfWork(block BlockConsensusItf) bool
	NextDifficulty(block BlockConsensusItf) int
	Algorithm() string
}

package consensus

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	mrand "math/rand/v2"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"powchain/crypto"
	"powchain/interfaces"
	"powchain/logger"
)

// Number of attempts between cancellation checks in a worker.
const cancelCheckInterval = 1024

var (
	ErrMiningTimeout        = errors.New("mining timeout exceeded")
	ErrDifficultyOutOfRange = errors.New("difficulty out of range")
	ErrInvalidProof         = errors.New("invalid proof of work")
)

// SourceFactory builds the nonce source used by one search worker.
type SourceFactory func(worker int) interfaces.NonceSource

// RandomSource returns a ChaCha8 generator seeded from crypto/rand.
func RandomSource(int) interfaces.NonceSource {
	var seed [32]byte
	crand.Read(seed[:])
	return mrand.New(mrand.NewChaCha8(seed))
}

// Config tunes the search.
type Config struct {
	Threads int           // parallel workers, at least 1
	Timeout time.Duration // zero means search until found or cancelled
	Sources SourceFactory // nil selects RandomSource
}

// ProofOfWork implements the leading-zero-bits proof of work with a ratcheting difficulty.
type ProofOfWork struct {
	hasher  crypto.Hasher
	threads int
	timeout time.Duration
	sources SourceFactory
}

// NewProofOfWork creates a new PoW consensus engine
func NewProofOfWork(hasher crypto.Hasher, cfg *Config) *ProofOfWork {
	if hasher == nil {
		hasher = crypto.SHA256
	}
	pow := &ProofOfWork{
		hasher:  hasher,
		threads: 1,
		sources: RandomSource,
	}
	if cfg != nil {
		if cfg.Threads > 1 {
			pow.threads = cfg.Threads
		}
		pow.timeout = cfg.Timeout
		if cfg.Sources != nil {
			pow.sources = cfg.Sources
		}
	}
	return pow
}

func (pow *ProofOfWork) Algorithm() string { return pow.hasher.Name() }
func (pow *ProofOfWork) Threads() int      { return pow.threads }

// FormatNonce renders a nonce as lowercase hex without zero padding.
func FormatNonce(n uint64) string {
	return strconv.FormatUint(n, 16)
}

type candidate struct {
	nonce      string
	hash       string
	difficulty int
}

// MineBlock searches random nonces until the digest of parent hash, miner and nonce has
// strictly more leading zero bits than the block's required difficulty, then seals the block.
func (pow *ProofOfWork) MineBlock(ctx context.Context, block interfaces.BlockConsensusItf) (*interfaces.MiningResult, error) {
	required := block.GetRequired()
	if required < 0 || required >= crypto.DigestBits {
		return nil, fmt.Errorf("%w: required %d, digest has %d bits", ErrDifficultyOutOfRange, required, crypto.DigestBits)
	}

	var (
		searchCtx context.Context
		cancel    context.CancelFunc
	)
	if pow.timeout > 0 {
		searchCtx, cancel = context.WithTimeout(ctx, pow.timeout)
	} else {
		searchCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	prefix := block.GetParentHash() + block.GetMiner()
	found := make(chan candidate, 1)
	var attempts atomic.Uint64
	var wg sync.WaitGroup

	startTime := time.Now()
	for i := 0; i < pow.threads; i++ {
		src := pow.sources(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			pow.search(searchCtx, prefix, required, src, &attempts, found)
		}()
	}

	var winner candidate
	ok := false
	select {
	case winner = <-found:
		ok = true
	case <-searchCtx.Done():
	}
	cancel()
	wg.Wait()
	if !ok {
		// a worker may have won just as the context expired
		select {
		case winner = <-found:
			ok = true
		default:
		}
	}

	result := &interfaces.MiningResult{
		Attempts: attempts.Load(),
		Duration: time.Since(startTime),
		Workers:  pow.threads,
	}
	if !ok {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		logger.Warningf("PoW: gave up after %d attempts in %v (required > %d bits)", result.Attempts, result.Duration, required)
		return result, ErrMiningTimeout
	}

	block.Seal(winner.nonce, winner.hash, winner.difficulty, result.Attempts)
	logger.Debugf("PoW: found nonce %s with %d zero bits after %d attempts (%.0f H/s)",
		winner.nonce, winner.difficulty, result.Attempts, result.HashRate())
	return result, nil
}

func (pow *ProofOfWork) search(ctx context.Context, prefix string, required int, src interfaces.NonceSource, attempts *atomic.Uint64, found chan<- candidate) {
	buf := make([]byte, 0, len(prefix)+16)
	buf = append(buf, prefix...)

	for n := uint64(0); ; n++ {
		if n%cancelCheckInterval == 0 {
			select {
			case <-ctx.Done():
				return
			default:
			}
		}

		nonce := FormatNonce(src.Uint64())
		digest := pow.hasher.Sum(append(buf[:len(prefix)], nonce...))
		attempts.Add(1)

		if bits := digest.LeadingZeroBits(); bits > required {
			// first writer wins, later winners for the same block are dropped
			select {
			case found <- candidate{nonce: nonce, hash: digest.Hex(), difficulty: bits}:
			default:
			}
			return
		}
	}
}

// Verify recomputes the digest from the stored fields and checks the difficulty claims.
func (pow *ProofOfWork) Verify(block interfaces.BlockConsensusItf) error {
	if block.GetHash() == "" || block.GetNonce() == "" {
		return fmt.Errorf("%w: block is not sealed", ErrInvalidProof)
	}
	want, _ := crypto.Sum(pow.hasher, []byte(block.GetParentHash()+block.GetMiner()+block.GetNonce()))
	if want != block.GetHash() {
		return fmt.Errorf("%w: stored hash %s, recomputed %s", ErrInvalidProof, block.GetHash(), want)
	}
	bits, err := crypto.LeadingZeroBits(block.GetHash())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	if bits != block.GetDifficulty() {
		return fmt.Errorf("%w: hash has %d leading zero bits, block claims %d", ErrInvalidProof, bits, block.GetDifficulty())
	}
	if bits <= block.GetRequired() {
		return fmt.Errorf("%w: %d leading zero bits does not exceed required %d", ErrInvalidProof, bits, block.GetRequired())
	}
	return nil
}

// ValidateProofOfWork validates the proof of work for a block
func (pow *ProofOfWork) ValidateProofOfWork(block interfaces.BlockConsensusItf) bool {
	return pow.Verify(block) == nil
}

// NextDifficulty is the achieved difficulty of the block, so the threshold only ratchets up.
func (pow *ProofOfWork) NextDifficulty(block interfaces.BlockConsensusItf) int {
	return block.GetDifficulty()
}

package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"powchain/cache"
	"powchain/crypto"
	"powchain/database"
	"powchain/interfaces"
	"powchain/logger"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrChainComplete = errors.New("chain already reached target difficulty")
	ErrInvalidBlock  = errors.New("invalid block")
	ErrInvalidConfig = errors.New("invalid chain configuration")
	ErrSeedMismatch  = errors.New("stored chain was built from a different seed")
)

// Status of the chain assembly.
type Status string

const (
	StatusBuilding Status = "BUILDING"
	StatusComplete Status = "COMPLETE"
)

// Config struct (core.Config) mendefinisikan parameter inti chain.
type Config struct {
	Miner            string
	SeedHash         string
	StartDifficulty  int
	TargetDifficulty int
	Resume           bool          // reload blocks already in the database instead of starting over
	CacheTTL         time.Duration // lifetime of cached block lookups
}

func (c *Config) validate() error {
	if c.Miner == "" {
		return fmt.Errorf("%w: miner identity is empty", ErrInvalidConfig)
	}
	if len(c.Miner) > MaxMinerLength {
		return fmt.Errorf("%w: miner identity longer than %d bytes", ErrInvalidConfig, MaxMinerLength)
	}
	if _, err := crypto.ParseDigest(c.SeedHash); err != nil {
		return fmt.Errorf("%w: seed hash: %v", ErrInvalidConfig, err)
	}
	if c.StartDifficulty < 0 || c.StartDifficulty >= crypto.DigestBits {
		return fmt.Errorf("%w: start difficulty %d outside [0, %d)", ErrInvalidConfig, c.StartDifficulty, crypto.DigestBits)
	}
	if c.TargetDifficulty <= c.StartDifficulty || c.TargetDifficulty > crypto.DigestBits {
		return fmt.Errorf("%w: target difficulty %d must be in (%d, %d]", ErrInvalidConfig, c.TargetDifficulty, c.StartDifficulty, crypto.DigestBits)
	}
	return nil
}

// BlockSink receives every block right after it has been appended to the chain.
type BlockSink interface {
	BlockMined(ctx context.Context, block *Block) error
}

// BlockSinkFunc adapts a function to BlockSink.
type BlockSinkFunc func(ctx context.Context, block *Block) error

func (f BlockSinkFunc) BlockMined(ctx context.Context, block *Block) error { return f(ctx, block) }

// chainMeta is stored alongside the blocks so a resumed run can check it continues the same chain.
type chainMeta struct {
	SeedHash        string `json:"seedHash"`
	StartDifficulty int    `json:"startDifficulty"`
	Algorithm       string `json:"algorithm"`
}

var (
	keyHead        = []byte("head")
	keyMeta        = []byte("meta_seed")
	prefixBlock    = []byte("block_")
	prefixHashToNo = []byte("hash_")
)

func blockKey(number uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixBlock, number))
}

func hashKey(hash string) []byte {
	return append(append([]byte{}, prefixHashToNo...), hash...)
}

// Blockchain is an append-only sequence of blocks with a ratcheting difficulty.
type Blockchain struct {
	config            *Config
	db                database.Database
	consensus         interfaces.Engine
	blocks            []*Block
	byHash            map[string]uint64
	currentDifficulty int
	status            Status
	sinks             []BlockSink
	cache             *cache.Cache
	runID             string
	log               *logrus.Entry
	mu                sync.RWMutex
	mineMu            sync.Mutex // serializes MineNext so each call builds on the latest head
}

// NewBlockchain creates the chain. db may be nil for a purely in-memory chain.
func NewBlockchain(cfg *Config, engine interfaces.Engine, db database.Database) (*Blockchain, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if engine == nil {
		return nil, fmt.Errorf("%w: consensus engine not set", ErrInvalidConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	bc := &Blockchain{
		config:            cfg,
		db:                db,
		consensus:         engine,
		byHash:            make(map[string]uint64),
		currentDifficulty: cfg.StartDifficulty,
		status:            StatusBuilding,
		cache:             cache.NewCache(cfg.CacheTTL),
		runID:             runID,
		log:               logger.WithFields(logrus.Fields{"run_id": runID, "miner": cfg.Miner}),
	}

	if db != nil {
		if err := bc.initFromDB(); err != nil {
			bc.cache.Close()
			return nil, err
		}
	}
	bc.updateStatus()

	bc.log.Infof("Chain initialized: seed=%s start=%d target=%d height=%d algorithm=%s",
		cfg.SeedHash, cfg.StartDifficulty, cfg.TargetDifficulty, len(bc.blocks), engine.Algorithm())
	return bc, nil
}

func (bc *Blockchain) initFromDB() error {
	stored, err := loadBlocks(bc.db)
	if err != nil {
		return err
	}
	meta := chainMeta{
		SeedHash:        bc.config.SeedHash,
		StartDifficulty: bc.config.StartDifficulty,
		Algorithm:       bc.consensus.Algorithm(),
	}

	if len(stored) > 0 && bc.config.Resume {
		var storedMeta chainMeta
		raw, err := bc.db.Get(keyMeta)
		if err != nil {
			return fmt.Errorf("failed to read chain metadata: %v", err)
		}
		if raw != nil {
			if err := json.Unmarshal(raw, &storedMeta); err != nil {
				return fmt.Errorf("failed to decode chain metadata: %v", err)
			}
			if storedMeta != meta {
				return fmt.Errorf("%w: stored %+v, configured %+v", ErrSeedMismatch, storedMeta, meta)
			}
		}
		if err := VerifyChain(stored, bc.consensus, bc.config.SeedHash, bc.config.StartDifficulty); err != nil {
			return fmt.Errorf("stored chain failed verification: %w", err)
		}
		for _, b := range stored {
			bc.byHash[b.Hash] = b.Number
		}
		bc.blocks = stored
		bc.currentDifficulty = bc.consensus.NextDifficulty(stored[len(stored)-1])
		logger.Infof("Resumed chain with %d blocks, current difficulty %d", len(stored), bc.currentDifficulty)
	} else if len(stored) > 0 {
		logger.Warningf("Discarding %d stored blocks; start a run with resume enabled to continue them", len(stored))
		if err := clearBlocks(bc.db); err != nil {
			return fmt.Errorf("failed to clear stored chain: %v", err)
		}
	}

	rawMeta, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return bc.db.Put(keyMeta, rawMeta)
}

func loadBlocks(db database.Database) ([]*Block, error) {
	var blocks []*Block
	err := db.ForEach(prefixBlock, func(key, value []byte) error {
		b, err := BlockFromJSON(value)
		if err != nil {
			return fmt.Errorf("failed to decode %s: %v", key, err)
		}
		blocks = append(blocks, b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

func clearBlocks(db database.Database) error {
	var keys [][]byte
	for _, prefix := range [][]byte{prefixBlock, prefixHashToNo} {
		err := db.ForEach(prefix, func(key, _ []byte) error {
			keys = append(keys, key)
			return nil
		})
		if err != nil {
			return err
		}
	}
	batch := database.NewBatch()
	for _, k := range keys {
		batch.Delete(k)
	}
	batch.Delete(keyHead)
	return db.Write(batch)
}

// AddSink registers a sink; sinks are notified in registration order.
func (bc *Blockchain) AddSink(sink BlockSink) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.sinks = append(bc.sinks, sink)
}

// MineNext mines one block on top of the current head, appends it and notifies sinks.
func (bc *Blockchain) MineNext(ctx context.Context) (*Block, error) {
	bc.mineMu.Lock()
	defer bc.mineMu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bc.mu.RLock()
	if bc.status == StatusComplete {
		bc.mu.RUnlock()
		return nil, ErrChainComplete
	}
	parentHash := bc.headHashLocked()
	number := uint64(len(bc.blocks))
	required := bc.currentDifficulty
	sinks := append([]BlockSink(nil), bc.sinks...)
	bc.mu.RUnlock()

	block := NewBlock(parentHash, number, bc.config.Miner, required)
	bc.log.Debugf("Mining block %d on %s, difficulty must exceed %d", number, parentHash, required)

	result, err := bc.consensus.MineBlock(ctx, block)
	if err != nil {
		return nil, fmt.Errorf("failed to mine block %d: %w", number, err)
	}
	if err := bc.AddBlock(block); err != nil {
		return nil, err
	}
	logger.LogBlockEvent(block.Number, block.Hash, block.Difficulty, block.Attempts, block.Miner)
	bc.log.Infof("Block %d mined in %v (%.0f H/s). Hash: %s", block.Number, result.Duration.Round(time.Millisecond), result.HashRate(), block.Hash)

	for _, sink := range sinks {
		if err := sink.BlockMined(ctx, block.Copy()); err != nil {
			return block, fmt.Errorf("block sink failed for block %d: %w", block.Number, err)
		}
	}
	return block, nil
}

// Run mines until the current difficulty reaches the target. Any mining or sink
// error aborts the run; blocks already appended stay in the chain.
func (bc *Blockchain) Run(ctx context.Context) error {
	bc.log.Infof("Starting run at difficulty %d, target %d", bc.CurrentDifficulty(), bc.config.TargetDifficulty)
	for !bc.IsComplete() {
		if _, err := bc.MineNext(ctx); err != nil {
			if errors.Is(err, ErrChainComplete) {
				break
			}
			bc.log.Errorf("Run aborted at height %d: %v", bc.Height(), err)
			return err
		}
	}
	bc.log.Infof("Chain complete: %d blocks, difficulty %d", bc.Height(), bc.CurrentDifficulty())
	return nil
}

// AddBlock validates a sealed block against the head and appends it.
func (bc *Blockchain) AddBlock(block *Block) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if bc.status == StatusComplete {
		return ErrChainComplete
	}
	if block == nil {
		return fmt.Errorf("%w: nil block", ErrInvalidBlock)
	}
	if want := uint64(len(bc.blocks)); block.Number != want {
		return fmt.Errorf("%w: block number out of sequence: expected %d, got %d", ErrInvalidBlock, want, block.Number)
	}
	if want := bc.headHashLocked(); block.PreviousHash != want {
		return fmt.Errorf("%w: parent hash mismatch: block %d parent %s, head %s", ErrInvalidBlock, block.Number, block.PreviousHash, want)
	}
	if block.Required != bc.currentDifficulty {
		return fmt.Errorf("%w: block %d was mined against difficulty %d, chain requires %d", ErrInvalidBlock, block.Number, block.Required, bc.currentDifficulty)
	}
	if err := defaultValidator.ValidateBlock(block); err != nil {
		return fmt.Errorf("%w: block %d: %v", ErrInvalidBlock, block.Number, err)
	}
	if err := verifyProof(bc.consensus, block); err != nil {
		return fmt.Errorf("%w: block %d: %v", ErrInvalidBlock, block.Number, err)
	}
	next := bc.consensus.NextDifficulty(block)
	if next <= bc.currentDifficulty {
		return fmt.Errorf("%w: difficulty did not increase (%d -> %d)", ErrInvalidBlock, bc.currentDifficulty, next)
	}

	stored := block.Copy()
	if bc.db != nil {
		if err := bc.saveBlock(stored); err != nil {
			logger.Errorf("Failed to save block %d: %v", stored.Number, err)
			return err
		}
	}

	bc.blocks = append(bc.blocks, stored)
	bc.byHash[stored.Hash] = stored.Number
	bc.currentDifficulty = next
	bc.cache.Set(stored.Hash, stored)
	bc.updateStatus()
	return nil
}

func verifyProof(engine interfaces.Engine, block *Block) error {
	if v, ok := engine.(interface {
		Verify(interfaces.BlockConsensusItf) error
	}); ok {
		return v.Verify(block)
	}
	if !engine.ValidateProofOfWork(block) {
		return errors.New("invalid proof of work")
	}
	return nil
}

func (bc *Blockchain) saveBlock(block *Block) error {
	blockData, err := block.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize block %d: %v", block.Number, err)
	}
	number := []byte(strconv.FormatUint(block.Number, 10))
	batch := database.NewBatch()
	batch.Put(blockKey(block.Number), blockData)
	batch.Put(hashKey(block.Hash), number)
	batch.Put(keyHead, number)
	if err := bc.db.Write(batch); err != nil {
		return fmt.Errorf("failed to save block %d: %v", block.Number, err)
	}
	return nil
}

func (bc *Blockchain) updateStatus() {
	if bc.currentDifficulty >= bc.config.TargetDifficulty {
		bc.status = StatusComplete
	} else {
		bc.status = StatusBuilding
	}
}

func (bc *Blockchain) headHashLocked() string {
	if len(bc.blocks) == 0 {
		return bc.config.SeedHash
	}
	return bc.blocks[len(bc.blocks)-1].Hash
}

// VerifyChain re-walks blocks using only their stored fields: numbering, links by
// value, proof of work and the strictly increasing difficulty ratchet.
func VerifyChain(blocks []*Block, engine interfaces.Engine, seedHash string, seedDifficulty int) error {
	prevHash := seedHash
	required := seedDifficulty
	for i, b := range blocks {
		if b.Number != uint64(i) {
			return fmt.Errorf("%w: position %d holds block number %d", ErrInvalidBlock, i, b.Number)
		}
		if b.PreviousHash != prevHash {
			return fmt.Errorf("%w: block %d links to %s, expected %s", ErrInvalidBlock, i, b.PreviousHash, prevHash)
		}
		if b.Required != required {
			return fmt.Errorf("%w: block %d required %d, expected %d", ErrInvalidBlock, i, b.Required, required)
		}
		if err := defaultValidator.ValidateBlock(b); err != nil {
			return fmt.Errorf("%w: block %d: %v", ErrInvalidBlock, i, err)
		}
		if err := verifyProof(engine, b); err != nil {
			return fmt.Errorf("%w: block %d: %v", ErrInvalidBlock, i, err)
		}
		next := engine.NextDifficulty(b)
		if next <= required {
			return fmt.Errorf("%w: block %d difficulty %d does not exceed %d", ErrInvalidBlock, i, next, required)
		}
		prevHash = b.Hash
		required = next
	}
	return nil
}

// Verify checks the whole in-memory chain.
func (bc *Blockchain) Verify() error {
	return VerifyChain(bc.Blocks(), bc.consensus, bc.config.SeedHash, bc.config.StartDifficulty)
}

func (bc *Blockchain) GetConfig() *Config { return bc.config }

func (bc *Blockchain) GetConsensusEngine() interfaces.Engine { return bc.consensus }

func (bc *Blockchain) RunID() string { return bc.runID }

func (bc *Blockchain) GetCurrentBlock() *Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	if len(bc.blocks) == 0 {
		return nil
	}
	return bc.blocks[len(bc.blocks)-1].Copy()
}

func (bc *Blockchain) GetBlockByNumber(number uint64) *Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	if number >= uint64(len(bc.blocks)) {
		return nil
	}
	return bc.blocks[number].Copy()
}

func (bc *Blockchain) GetBlockByHash(hash string) *Block {
	if cached, found := bc.cache.Get(hash); found {
		if block, ok := cached.(*Block); ok {
			return block.Copy()
		}
	}
	bc.mu.RLock()
	number, ok := bc.byHash[hash]
	bc.mu.RUnlock()
	if !ok {
		return nil
	}
	block := bc.GetBlockByNumber(number)
	if block != nil {
		bc.cache.Set(hash, block)
	}
	return block
}

// Blocks returns a snapshot of the chain.
func (bc *Blockchain) Blocks() []*Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	out := make([]*Block, len(bc.blocks))
	for i, b := range bc.blocks {
		out[i] = b.Copy()
	}
	return out
}

func (bc *Blockchain) Height() int {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return len(bc.blocks)
}

func (bc *Blockchain) CurrentDifficulty() int {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.currentDifficulty
}

func (bc *Blockchain) TargetDifficulty() int { return bc.config.TargetDifficulty }

func (bc *Blockchain) Status() Status {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.status
}

func (bc *Blockchain) IsComplete() bool { return bc.Status() == StatusComplete }

// Close releases the cache and the database.
func (bc *Blockchain) Close() error {
	bc.cache.Close()
	if bc.db != nil {
		return bc.db.Close()
	}
	return nil
}

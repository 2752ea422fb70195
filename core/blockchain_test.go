package core

import (
	"context"
	"errors"
	mrand "math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"powchain/consensus"
	"powchain/crypto"
	"powchain/database"
	"powchain/interfaces"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSeed = "00000a2ed46cd277a0edc3f17ff3df541b034345f4696d75744279166e19d8eb"

func testEngine(seed uint64) *consensus.ProofOfWork {
	return consensus.NewProofOfWork(crypto.SHA256, &consensus.Config{
		Sources: func(worker int) interfaces.NonceSource {
			return mrand.New(mrand.NewPCG(seed, uint64(worker)))
		},
	})
}

func testConfig(start, target int) *Config {
	return &Config{
		Miner:            "SpicyChilliNuts",
		SeedHash:         testSeed,
		StartDifficulty:  start,
		TargetDifficulty: target,
	}
}

func newTestChain(t *testing.T, start, target int, db database.Database) *Blockchain {
	t.Helper()
	bc, err := NewBlockchain(testConfig(start, target), testEngine(2024), db)
	require.NoError(t, err)
	return bc
}

func TestChainCompletion(t *testing.T) {
	bc := newTestChain(t, 1, 4, nil)
	defer bc.Close()
	assert.Equal(t, StatusBuilding, bc.Status())

	require.NoError(t, bc.Run(context.Background()))
	assert.Equal(t, StatusComplete, bc.Status())
	assert.GreaterOrEqual(t, bc.CurrentDifficulty(), 4)

	blocks := bc.Blocks()
	require.NotEmpty(t, blocks)
	assert.LessOrEqual(t, len(blocks), 3, "each block raises difficulty by at least one")

	prevHash, prevDifficulty := testSeed, 1
	for i, b := range blocks {
		assert.Equal(t, uint64(i), b.Number)
		assert.Equal(t, prevHash, b.PreviousHash, "chain link %d", i)
		assert.Equal(t, prevDifficulty, b.Required)
		assert.Greater(t, b.Difficulty, prevDifficulty, "ratchet %d", i)

		// round trip from stored string fields only
		hexDigest, _ := crypto.Sum(crypto.SHA256, []byte(b.HashInput()))
		assert.Equal(t, hexDigest, b.Hash)
		bits, err := crypto.LeadingZeroBits(b.Hash)
		require.NoError(t, err)
		assert.Equal(t, bits, b.Difficulty)

		prevHash, prevDifficulty = b.Hash, b.Difficulty
	}
	assert.Equal(t, prevDifficulty, bc.CurrentDifficulty())
	assert.NoError(t, bc.Verify())

	_, err := bc.MineNext(context.Background())
	assert.ErrorIs(t, err, ErrChainComplete)
}

func TestConfigValidation(t *testing.T) {
	engine := testEngine(1)
	bad := []*Config{
		{SeedHash: testSeed, StartDifficulty: 1, TargetDifficulty: 4},
		{Miner: "m", StartDifficulty: 1, TargetDifficulty: 4},
		{Miner: "m", SeedHash: testSeed, StartDifficulty: -1, TargetDifficulty: 4},
		{Miner: "m", SeedHash: testSeed, StartDifficulty: 4, TargetDifficulty: 4},
		{Miner: "m", SeedHash: testSeed, StartDifficulty: 1, TargetDifficulty: 257},
		{Miner: "m", SeedHash: "genesis", StartDifficulty: 1, TargetDifficulty: 4},
		{Miner: "m", SeedHash: strings.ToUpper(testSeed), StartDifficulty: 1, TargetDifficulty: 4},
		{Miner: strings.Repeat("m", MaxMinerLength+1), SeedHash: testSeed, StartDifficulty: 1, TargetDifficulty: 4},
	}
	for _, cfg := range bad {
		_, err := NewBlockchain(cfg, engine, nil)
		assert.ErrorIs(t, err, ErrInvalidConfig, "%+v", cfg)
	}
	_, err := NewBlockchain(nil, engine, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewBlockchain(testConfig(1, 4), nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestAddBlockRejectsInvalidBlocks(t *testing.T) {
	bc := newTestChain(t, 2, 30, nil)
	defer bc.Close()
	engine := testEngine(77)

	mined := func(parent string, number uint64, required int) *Block {
		b := NewBlock(parent, number, "SpicyChilliNuts", required)
		_, err := engine.MineBlock(context.Background(), b)
		require.NoError(t, err)
		return b
	}

	good := mined(testSeed, 0, 2)

	wrongParent := mined(crypto.SHA256.Sum([]byte("other")).Hex(), 0, 2)
	assert.ErrorIs(t, bc.AddBlock(wrongParent), ErrInvalidBlock)

	wrongNumber := good.Copy()
	wrongNumber.Number = 5
	assert.ErrorIs(t, bc.AddBlock(wrongNumber), ErrInvalidBlock)

	wrongRequired := mined(testSeed, 0, 1)
	assert.ErrorIs(t, bc.AddBlock(wrongRequired), ErrInvalidBlock)

	tampered := good.Copy()
	tampered.Nonce = "deadbeef"
	assert.ErrorIs(t, bc.AddBlock(tampered), ErrInvalidBlock)

	unsealed := NewBlock(testSeed, 0, "SpicyChilliNuts", 2)
	assert.ErrorIs(t, bc.AddBlock(unsealed), ErrInvalidBlock)
	assert.ErrorIs(t, bc.AddBlock(nil), ErrInvalidBlock)

	assert.Zero(t, bc.Height(), "rejected blocks leave the chain untouched")
	assert.Equal(t, 2, bc.CurrentDifficulty())

	require.NoError(t, bc.AddBlock(good))
	assert.Equal(t, 1, bc.Height())
	assert.Equal(t, good.Difficulty, bc.CurrentDifficulty())

	// the same block cannot be appended twice
	assert.ErrorIs(t, bc.AddBlock(good), ErrInvalidBlock)
}

func TestSinksNotifiedInOrder(t *testing.T) {
	bc := newTestChain(t, 1, 5, nil)
	defer bc.Close()

	var order []string
	var seen []*Block
	bc.AddSink(BlockSinkFunc(func(_ context.Context, b *Block) error {
		order = append(order, "first")
		seen = append(seen, b)
		return nil
	}))
	bc.AddSink(BlockSinkFunc(func(_ context.Context, b *Block) error {
		order = append(order, "second")
		return nil
	}))

	require.NoError(t, bc.Run(context.Background()))
	require.Len(t, seen, bc.Height())
	for i, b := range seen {
		assert.Equal(t, bc.GetBlockByNumber(uint64(i)), b)
		assert.Equal(t, "first", order[2*i])
		assert.Equal(t, "second", order[2*i+1])
	}

	// sinks receive copies
	seen[0].Hash = "mutated"
	assert.NotEqual(t, "mutated", bc.GetBlockByNumber(0).Hash)
}

func TestSinkFailureAbortsRun(t *testing.T) {
	bc := newTestChain(t, 1, 40, nil)
	defer bc.Close()

	diskFull := errors.New("disk full")
	bc.AddSink(BlockSinkFunc(func(context.Context, *Block) error { return diskFull }))

	err := bc.Run(context.Background())
	assert.ErrorIs(t, err, diskFull)
	assert.Equal(t, 1, bc.Height(), "the appended block is kept")
	assert.NoError(t, bc.Verify())
}

func TestGetBlockLookups(t *testing.T) {
	bc := newTestChain(t, 1, 4, nil)
	defer bc.Close()
	assert.Nil(t, bc.GetCurrentBlock())

	require.NoError(t, bc.Run(context.Background()))
	head := bc.GetCurrentBlock()
	require.NotNil(t, head)

	assert.Equal(t, head, bc.GetBlockByHash(head.Hash))
	assert.Equal(t, head, bc.GetBlockByHash(head.Hash), "served from cache")
	assert.Nil(t, bc.GetBlockByHash("nope"))
	assert.Nil(t, bc.GetBlockByNumber(99))
	assert.NotEmpty(t, bc.RunID())
}

func TestPersistAndResume(t *testing.T) {
	db, err := database.NewMemoryLevelDB()
	require.NoError(t, err)
	defer db.Close()

	first, err := NewBlockchain(testConfig(1, 4), testEngine(5), db)
	require.NoError(t, err)
	require.NoError(t, first.Run(context.Background()))
	firstBlocks := first.Blocks()
	first.cache.Close()

	cfg := testConfig(1, 16)
	cfg.Resume = true
	resumed, err := NewBlockchain(cfg, testEngine(6), db)
	require.NoError(t, err)
	defer resumed.cache.Close()

	assert.Equal(t, firstBlocks, resumed.Blocks())
	assert.Equal(t, first.CurrentDifficulty(), resumed.CurrentDifficulty())

	require.NoError(t, resumed.Run(context.Background()))
	assert.Greater(t, resumed.Height(), len(firstBlocks))
	assert.NoError(t, resumed.Verify())

	stored, err := loadBlocks(db)
	require.NoError(t, err)
	assert.Equal(t, resumed.Blocks(), stored)
}

func TestResumeRejectsDifferentSeed(t *testing.T) {
	db, err := database.NewMemoryLevelDB()
	require.NoError(t, err)
	defer db.Close()

	first, err := NewBlockchain(testConfig(1, 3), testEngine(5), db)
	require.NoError(t, err)
	require.NoError(t, first.Run(context.Background()))
	first.cache.Close()

	cfg := testConfig(1, 8)
	cfg.SeedHash = crypto.SHA256.Sum([]byte("another seed")).Hex()
	cfg.Resume = true
	_, err = NewBlockchain(cfg, testEngine(6), db)
	assert.ErrorIs(t, err, ErrSeedMismatch)
}

func TestFreshRunDiscardsStoredBlocks(t *testing.T) {
	db, err := database.NewMemoryLevelDB()
	require.NoError(t, err)
	defer db.Close()

	first, err := NewBlockchain(testConfig(1, 4), testEngine(5), db)
	require.NoError(t, err)
	require.NoError(t, first.Run(context.Background()))
	first.cache.Close()

	fresh, err := NewBlockchain(testConfig(1, 4), testEngine(8), db)
	require.NoError(t, err)
	defer fresh.cache.Close()
	assert.Zero(t, fresh.Height())
	assert.Equal(t, 1, fresh.CurrentDifficulty())

	stored, err := loadBlocks(db)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestVerifyChainDetectsBrokenLinks(t *testing.T) {
	bc := newTestChain(t, 1, 6, nil)
	defer bc.Close()
	require.NoError(t, bc.Run(context.Background()))
	engine := bc.GetConsensusEngine()

	blocks := bc.Blocks()
	require.NoError(t, VerifyChain(blocks, engine, testSeed, 1))
	assert.ErrorIs(t, VerifyChain(blocks, engine, "wrong-seed", 1), ErrInvalidBlock)
	assert.ErrorIs(t, VerifyChain(blocks, engine, testSeed, 0), ErrInvalidBlock)

	if len(blocks) > 1 {
		swapped := []*Block{blocks[1], blocks[0]}
		assert.ErrorIs(t, VerifyChain(swapped, engine, testSeed, 1), ErrInvalidBlock)
	}

	forged := bc.Blocks()
	forged[0].Difficulty = 200
	assert.ErrorIs(t, VerifyChain(forged, engine, testSeed, 1), ErrInvalidBlock)
}

func TestMinerStartStop(t *testing.T) {
	bc := newTestChain(t, 60, 100, nil)
	defer bc.Close()
	m := NewMiner(bc)

	require.True(t, m.Start())
	assert.False(t, m.Start(), "second start is refused")
	assert.True(t, m.IsRunning())
	time.Sleep(20 * time.Millisecond)

	m.Stop()
	assert.False(t, m.IsRunning())
	assert.NoError(t, m.Wait())
	stats := m.Stats()
	assert.False(t, stats.IsActive)
	assert.Equal(t, StatusBuilding, stats.Status)
	assert.Equal(t, 100, stats.TargetDifficulty)
}

func TestMinerRunsToCompletion(t *testing.T) {
	bc := newTestChain(t, 1, 5, nil)
	defer bc.Close()
	m := NewMiner(bc)

	require.True(t, m.Start())
	require.NoError(t, m.Wait())
	assert.False(t, m.IsRunning())
	assert.True(t, bc.IsComplete())

	stats := m.Stats()
	assert.Equal(t, bc.Height(), stats.BlocksFound)
	assert.Equal(t, StatusComplete, stats.Status)
	assert.False(t, m.Start(), "complete chain cannot be mined further")
}

func TestConcurrentMineNextBuildsOnNewHead(t *testing.T) {
	bc, err := NewBlockchain(testConfig(1, 200), consensus.NewProofOfWork(crypto.SHA256, nil), nil)
	require.NoError(t, err)
	defer bc.Close()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = bc.MineNext(context.Background())
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 2, bc.Height())
	blocks := bc.Blocks()
	assert.Equal(t, blocks[0].Hash, blocks[1].PreviousHash)
	assert.NoError(t, bc.Verify())
}

func TestMineNextHonorsCancelledContext(t *testing.T) {
	bc := newTestChain(t, 1, 10, nil)
	defer bc.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := bc.MineNext(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, bc.Height())
}

type failingWriteDB struct {
	database.Database
}

func (failingWriteDB) Write(*database.Batch) error { return errors.New("disk full") }

func TestFailedSaveLeavesNoPartialBlock(t *testing.T) {
	mem, err := database.NewMemoryLevelDB()
	require.NoError(t, err)
	db := failingWriteDB{mem}
	defer db.Close()

	bc, err := NewBlockchain(testConfig(1, 4), testEngine(11), db)
	require.NoError(t, err)
	defer bc.cache.Close()

	_, err = bc.MineNext(context.Background())
	require.Error(t, err)
	assert.Zero(t, bc.Height())

	stored, err := loadBlocks(mem)
	require.NoError(t, err)
	assert.Empty(t, stored)
	head, err := mem.Get(keyHead)
	require.NoError(t, err)
	assert.Nil(t, head)
}

package cmd

import (
	"errors"
	"fmt"

	"powchain/config"
	"powchain/consensus"
	"powchain/core"
	"powchain/crypto"
	"powchain/database"
	"powchain/logger"
)

var errDatabaseDisabled = errors.New("the block index is disabled (enable_db=false)")

// openChain wires the hasher, the consensus engine and the block index into a chain.
func openChain(cfg *config.Config, resume bool) (*core.Blockchain, error) {
	hasher, err := crypto.NewHasher(cfg.HashAlgorithm)
	if err != nil {
		logger.Fatalf("Unsupported hash algorithm '%s': %v", cfg.HashAlgorithm, err)
	}
	engine := consensus.NewProofOfWork(hasher, &consensus.Config{
		Threads: cfg.Threads,
		Timeout: cfg.MiningTimeout,
	})

	var db database.Database
	if cfg.EnableDB {
		db, err = database.Open(cfg.DBBackend, cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s database in %s: %v", cfg.DBBackend, cfg.DataDir, err)
		}
	} else {
		logger.Info("Block index disabled; the chain lives in memory only.")
	}

	chainCfg := cfg.ChainConfig()
	chainCfg.Resume = resume
	bc, err := core.NewBlockchain(chainCfg, engine, db)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, fmt.Errorf("failed to initialize blockchain: %w", err)
	}
	return bc, nil
}

// openStoredChain reloads and verifies the persisted chain for the inspection commands.
func openStoredChain() (*core.Blockchain, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.EnableDB {
		return nil, errDatabaseDisabled
	}
	return openChain(cfg, true)
}

func closeChain(bc *core.Blockchain) {
	if err := bc.Close(); err != nil {
		logger.Errorf("Failed to close blockchain: %v", err)
	}
}

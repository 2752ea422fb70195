package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"powchain/logger"
)

// Miner runs chain assembly in the background so it can be started and stopped on demand.
type Miner struct {
	blockchain  *Blockchain
	running     bool
	mu          sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
	startTime   time.Time
	startHeight int
	lastErr     error
}

// MinerStats is a point-in-time view of the background miner.
type MinerStats struct {
	IsActive          bool   `json:"isActive"`
	BlocksFound       int    `json:"blocksFound"`
	Height            int    `json:"height"`
	CurrentDifficulty int    `json:"currentDifficulty"`
	TargetDifficulty  int    `json:"targetDifficulty"`
	Status            Status `json:"status"`
	StartTime         int64  `json:"startTime,omitempty"`
	LastError         string `json:"lastError,omitempty"`
}

func NewMiner(blockchain *Blockchain) *Miner {
	return &Miner{blockchain: blockchain}
}

// Start launches Run in a goroutine. It returns false if the miner is already running
// or the chain is complete.
func (m *Miner) Start() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		logger.Info("Miner already running.")
		return false
	}
	if m.blockchain.IsComplete() {
		logger.Info("Miner: chain already complete, nothing to mine.")
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})
	m.startTime = time.Now()
	m.startHeight = m.blockchain.Height()
	m.lastErr = nil

	logger.Infof("Starting miner for %s", m.blockchain.GetConfig().Miner)
	go m.loop(ctx, m.done)
	return true
}

func (m *Miner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	err := m.blockchain.Run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	m.mu.Lock()
	m.running = false
	m.lastErr = err
	m.cancel = nil
	m.mu.Unlock()
	if err != nil {
		logger.Errorf("Miner stopped with error: %v", err)
	} else {
		logger.Info("Miner work loop finished.")
	}
}

// Stop cancels the running search and waits for the loop to exit.
func (m *Miner) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		logger.Info("Miner is not running.")
		return
	}
	logger.Info("Stopping miner...")
	m.cancel()
	done := m.done
	m.mu.Unlock()

	<-done
	logger.Info("Miner stopped.")
}

// Wait blocks until the current run ends and returns its error.
func (m *Miner) Wait() error {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done != nil {
		<-done
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Miner) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Miner) Stats() MinerStats {
	m.mu.Lock()
	stats := MinerStats{
		IsActive: m.running,
	}
	if !m.startTime.IsZero() {
		stats.StartTime = m.startTime.Unix()
	}
	if m.lastErr != nil {
		stats.LastError = m.lastErr.Error()
	}
	startHeight := m.startHeight
	started := !m.startTime.IsZero()
	m.mu.Unlock()

	stats.Height = m.blockchain.Height()
	if started {
		stats.BlocksFound = stats.Height - startHeight
	}
	stats.CurrentDifficulty = m.blockchain.CurrentDifficulty()
	stats.TargetDifficulty = m.blockchain.TargetDifficulty()
	stats.Status = m.blockchain.Status()
	return stats
}

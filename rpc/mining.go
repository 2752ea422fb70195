package rpc

import (
	"errors"
	"net/http"

	"powchain/core"
	"powchain/logger"
)

type MiningAPI struct {
	blockchain *core.Blockchain
	miner      *core.Miner
}

// MiningStats adds engine details to the miner's own stats.
type MiningStats struct {
	core.MinerStats
	Algorithm string `json:"algorithm"`
	Miner     string `json:"miner"`
}

func NewMiningAPI(blockchain *core.Blockchain, miner *core.Miner) *MiningAPI {
	if miner == nil {
		miner = core.NewMiner(blockchain)
	}
	return &MiningAPI{
		blockchain: blockchain,
		miner:      miner,
	}
}

func (api *MiningAPI) StartHandler(w http.ResponseWriter, r *http.Request) {
	if setCORS(w, r, "POST, OPTIONS") {
		return
	}
	if api.blockchain.IsComplete() {
		writeError(w, http.StatusConflict, "Chain already reached target difficulty")
		return
	}
	if !api.miner.Start() {
		writeError(w, http.StatusConflict, "Mining already active")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Mining started successfully",
		"stats":   api.stats(),
	})
}

func (api *MiningAPI) StopHandler(w http.ResponseWriter, r *http.Request) {
	if setCORS(w, r, "POST, OPTIONS") {
		return
	}
	if !api.miner.IsRunning() {
		writeError(w, http.StatusConflict, "Mining not active")
		return
	}
	api.miner.Stop()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Mining stopped successfully",
		"stats":   api.stats(),
	})
}

func (api *MiningAPI) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if setCORS(w, r, "GET, OPTIONS") {
		return
	}
	writeJSON(w, http.StatusOK, api.stats())
}

// MineBlockHandler mines exactly one block in the request goroutine.
func (api *MiningAPI) MineBlockHandler(w http.ResponseWriter, r *http.Request) {
	if setCORS(w, r, "POST, OPTIONS") {
		return
	}
	if api.miner.IsRunning() {
		writeError(w, http.StatusConflict, "Background mining is active")
		return
	}

	block, err := api.blockchain.MineNext(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, core.ErrChainComplete) {
			status = http.StatusConflict
		}
		logger.Warningf("MiningAPI: mine-block failed: %v", err)
		writeError(w, status, "Failed to mine block: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"blockNumber": block.Number,
		"hash":        block.Hash,
		"difficulty":  block.Difficulty,
	})
}

func (api *MiningAPI) stats() MiningStats {
	return MiningStats{
		MinerStats: api.miner.Stats(),
		Algorithm:  api.blockchain.GetConsensusEngine().Algorithm(),
		Miner:      api.blockchain.GetConfig().Miner,
	}
}

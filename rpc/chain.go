package rpc

import (
	"net/http"
	"strconv"
	"strings"

	"powchain/core"

	"github.com/gorilla/mux"
)

type ChainAPI struct {
	blockchain *core.Blockchain
}

// ChainSummary is returned by GET /api/chain and pow_status.
type ChainSummary struct {
	RunID             string      `json:"runId"`
	Miner             string      `json:"miner"`
	Algorithm         string      `json:"algorithm"`
	SeedHash          string      `json:"seedHash"`
	Height            int         `json:"height"`
	CurrentDifficulty int         `json:"currentDifficulty"`
	TargetDifficulty  int         `json:"targetDifficulty"`
	Status            core.Status `json:"status"`
	Head              *core.Block `json:"head,omitempty"`
}

func NewChainAPI(blockchain *core.Blockchain) *ChainAPI {
	return &ChainAPI{
		blockchain: blockchain,
	}
}

func (api *ChainAPI) summary() ChainSummary {
	cfg := api.blockchain.GetConfig()
	return ChainSummary{
		RunID:             api.blockchain.RunID(),
		Miner:             cfg.Miner,
		Algorithm:         api.blockchain.GetConsensusEngine().Algorithm(),
		SeedHash:          cfg.SeedHash,
		Height:            api.blockchain.Height(),
		CurrentDifficulty: api.blockchain.CurrentDifficulty(),
		TargetDifficulty:  api.blockchain.TargetDifficulty(),
		Status:            api.blockchain.Status(),
		Head:              api.blockchain.GetCurrentBlock(),
	}
}

func (api *ChainAPI) SummaryHandler(w http.ResponseWriter, r *http.Request) {
	if setCORS(w, r, "GET, OPTIONS") {
		return
	}
	writeJSON(w, http.StatusOK, api.summary())
}

// BlocksHandler lists blocks, optionally windowed by ?from= and ?limit=.
func (api *ChainAPI) BlocksHandler(w http.ResponseWriter, r *http.Request) {
	if setCORS(w, r, "GET, OPTIONS") {
		return
	}
	blocks := api.blockchain.Blocks()

	q := r.URL.Query()
	from, limit := 0, len(blocks)
	if v := q.Get("from"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid from parameter")
			return
		}
		from = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		limit = n
	}
	if from > len(blocks) {
		from = len(blocks)
	}
	end := len(blocks)
	if limit < end-from {
		end = from + limit
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":  len(blocks),
		"blocks": blocks[from:end],
	})
}

func (api *ChainAPI) BlockByNumberHandler(w http.ResponseWriter, r *http.Request) {
	if setCORS(w, r, "GET, OPTIONS") {
		return
	}
	number, err := parseBlockNumber(mux.Vars(r)["number"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid block number")
		return
	}
	block := api.blockchain.GetBlockByNumber(number)
	if block == nil {
		writeError(w, http.StatusNotFound, "Block not found")
		return
	}
	writeJSON(w, http.StatusOK, block)
}

func (api *ChainAPI) BlockByHashHandler(w http.ResponseWriter, r *http.Request) {
	if setCORS(w, r, "GET, OPTIONS") {
		return
	}
	block := api.blockchain.GetBlockByHash(strings.ToLower(mux.Vars(r)["hash"]))
	if block == nil {
		writeError(w, http.StatusNotFound, "Block not found")
		return
	}
	writeJSON(w, http.StatusOK, block)
}

func (api *ChainAPI) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	if setCORS(w, r, "GET, OPTIONS") {
		return
	}
	resp := map[string]interface{}{
		"valid":  true,
		"height": api.blockchain.Height(),
	}
	if err := api.blockchain.Verify(); err != nil {
		resp["valid"] = false
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

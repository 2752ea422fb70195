package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	mrand "math/rand/v2"
	"net/http"
	"net/http/httptest"
	"testing"

	"powchain/consensus"
	"powchain/core"
	"powchain/crypto"
	"powchain/interfaces"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSeed = "00000a2ed46cd277a0edc3f17ff3df541b034345f4696d75744279166e19d8eb"

func newChain(t *testing.T, start, target int) *core.Blockchain {
	t.Helper()
	engine := consensus.NewProofOfWork(crypto.SHA256, &consensus.Config{
		Sources: func(worker int) interfaces.NonceSource {
			return mrand.New(mrand.NewPCG(7, uint64(worker)))
		},
	})
	bc, err := core.NewBlockchain(&core.Config{
		Miner:            "SpicyChilliNuts",
		SeedHash:         testSeed,
		StartDifficulty:  start,
		TargetDifficulty: target,
	}, engine, nil)
	require.NoError(t, err)
	t.Cleanup(func() { bc.Close() })
	return bc
}

func minedServer(t *testing.T) (*Server, *core.Blockchain) {
	bc := newChain(t, 0, 3)
	require.NoError(t, bc.Run(context.Background()))
	return NewServer(&Config{Host: "127.0.0.1", Port: 0}, bc, nil), bc
}

func do(t *testing.T, s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func callRPC(t *testing.T, s *Server, method string, params ...interface{}) JSONRPCResponse {
	t.Helper()
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(JSONRPCRequest{ID: 1, Method: method, Params: params, Version: "2.0"})
	require.NoError(t, err)
	rec := do(t, s, http.MethodPost, "/", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp JSONRPCResponse
	decode(t, rec, &resp)
	return resp
}

func TestHealthAndCORS(t *testing.T) {
	s, _ := minedServer(t)
	rec := do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, s, http.MethodOptions, "/api/chain", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestChainEndpoints(t *testing.T) {
	s, bc := minedServer(t)
	blocks := bc.Blocks()
	require.NotEmpty(t, blocks)
	head := blocks[len(blocks)-1]

	var summary ChainSummary
	rec := do(t, s, http.MethodGet, "/api/chain", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &summary)
	assert.Equal(t, len(blocks), summary.Height)
	assert.Equal(t, core.StatusComplete, summary.Status)
	assert.Equal(t, 3, summary.TargetDifficulty)
	assert.Equal(t, crypto.AlgSHA256, summary.Algorithm)
	assert.Equal(t, head.Hash, summary.Head.Hash)

	var list struct {
		Total  int           `json:"total"`
		Blocks []*core.Block `json:"blocks"`
	}
	rec = do(t, s, http.MethodGet, "/api/chain/blocks?from=0&limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &list)
	assert.Equal(t, len(blocks), list.Total)
	require.Len(t, list.Blocks, 1)
	assert.Equal(t, blocks[0].Hash, list.Blocks[0].Hash)

	rec = do(t, s, http.MethodGet, "/api/chain/blocks?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var got core.Block
	rec = do(t, s, http.MethodGet, fmt.Sprintf("/api/chain/blocks/%d", head.Number), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &got)
	assert.Equal(t, head.Hash, got.Hash)

	rec = do(t, s, http.MethodGet, "/api/chain/blocks/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, s, http.MethodGet, "/api/chain/blocks/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/chain/hash/"+blocks[0].Hash, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &got)
	assert.Equal(t, uint64(0), got.Number)
	rec = do(t, s, http.MethodGet, "/api/chain/hash/deadbeef", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var verify map[string]interface{}
	rec = do(t, s, http.MethodGet, "/api/chain/verify", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &verify)
	assert.Equal(t, true, verify["valid"])
}

func TestJSONRPCMethods(t *testing.T) {
	s, bc := minedServer(t)
	head := bc.GetCurrentBlock()
	require.NotNil(t, head)

	resp := callRPC(t, s, "pow_blockNumber")
	assert.Nil(t, resp.Error)
	assert.Equal(t, fmt.Sprintf("0x%x", head.Number), resp.Result)

	resp = callRPC(t, s, "pow_difficulty")
	assert.Equal(t, float64(bc.CurrentDifficulty()), resp.Result)

	resp = callRPC(t, s, "pow_getBlockByNumber", "0x0")
	require.Nil(t, resp.Error)
	assert.Equal(t, bc.GetBlockByNumber(0).Hash, resp.Result.(map[string]interface{})["hash"])

	resp = callRPC(t, s, "pow_getBlockByNumber", "latest")
	assert.Equal(t, head.Hash, resp.Result.(map[string]interface{})["hash"])

	resp = callRPC(t, s, "pow_getBlockByNumber", 500)
	assert.Nil(t, resp.Error)
	assert.Nil(t, resp.Result)

	resp = callRPC(t, s, "pow_getBlockByHash", head.Hash)
	assert.Equal(t, head.Hash, resp.Result.(map[string]interface{})["hash"])

	resp = callRPC(t, s, "pow_status")
	assert.Equal(t, string(core.StatusComplete), resp.Result.(map[string]interface{})["status"])

	resp = callRPC(t, s, "pow_getBlockByNumber")
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeInvalidParams, resp.Error.Code)

	resp = callRPC(t, s, "eth_chainId")
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeMethodNotFound, resp.Error.Code)

	rec := do(t, s, http.MethodPost, "/", []byte("{not json"))
	var parseResp JSONRPCResponse
	decode(t, rec, &parseResp)
	require.NotNil(t, parseResp.Error)
	assert.Equal(t, codeParseError, parseResp.Error.Code)
}

func TestMiningStartStop(t *testing.T) {
	bc := newChain(t, 60, 100)
	miner := core.NewMiner(bc)
	s := NewServer(&Config{Host: "127.0.0.1", Port: 0}, bc, miner)

	rec := do(t, s, http.MethodPost, "/api/mining/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, miner.IsRunning())

	rec = do(t, s, http.MethodPost, "/api/mining/start", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/mining/mine-block", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	var stats MiningStats
	rec = do(t, s, http.MethodGet, "/api/mining/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &stats)
	assert.True(t, stats.IsActive)
	assert.Equal(t, 100, stats.TargetDifficulty)
	assert.Equal(t, "SpicyChilliNuts", stats.Miner)

	rec = do(t, s, http.MethodPost, "/api/mining/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, miner.IsRunning())

	rec = do(t, s, http.MethodPost, "/api/mining/stop", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMineBlockEndpoint(t *testing.T) {
	bc := newChain(t, 0, 2)
	s := NewServer(&Config{}, bc, nil)

	for !bc.IsComplete() {
		rec := do(t, s, http.MethodPost, "/api/mining/mine-block", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := do(t, s, http.MethodPost, "/api/mining/mine-block", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/mining/start", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"powchain/core"
	"powchain/logger"

	"github.com/gorilla/mux"
)

type Config struct {
	Host string
	Port int
}

type Server struct {
	config     *Config
	blockchain *core.Blockchain
	server     *http.Server
	router     *mux.Router
	chainAPI   *ChainAPI
	miningAPI  *MiningAPI
}

type JSONRPCRequest struct {
	ID      interface{}   `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	Version string        `json:"jsonrpc"`
}

type JSONRPCResponse struct {
	ID      interface{}   `json:"id"`
	Result  interface{}   `json:"result"`
	Error   *JSONRPCError `json:"error,omitempty"`
	Version string        `json:"jsonrpc"`
}

type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

var (
	errMethodNotFound = errors.New("method not found")
	errInvalidParams  = errors.New("invalid params")
)

func NewServer(config *Config, blockchain *core.Blockchain, miner *core.Miner) *Server {
	s := &Server{
		config:     config,
		blockchain: blockchain,
		chainAPI:   NewChainAPI(blockchain),
		miningAPI:  NewMiningAPI(blockchain, miner),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/", s.handleRPC).Methods("POST", "OPTIONS")
	router.HandleFunc("/health", s.handleHealth).Methods("GET", "OPTIONS")

	api := router.PathPrefix("/api").Subrouter()

	chain := api.PathPrefix("/chain").Subrouter()
	chain.HandleFunc("", s.chainAPI.SummaryHandler).Methods("GET", "OPTIONS")
	chain.HandleFunc("/blocks", s.chainAPI.BlocksHandler).Methods("GET", "OPTIONS")
	chain.HandleFunc("/blocks/{number}", s.chainAPI.BlockByNumberHandler).Methods("GET", "OPTIONS")
	chain.HandleFunc("/hash/{hash}", s.chainAPI.BlockByHashHandler).Methods("GET", "OPTIONS")
	chain.HandleFunc("/verify", s.chainAPI.VerifyHandler).Methods("GET", "OPTIONS")

	mining := api.PathPrefix("/mining").Subrouter()
	mining.HandleFunc("/start", s.miningAPI.StartHandler).Methods("POST", "OPTIONS")
	mining.HandleFunc("/stop", s.miningAPI.StopHandler).Methods("POST", "OPTIONS")
	mining.HandleFunc("/stats", s.miningAPI.StatsHandler).Methods("GET", "OPTIONS")
	mining.HandleFunc("/mine-block", s.miningAPI.MineBlockHandler).Methods("POST", "OPTIONS")

	return router
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("RPC server error: %v", err)
		}
	}()

	logger.Infof("JSON-RPC server with REST API started on %s", addr)
	return nil
}

func (s *Server) Stop() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		logger.Errorf("RPC server graceful shutdown error: %v", err)
		s.server.Close()
	}
	logger.Info("JSON-RPC server stopped")
}

// setCORS writes the CORS headers and reports whether the request was a preflight.
func setCORS(w http.ResponseWriter, r *http.Request, methods string) bool {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", methods)
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debugf("RPC: failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if setCORS(w, r, "GET, OPTIONS") {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if setCORS(w, r, "POST, OPTIONS") {
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, nil, codeParseError, "Parse error")
		return
	}

	result, err := s.handleMethod(req.Method, req.Params)
	if err != nil {
		code := codeInternalError
		switch {
		case errors.Is(err, errMethodNotFound):
			code = codeMethodNotFound
		case errors.Is(err, errInvalidParams):
			code = codeInvalidParams
		}
		s.sendError(w, req.ID, code, err.Error())
		return
	}

	json.NewEncoder(w).Encode(JSONRPCResponse{
		ID:      req.ID,
		Result:  result,
		Version: "2.0",
	})
}

func (s *Server) sendError(w http.ResponseWriter, id interface{}, code int, message string) {
	json.NewEncoder(w).Encode(JSONRPCResponse{
		ID:      id,
		Error:   &JSONRPCError{Code: code, Message: message},
		Version: "2.0",
	})
}

func (s *Server) handleMethod(method string, params []interface{}) (interface{}, error) {
	switch method {
	case "pow_blockNumber":
		return s.powBlockNumber()
	case "pow_difficulty":
		return s.blockchain.CurrentDifficulty(), nil
	case "pow_getBlockByNumber":
		return s.powGetBlockByNumber(params)
	case "pow_getBlockByHash":
		return s.powGetBlockByHash(params)
	case "pow_status":
		return s.chainAPI.summary(), nil
	default:
		return nil, fmt.Errorf("%w: %s", errMethodNotFound, method)
	}
}

func (s *Server) powBlockNumber() (interface{}, error) {
	current := s.blockchain.GetCurrentBlock()
	if current == nil {
		return nil, nil
	}
	return fmt.Sprintf("0x%x", current.Number), nil
}

func (s *Server) powGetBlockByNumber(params []interface{}) (interface{}, error) {
	if len(params) < 1 {
		return nil, fmt.Errorf("%w: missing block number parameter", errInvalidParams)
	}
	var number uint64
	switch v := params[0].(type) {
	case float64:
		if v < 0 {
			return nil, fmt.Errorf("%w: negative block number", errInvalidParams)
		}
		number = uint64(v)
	case string:
		if v == "latest" {
			if current := s.blockchain.GetCurrentBlock(); current != nil {
				return current, nil
			}
			return nil, nil
		}
		n, err := parseBlockNumber(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errInvalidParams, err)
		}
		number = n
	default:
		return nil, fmt.Errorf("%w: block number must be a string or number", errInvalidParams)
	}
	if block := s.blockchain.GetBlockByNumber(number); block != nil {
		return block, nil
	}
	return nil, nil
}

func (s *Server) powGetBlockByHash(params []interface{}) (interface{}, error) {
	if len(params) < 1 {
		return nil, fmt.Errorf("%w: missing block hash parameter", errInvalidParams)
	}
	hash, ok := params[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: block hash parameter must be a string", errInvalidParams)
	}
	if block := s.blockchain.GetBlockByHash(strings.ToLower(hash)); block != nil {
		return block, nil
	}
	return nil, nil
}

// parseBlockNumber accepts 0x-prefixed hex or decimal.
func parseBlockNumber(s string) (uint64, error) {
	if strings.HasPrefix(s, "0x") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}

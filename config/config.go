package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"powchain/core"
	"powchain/crypto"
	"powchain/database"
	"powchain/logger"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// Tags are used by viper to map ENV variables and config file keys.
type Config struct {
	DataDir string `mapstructure:"datadir"`

	// Chain configuration
	Miner            string `mapstructure:"miner"`
	StartDifficulty  int    `mapstructure:"start_difficulty"`
	TargetDifficulty int    `mapstructure:"target_difficulty"`
	SeedHash         string `mapstructure:"seed_hash"`
	Resume           bool   `mapstructure:"resume"`

	// Mining configuration
	HashAlgorithm string        `mapstructure:"hash_algorithm"`
	Threads       int           `mapstructure:"threads"`
	MiningTimeout time.Duration `mapstructure:"mining_timeout"` // per block, 0 disables

	// Database configuration
	EnableDB  bool          `mapstructure:"enable_db"`
	DBBackend string        `mapstructure:"db_backend"` // leveldb or bolt
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`

	// Output configuration
	EnableBlockLog bool   `mapstructure:"enable_block_log"`
	BlockLog       string `mapstructure:"block_log"` // relative paths live under datadir
	PrintChain     bool   `mapstructure:"print_chain"`

	// Logging configuration
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // text or json

	// RPC configuration
	EnableRPC bool   `mapstructure:"enable_rpc"`
	RPCAddr   string `mapstructure:"rpcaddr"`
	RPCPort   int    `mapstructure:"rpcport"`

	// Notification configuration
	RedisAddr    string `mapstructure:"redis_addr"`
	RedisChannel string `mapstructure:"redis_channel"`
}

var defaultConfig = Config{
	DataDir:          "./powchain_data",
	Miner:            "SpicyChilliNuts",
	StartDifficulty:  20,
	TargetDifficulty: 40,
	SeedHash:         "00000a2ed46cd277a0edc3f17ff3df541b034345f4696d75744279166e19d8eb",
	Resume:           false,
	HashAlgorithm:    crypto.AlgSHA256,
	Threads:          1,
	MiningTimeout:    0,
	EnableDB:         true,
	DBBackend:        database.BackendLevelDB,
	CacheTTL:         5 * time.Minute,
	EnableBlockLog:   true,
	BlockLog:         "blocks.txt",
	PrintChain:       false,
	LogLevel:         "info",
	LogFormat:        "text",
	EnableRPC:        false,
	RPCAddr:          "127.0.0.1",
	RPCPort:          8645,
	RedisAddr:        "",
	RedisChannel:     "powchain:blocks",
}

// DefaultConfig is exported so the CLI can use the defaults for its flags.
var DefaultConfig = defaultConfig

// LoadConfig loads configuration from file, environment variables, and flags.
func LoadConfig() (*Config, error) {
	currentConfig := DefaultConfig

	if err := viper.Unmarshal(&currentConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config from Viper: %v", err)
	}

	logger.Debugf("Effective config: DataDir='%s', Miner='%s', Start=%d, Target=%d, Algorithm=%s, Threads=%d, DB=%t(%s), RPC=%t(%s:%d), Redis='%s'",
		currentConfig.DataDir, currentConfig.Miner, currentConfig.StartDifficulty, currentConfig.TargetDifficulty,
		currentConfig.HashAlgorithm, currentConfig.Threads, currentConfig.EnableDB, currentConfig.DBBackend,
		currentConfig.EnableRPC, currentConfig.RPCAddr, currentConfig.RPCPort, currentConfig.RedisAddr)

	if err := validateAndCreateDirs(&currentConfig); err != nil {
		return nil, fmt.Errorf("config validation and directory creation failed: %v", err)
	}

	return &currentConfig, nil
}

func validateAndCreateDirs(config *Config) error {
	config.DataDir = strings.TrimSpace(config.DataDir)
	if config.DataDir == "" {
		return fmt.Errorf("datadir cannot be empty")
	}
	if err := os.MkdirAll(config.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory '%s': %v", config.DataDir, err)
	}

	config.Miner = strings.TrimSpace(config.Miner)
	if config.Miner == "" {
		logger.Warningf("Miner is empty, using default: %s", DefaultConfig.Miner)
		config.Miner = DefaultConfig.Miner
	}

	config.SeedHash = strings.TrimSpace(config.SeedHash)
	if _, err := crypto.ParseDigest(config.SeedHash); err != nil {
		return fmt.Errorf("invalid seed_hash '%s': %v", config.SeedHash, err)
	}

	if config.StartDifficulty < 0 {
		return fmt.Errorf("invalid start_difficulty: %d. Must not be negative", config.StartDifficulty)
	}
	if config.TargetDifficulty <= config.StartDifficulty || config.TargetDifficulty > crypto.DigestBits {
		return fmt.Errorf("invalid target_difficulty: %d. Must be greater than start_difficulty %d and at most %d",
			config.TargetDifficulty, config.StartDifficulty, crypto.DigestBits)
	}

	if _, err := crypto.NewHasher(config.HashAlgorithm); err != nil {
		return fmt.Errorf("invalid hash_algorithm '%s': supported are %v", config.HashAlgorithm, crypto.SupportedAlgorithms())
	}

	if config.Threads < 1 {
		logger.Warningf("Threads is invalid (%d), using default: %d", config.Threads, DefaultConfig.Threads)
		config.Threads = DefaultConfig.Threads
	}
	if config.MiningTimeout < 0 {
		logger.Warningf("mining_timeout is negative (%v), disabling it", config.MiningTimeout)
		config.MiningTimeout = 0
	}

	switch strings.ToLower(config.DBBackend) {
	case database.BackendLevelDB, database.BackendBolt:
		config.DBBackend = strings.ToLower(config.DBBackend)
	default:
		return fmt.Errorf("invalid db_backend '%s': must be %s or %s", config.DBBackend, database.BackendLevelDB, database.BackendBolt)
	}
	if config.CacheTTL <= 0 {
		logger.Warningf("cache_ttl is invalid (%v), using default: %v", config.CacheTTL, DefaultConfig.CacheTTL)
		config.CacheTTL = DefaultConfig.CacheTTL
	}

	config.BlockLog = strings.TrimSpace(config.BlockLog)
	if config.EnableBlockLog && config.BlockLog == "" {
		logger.Warningf("block_log is empty, using default: %s", DefaultConfig.BlockLog)
		config.BlockLog = DefaultConfig.BlockLog
	}

	if config.RPCPort <= 0 || config.RPCPort > 65535 {
		return fmt.Errorf("invalid RPC port: %d. Must be between 1 and 65535", config.RPCPort)
	}

	if config.RedisChannel == "" {
		config.RedisChannel = DefaultConfig.RedisChannel
	}

	return nil
}

func (c *Config) GetLogLevel() logger.LogLevel {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "trace":
		return logger.DEBUG
	case "info":
		return logger.INFO
	case "warn", "warning":
		return logger.WARNING
	case "error":
		return logger.ERROR
	case "fatal":
		return logger.FATAL
	default:
		logger.Warningf("Unknown log_level '%s', defaulting to INFO", c.LogLevel)
		return logger.INFO
	}
}

// ChainConfig converts the settings the chain needs into a core.Config.
func (c *Config) ChainConfig() *core.Config {
	return &core.Config{
		Miner:            c.Miner,
		SeedHash:         c.SeedHash,
		StartDifficulty:  c.StartDifficulty,
		TargetDifficulty: c.TargetDifficulty,
		Resume:           c.Resume,
		CacheTTL:         c.CacheTTL,
	}
}

// BlockLogPath resolves block_log against the data directory.
func (c *Config) BlockLogPath() string {
	if filepath.IsAbs(c.BlockLog) {
		return c.BlockLog
	}
	return filepath.Join(c.DataDir, c.BlockLog)
}

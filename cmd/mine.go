package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"powchain/config"
	"powchain/core"
	"powchain/ledger"
	"powchain/logger"
	"powchain/notify"
	"powchain/reporter"
	"powchain/rpc"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Mine blocks until the target difficulty is reached",
	Long: `Mine blocks on top of the seed hash. Every block must beat the difficulty
achieved by the previous one; the run ends once the target is reached.`,
	RunE: runMine,
}

func init() {
	flags := mineCmd.Flags()
	flags.Int("threads", config.DefaultConfig.Threads, "Parallel nonce search workers")
	flags.Duration("mining_timeout", config.DefaultConfig.MiningTimeout, "Give up on a block after this long (0 disables)")
	flags.Bool("resume", config.DefaultConfig.Resume, "Continue the chain stored in datadir instead of starting over")
	flags.String("block_log", config.DefaultConfig.BlockLog, "Append-only block log (relative to datadir)")
	flags.Bool("enable_block_log", config.DefaultConfig.EnableBlockLog, "Write the append-only block log")
	flags.Bool("print_chain", config.DefaultConfig.PrintChain, "Print the whole chain after every block")
	flags.Bool("enable_rpc", config.DefaultConfig.EnableRPC, "Serve the HTTP/JSON-RPC API while mining")
	flags.String("rpcaddr", config.DefaultConfig.RPCAddr, "RPC listen address")
	flags.Int("rpcport", config.DefaultConfig.RPCPort, "RPC port")
	flags.String("redis_addr", config.DefaultConfig.RedisAddr, "Publish mined blocks to this redis server")
	flags.String("redis_channel", config.DefaultConfig.RedisChannel, "Redis pub/sub channel for mined blocks")
	flags.Duration("cache_ttl", config.DefaultConfig.CacheTTL, "Lifetime of cached block lookups")

	for _, name := range []string{
		"threads", "mining_timeout", "resume", "block_log", "enable_block_log", "print_chain",
		"enable_rpc", "rpcaddr", "rpcport", "redis_addr", "redis_channel", "cache_ttl",
	} {
		viper.BindPFlag(name, flags.Lookup(name))
	}
}

func runMine(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.Info("Starting proof-of-work chain...")
	logger.Infof("Effective Configuration: DataDir=%s, Miner=%s, Difficulty=%d->%d, Algorithm=%s, Threads=%d, Resume=%t",
		cfg.DataDir, cfg.Miner, cfg.StartDifficulty, cfg.TargetDifficulty, cfg.HashAlgorithm, cfg.Threads, cfg.Resume)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	blockchain, err := openChain(cfg, cfg.Resume)
	if err != nil {
		return err
	}
	defer func() {
		logger.Info("Closing blockchain...")
		closeChain(blockchain)
	}()
	logger.Infof("Run ID: %s", blockchain.RunID())

	if cfg.EnableBlockLog {
		blockLog, err := ledger.Open(cfg.BlockLogPath())
		if err != nil {
			return fmt.Errorf("failed to open block log: %v", err)
		}
		defer blockLog.Close()
		blockchain.AddSink(blockLog)
		logger.Infof("Appending blocks to %s", blockLog.Path())
	}

	if !reporter.IsTerminal() {
		reporter.DisableColor()
	}
	blockchain.AddSink(reporter.NewConsole(nil, blockchain, cfg.PrintChain))

	if cfg.RedisAddr != "" {
		notifier, err := notify.NewRedisNotifier(ctx, cfg.RedisAddr, cfg.RedisChannel, blockchain.RunID())
		if err != nil {
			return err
		}
		defer notifier.Close()
		blockchain.AddSink(notifier)
	}

	miner := core.NewMiner(blockchain)

	if cfg.EnableRPC {
		rpcServer := rpc.NewServer(&rpc.Config{Host: cfg.RPCAddr, Port: cfg.RPCPort}, blockchain, miner)
		if err := rpcServer.Start(); err != nil {
			return fmt.Errorf("failed to start RPC server: %v", err)
		}
		defer rpcServer.Stop()
	}

	if blockchain.IsComplete() {
		logger.Infof("Chain already complete at difficulty %d (target %d).", blockchain.CurrentDifficulty(), cfg.TargetDifficulty)
	} else if miner.Start() {
		runErr := make(chan error, 1)
		go func() { runErr <- miner.Wait() }()

		select {
		case err := <-runErr:
			if err != nil {
				return fmt.Errorf("mining aborted at height %d: %w", blockchain.Height(), err)
			}
		case <-ctx.Done():
			logger.Info("Received stop signal, stopping miner...")
			miner.Stop()
			logger.Infof("Stopped at height %d, difficulty %d", blockchain.Height(), blockchain.CurrentDifficulty())
			return nil
		}
	}

	logger.Infof("Run %s finished: %d blocks, difficulty %d, target %d",
		blockchain.RunID(), blockchain.Height(), blockchain.CurrentDifficulty(), cfg.TargetDifficulty)

	if cfg.EnableRPC {
		logger.Info("Serving the chain over RPC. Press Ctrl+C to stop.")
		<-ctx.Done()
		// mining may have been restarted over RPC
		miner.Stop()
	}
	return nil
}

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"powchain/config"
	"powchain/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd is the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "powchain",
	Short: "Proof-of-work chain simulator",
	Long: `powchain mines a chain of blocks with a ratcheting leading-zero-bits
proof of work until the target difficulty is reached, and can inspect,
verify and serve the resulting chain.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(mineCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(printChainCmd)
	rootCmd.AddCommand(digestCmd)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.powchain/config.yaml or ./config.yaml)")

	// Defaults here are for help text; config.DefaultConfig still applies when nothing is set.
	flags := rootCmd.PersistentFlags()
	flags.String("datadir", config.DefaultConfig.DataDir, "Data directory for chain data and the block log")
	flags.String("miner", config.DefaultConfig.Miner, "Miner identity mixed into every block digest")
	flags.Int("start_difficulty", config.DefaultConfig.StartDifficulty, "Leading zero bits the first block must exceed")
	flags.Int("target_difficulty", config.DefaultConfig.TargetDifficulty, "Difficulty at which the chain is complete")
	flags.String("seed_hash", config.DefaultConfig.SeedHash, "Previous hash of the first block (64 lowercase hex chars)")
	flags.String("hash_algorithm", config.DefaultConfig.HashAlgorithm, "Digest algorithm (sha256, sha3-256, keccak256)")
	flags.String("db_backend", config.DefaultConfig.DBBackend, "Block index backend (leveldb, bolt)")
	flags.Bool("enable_db", config.DefaultConfig.EnableDB, "Persist blocks in the block index")
	flags.String("log_level", config.DefaultConfig.LogLevel, "Logging level (debug, info, warn, error, fatal)")
	flags.String("log_format", config.DefaultConfig.LogFormat, "Log format (text, json)")

	for _, name := range []string{
		"datadir", "miner", "start_difficulty", "target_difficulty", "seed_hash",
		"hash_algorithm", "db_backend", "enable_db", "log_level", "log_format",
	} {
		viper.BindPFlag(name, flags.Lookup(name))
	}
}

// initConfig reads in the config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".powchain"))
		}
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("POWCHAIN") // e.g. POWCHAIN_TARGET_DIFFICULTY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
		fmt.Fprintf(os.Stderr, "Error reading config file '%s': %s\n", viper.ConfigFileUsed(), err)
	}
}

// loadConfig loads the effective config and applies the logging settings.
func loadConfig() (*config.Config, error) {
	// set the format first so messages from LoadConfig already use it
	logger.SetFormat(viper.GetString("log_format"))
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %v", err)
	}
	logger.SetFormat(cfg.LogFormat)
	logger.SetLevel(cfg.GetLogLevel())
	return cfg, nil
}

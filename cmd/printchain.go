package cmd

import (
	"encoding/json"

	"powchain/reporter"

	"github.com/spf13/cobra"
)

var printChainJSON bool

var printChainCmd = &cobra.Command{
	Use:   "printchain",
	Short: "Print the chain stored in datadir",
	RunE:  runPrintChain,
}

func init() {
	printChainCmd.Flags().BoolVar(&printChainJSON, "json", false, "Print blocks as JSON")
}

func runPrintChain(cmd *cobra.Command, args []string) error {
	blockchain, err := openStoredChain()
	if err != nil {
		return err
	}
	defer closeChain(blockchain)

	if printChainJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(blockchain.Blocks())
	}

	if !reporter.IsTerminal() {
		reporter.DisableColor()
	}
	reporter.NewConsole(cmd.OutOrStdout(), blockchain, false).PrintChain()
	return nil
}

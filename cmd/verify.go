package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the chain stored in datadir",
	Long: `Reload every stored block and check its digest, its proof of work, its link
to the previous block and the difficulty ratchet.`,
	RunE: runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	blockchain, err := openStoredChain()
	if err != nil {
		return err
	}
	defer closeChain(blockchain)

	if err := blockchain.Verify(); err != nil {
		return fmt.Errorf("chain is invalid: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Chain valid: %d blocks, difficulty %d, target %d, status %s\n",
		blockchain.Height(), blockchain.CurrentDifficulty(), blockchain.TargetDifficulty(), blockchain.Status())
	return nil
}

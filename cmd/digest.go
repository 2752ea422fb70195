package cmd

import (
	"fmt"
	"strings"

	"powchain/crypto"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var digestBinary bool

var digestCmd = &cobra.Command{
	Use:   "digest <data>...",
	Short: "Hash the concatenated arguments and count leading zero bits",
	Long: `Hash the arguments joined without a separator, so
"digest <previous hash> <miner> <nonce>" reproduces a block hash.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDigest,
}

func init() {
	digestCmd.Flags().BoolVar(&digestBinary, "binary", false, "Also print the digest as a bit string")
}

func runDigest(cmd *cobra.Command, args []string) error {
	hasher, err := crypto.NewHasher(viper.GetString("hash_algorithm"))
	if err != nil {
		return err
	}
	hexDigest, d := crypto.Sum(hasher, []byte(strings.Join(args, "")))
	zeros, err := crypto.LeadingZeroBits(hexDigest)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Algorithm:    %s\n", hasher.Name())
	fmt.Fprintf(out, "Digest:       %s\n", hexDigest)
	if digestBinary {
		fmt.Fprintf(out, "Bits:         %s\n", d.Bits())
	}
	fmt.Fprintf(out, "Leading zero: %d bits\n", zeros)
	return nil
}

package cli

import (
	"fmt"

	"custody/internal/constant"
	"custody/internal/logic/wallet"

	"github.com/spf13/cobra"
)

var deriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Print the deposit address at an account index",
	Long:  `derive prints the address only. Private keys are never printed.`,
	RunE:  runDerive,
}

func init() {
	rootCmd.AddCommand(deriveCmd)

	deriveCmd.Flags().String("network", "", "solana, ethereum or tron")
	deriveCmd.Flags().Uint32("index", 0, "account index")
	_ = deriveCmd.MarkFlagRequired("network")
}

func runDerive(cmd *cobra.Command, args []string) error {
	raw, _ := cmd.Flags().GetString("network")
	index, _ := cmd.Flags().GetUint32("index")
	network, err := constant.ParseNetwork(raw)
	if err != nil {
		return err
	}

	c := loadConfig()
	deriver, err := wallet.NewKeyDeriverFromHex(c.Custody.MasterSeedHex)
	if err != nil {
		return err
	}
	path, err := wallet.DerivationPath(network, index)
	if err != nil {
		return err
	}
	address, err := deriver.Address(network, index)
	if err != nil {
		return err
	}
	fmt.Printf("%s\t%s\t%s\n", network, path, address)
	return nil
}

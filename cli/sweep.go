package cli

import (
	"encoding/json"
	"fmt"

	"custody/internal/constant"
	"custody/internal/svc"

	"github.com/spf13/cobra"
)

var sweepAllCmd = &cobra.Command{
	Use:   "sweep-all",
	Short: "Sweep every custodial address into the collection wallets",
	RunE:  runSweepAll,
}

var sweepUserCmd = &cobra.Command{
	Use:   "sweep-user",
	Short: "Sweep one user's custodial address",
	RunE:  runSweepUser,
}

func init() {
	rootCmd.AddCommand(sweepAllCmd)
	rootCmd.AddCommand(sweepUserCmd)

	sweepAllCmd.Flags().String("network", "", "limit to one network (solana, ethereum, tron)")

	sweepUserCmd.Flags().String("network", "", "network of the address (solana, ethereum, tron)")
	sweepUserCmd.Flags().String("user", "", "user id")
	_ = sweepUserCmd.MarkFlagRequired("network")
	_ = sweepUserCmd.MarkFlagRequired("user")
}

func runSweepAll(cmd *cobra.Command, args []string) error {
	raw, _ := cmd.Flags().GetString("network")
	var network constant.Network
	if raw != "" {
		n, err := constant.ParseNetwork(raw)
		if err != nil {
			return err
		}
		network = n
	}

	svcCtx := svc.NewServiceContext(loadConfig())
	defer svcCtx.Close()

	resp, err := svcCtx.Orchestrator.SweepAll(cmd.Context(), network)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runSweepUser(cmd *cobra.Command, args []string) error {
	raw, _ := cmd.Flags().GetString("network")
	user, _ := cmd.Flags().GetString("user")
	network, err := constant.ParseNetwork(raw)
	if err != nil {
		return err
	}

	svcCtx := svc.NewServiceContext(loadConfig())
	defer svcCtx.Close()

	res, err := svcCtx.Orchestrator.SweepUser(cmd.Context(), network, user)
	if err != nil {
		return err
	}
	if res == nil {
		fmt.Println("nothing to sweep")
		return nil
	}
	return printJSON(res)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

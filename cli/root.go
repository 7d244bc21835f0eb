package cli

import (
	"fmt"
	"os"

	"custody/internal/config"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/logx"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "custody",
	Short: "Custodial deposit detection and sweep engine",
	Long: `custody watches per-user deposit addresses on Solana, Ethereum and Tron,
credits detected deposits to a USD ledger and sweeps the funds into the
operator's collection wallets.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "f", "etc/custody.yaml", "the config file")
}

// loadConfig reads .env (if any) and then the YAML config, letting the
// environment fill env= tagged fields such as the master seed.
func loadConfig() config.Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logx.Errorf("load .env: %v", err)
	}

	var c config.Config
	conf.MustLoad(configFile, &c, conf.UseEnv())
	logx.MustSetup(c.Log)
	return c
}

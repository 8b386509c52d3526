package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.pilab.hu/authd/config"
	"go.pilab.hu/authd/log"
)

var (
	cfgFile   string
	cfg       *config.ServerConfig
	appLogger log.Logger
)

var rootCmd = &cobra.Command{
	Use:   "authd",
	Short: "authd is an OAuth2 authorization server",
	Long:  `authd issues, refreshes and introspects OAuth2 access tokens for registered clients and audiences.`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded

		appLogger = log.SetupGlobal(cfg.LogLevel, cfg.LogPretty)
		return nil
	},
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "authd:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(clientCmd)
	rootCmd.AddCommand(userCmd)
}

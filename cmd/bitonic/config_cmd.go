package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configInfo = "print the effective configuration as TOML"
var configCmd = &cobra.Command{
	Use:   "config",
	Short: configInfo,
	Long:  configInfo,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := effectiveConfig()
		if err != nil {
			return err
		}
		if used := viper.ConfigFileUsed(); used != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", used)
		}
		return cfg.Write(cmd.OutOrStdout())
	},
}

func initConfigCmd() {
	RootCmd.AddCommand(configCmd)
}

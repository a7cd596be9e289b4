package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/snoopsim/config"
)

var configOut string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the default configuration as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := config.DefaultConfig()
		if configOut != "" {
			return cfg.SaveConfig(configOut)
		}

		data, err := cfg.Marshal()
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), string(data))
		return err
	},
}

func init() {
	configCmd.Flags().StringVarP(&configOut, "out", "o", "", "Write the configuration to this file instead of stdout")
}

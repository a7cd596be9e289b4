package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

var rootCmd = &cobra.Command{
	Use:           "snoopsim",
	Short:         "Cycle-level simulator of snooping cache coherence on a shared bus",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Registered exit handlers run on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Error(err)
		atexit.Exit(1)
	}
	atexit.Run()
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
}

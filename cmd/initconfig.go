package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/longbox-labs/entity-verify/internal/config"
)

var initConfigPath string

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write a config.yaml populated with defaults",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := config.WriteExample(initConfigPath); err != nil {
			return err
		}
		zap.L().Info("wrote config file", zap.String("path", initConfigPath))
		return nil
	},
}

func init() {
	initConfigCmd.Flags().StringVar(&initConfigPath, "out", "config.yaml", "destination path")
	rootCmd.AddCommand(initConfigCmd)
}

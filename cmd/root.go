package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/longbox-labs/entity-verify/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "entity-verify",
	Short: "Multi-source comic entity verification pipeline",
	Long:  "Fetches character and creator data from Comic Vine, Marvel, and Superhero APIs, reconciles conflicting fields by source confidence, and writes verified records to the catalog.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

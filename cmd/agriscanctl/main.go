package main

import (
	"fmt"
	"os"

	"agriscan/internal/config"
	"agriscan/internal/logger"
	"agriscan/internal/repository/sqlite"
	"agriscan/internal/service"

	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "agriscanctl",
	Short: "Batch operations on the AgriScan image database",
	Long: `agriscanctl works on the same database and detector as the server.

Examples:
  agriscanctl import --dir ./photos     # upload every image in a directory
  agriscanctl analyze                   # analyze all pending images
  agriscanctl analyze ID1 ID2           # analyze selected images
  agriscanctl stats                     # database statistics
  agriscanctl diseases --format yaml    # disease catalog`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "optional .env file")
	rootCmd.AddCommand(importCmd, analyzeCmd, statsCmd, diseasesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openManager wires the services against the configured database. The
// returned close func stops the manager and closes the database.
func openManager() (*service.Manager, func(), error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	l, err := logger.NewLogger(cfg)
	if err != nil {
		return nil, nil, err
	}

	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}

	mng, err := service.NewManager(cfg, sqlite.NewImageRepository(db), sqlite.NewPredictionRepository(db), nil, l)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	return mng, func() {
		mng.Stop()
		db.Close()
		l.Sync()
	}, nil
}

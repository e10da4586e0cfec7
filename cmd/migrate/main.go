package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/listinginbox/backend/internal/config"
	"github.com/listinginbox/backend/internal/logging"
)

func main() {
	_ = godotenv.Load()
	_ = godotenv.Load("../.env")

	if err := newRootCmd().Execute(); err != nil {
		logging.Fatal("migrate failed", "error", err)
	}
}

func newRootCmd() *cobra.Command {
	var dir string
	var m *migrator

	root := &cobra.Command{
		Use:           "migrate",
		Short:         "差分マイグレーションを適用",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logging.Setup(cfg.Env)
			if cfg.DBDriver != config.DriverPostgres {
				return fmt.Errorf("migrate only supports %s; sqlite applies its schema on open", config.DriverPostgres)
			}
			pool, err := pgxpool.New(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			if dir == "" {
				dir = findMigrationDir()
			}
			m = &migrator{db: pool, dir: dir}
			cobra.OnFinalize(pool.Close)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return m.incremental(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&dir, "dir", "", "migrations directory (default: ./migrations or ../migrations)")

	root.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "全テーブルを DROP し、集約スキーマで再作成",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := m.dropAll(cmd.Context()); err != nil {
				return err
			}
			return m.consolidated(cmd.Context())
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "fresh",
		Short: "全テーブルを DROP し、全マイグレーションを順番に適用",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := m.dropAll(cmd.Context()); err != nil {
				return err
			}
			return m.incremental(cmd.Context())
		},
	})
	root.SetContext(context.Background())
	return root
}

func findMigrationDir() string {
	dir := "migrations"
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		dir = "../migrations"
	}
	return dir
}

// collectUpFiles は .up.sql ファイル名をソート済みで返す
func collectUpFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

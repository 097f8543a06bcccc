package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mjproxy/core/internal/config"
	"github.com/mjproxy/core/internal/store"
	"github.com/mjproxy/core/internal/store/pgstore"
	"github.com/mjproxy/core/internal/store/sqlitestore"
)

// loadSetting resolves config.Load() and applies any persistent flag
// overrides a subcommand was invoked with.
func loadSetting(cmd *cobra.Command) (*config.Setting, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if v, _ := cmd.Flags().GetString("store-backend"); v != "" {
		cfg.StoreBackend = v
	}
	if v, _ := cmd.Flags().GetString("sqlite-path"); v != "" {
		cfg.SQLitePath = v
	}
	if v, _ := cmd.Flags().GetString("postgres-dsn"); v != "" {
		cfg.PostgresDSN = v
	}
	return cfg, nil
}

// openStore opens the backend named by cfg.StoreBackend.
func openStore(cfg *config.Setting) (store.Store, error) {
	switch strings.ToLower(cfg.StoreBackend) {
	case "postgres":
		return pgstore.Open(cfg.PostgresDSN)
	case "sqlite", "":
		return sqlitestore.Open(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

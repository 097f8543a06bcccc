package main

import (
	"testing"

	"github.com/mjproxy/core/internal/config"
)

func TestOpenStoreRejectsUnknownBackend(t *testing.T) {
	cfg := &config.Setting{StoreBackend: "mongo"}
	if _, err := openStore(cfg); err == nil {
		t.Fatal("expected error for unknown store backend")
	}
}

func TestOpenStoreDefaultsToSQLite(t *testing.T) {
	cfg := &config.Setting{StoreBackend: "", SQLitePath: ":memory:"}
	st, err := openStore(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st == nil {
		t.Fatal("expected a non-nil store")
	}
}

package config

import "testing"

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("MJPROXY_STORE_BACKEND", "sqlite")
	t.Setenv("MJPROXY_POSTGRES_DSN", "")

	s, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.SelectorPolicy != "best-wait-idle" {
		t.Fatalf("expected default selector policy, got %s", s.SelectorPolicy)
	}
	if s.HTTPPort != 8080 {
		t.Fatalf("expected default http port 8080, got %d", s.HTTPPort)
	}
}

func TestLoadRejectsPostgresWithoutDSN(t *testing.T) {
	t.Setenv("MJPROXY_STORE_BACKEND", "postgres")
	t.Setenv("MJPROXY_POSTGRES_DSN", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing postgres dsn")
	}
}

func TestLoadRejectsUnknownSelectorPolicy(t *testing.T) {
	t.Setenv("MJPROXY_STORE_BACKEND", "sqlite")
	t.Setenv("MJPROXY_SELECTOR_POLICY", "bogus")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown selector policy")
	}
}

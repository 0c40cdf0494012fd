package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
	if cfg.Store != StoreMemory || cfg.TickPolicy != TickInterval {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.RegistryTimeout != 3*time.Second || cfg.IdleTimeout != 30*time.Second {
		t.Fatalf("unexpected timeouts: %+v", cfg)
	}
	if cfg.SocketBuffer != 32 {
		t.Fatalf("socket buffer = %d", cfg.SocketBuffer)
	}
	if cfg.MaxMessage != 1<<20 {
		t.Fatalf("max message = %d", cfg.MaxMessage)
	}
}

func TestLoadFromDotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	body := "ARENA_STORE=sqlite\nARENA_STORE_DSN=/tmp/arenas.db\nARENA_ORIGIN_PATTERNS=localhost:*,example.com\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.Unsetenv("ARENA_STORE")
		os.Unsetenv("ARENA_STORE_DSN")
		os.Unsetenv("ARENA_ORIGIN_PATTERNS")
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store != StoreSQLite || cfg.StoreDSN != "/tmp/arenas.db" {
		t.Fatalf("store not loaded: %+v", cfg)
	}
	if len(cfg.OriginPatterns) != 2 || cfg.OriginPatterns[1] != "example.com" {
		t.Fatalf("origins = %v", cfg.OriginPatterns)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown store", map[string]string{"ARENA_STORE": "etcd"}, "unknown store"},
		{"missing dsn", map[string]string{"ARENA_STORE": "redis"}, "ARENA_STORE_DSN"},
		{"unknown policy", map[string]string{"ARENA_TICK_POLICY": "sometimes"}, "tick policy"},
		{"zero max message", map[string]string{"ARENA_MAX_MESSAGE_BYTES": "0"}, "ARENA_MAX_MESSAGE_BYTES"},
		{"bad duration", map[string]string{"ARENA_IDLE_TIMEOUT": "soon"}, "parse env"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load(filepath.Join(t.TempDir(), "none.env"))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error containing %q, got %v", tc.want, err)
			}
		})
	}
}

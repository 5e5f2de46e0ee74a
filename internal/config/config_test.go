package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() Config {
	cfg := Config{}
	cfg.HTTP.Port = 8080
	cfg.Backends.Keyword.Enabled = true
	cfg.ApplyDefaults()
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.Search.TopK != 50 {
		t.Errorf("Search.TopK = %d, want 50", cfg.Search.TopK)
	}
	if cfg.Search.MaxWaitMS != 3000 {
		t.Errorf("Search.MaxWaitMS = %d, want 3000", cfg.Search.MaxWaitMS)
	}
	if cfg.Backends.Vector.Index != "retrio:content:idx" {
		t.Errorf("Vector.Index = %q", cfg.Backends.Vector.Index)
	}
	if cfg.Backends.Graph.MaxDepth != 2 {
		t.Errorf("Graph.MaxDepth = %d, want 2", cfg.Backends.Graph.MaxDepth)
	}
	if cfg.Verification.IntervalSec != 30 {
		t.Errorf("Verification.IntervalSec = %d, want 30", cfg.Verification.IntervalSec)
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		cfg := validConfig()
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
	})

	t.Run("bad port", func(t *testing.T) {
		cfg := validConfig()
		cfg.HTTP.Port = 0
		if err := cfg.Validate(); err == nil {
			t.Fatal("Validate() accepted port 0")
		}
	})

	t.Run("no backends enabled", func(t *testing.T) {
		cfg := validConfig()
		cfg.Backends.Keyword.Enabled = false
		if err := cfg.Validate(); err == nil {
			t.Fatal("Validate() accepted zero enabled backends")
		}
	})

	t.Run("vector without addrs", func(t *testing.T) {
		cfg := validConfig()
		cfg.Backends.Vector.Enabled = true
		cfg.Backends.Vector.Embedding.Model = "text-embedding-3-small"
		if err := cfg.Validate(); err == nil {
			t.Fatal("Validate() accepted vector backend without addrs")
		}
	})

	t.Run("vector without model", func(t *testing.T) {
		cfg := validConfig()
		cfg.Backends.Vector.Enabled = true
		cfg.Backends.Vector.Addrs = []string{"localhost:6379"}
		if err := cfg.Validate(); err == nil {
			t.Fatal("Validate() accepted vector backend without embedding model")
		}
	})

	t.Run("max wait above ceiling", func(t *testing.T) {
		cfg := validConfig()
		cfg.Search.MaxWaitMS = 20000
		cfg.Search.HardCeilingMS = 10000
		if err := cfg.Validate(); err == nil {
			t.Fatal("Validate() accepted max_wait above hard ceiling")
		}
	})

	t.Run("probe without query", func(t *testing.T) {
		cfg := validConfig()
		cfg.Verification.Probes = []ProbeConfig{{Backend: "keyword"}}
		if err := cfg.Validate(); err == nil {
			t.Fatal("Validate() accepted a probe without query text")
		}
	})
}

func TestLoadExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}

	yaml := `
http:
  port: ${RETRIO_TEST_PORT:-9090}
auth:
  api_keys: ["${RETRIO_TEST_KEY}"]
backends:
  keyword:
    enabled: true
    path: /tmp/kw
`
	if err := os.WriteFile(filepath.Join(dir, "config", "test.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("RETRIO_TEST_KEY", "secret")
	t.Chdir(dir)

	cfg, err := Load("test")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("HTTP.Port = %d, want 9090 from default expansion", cfg.HTTP.Port)
	}
	if len(cfg.Auth.APIKeys) != 1 || cfg.Auth.APIKeys[0] != "secret" {
		t.Errorf("Auth.APIKeys = %v, want [secret]", cfg.Auth.APIKeys)
	}
	if !cfg.Backends.Keyword.Enabled {
		t.Error("keyword backend not enabled")
	}
	if cfg.Search.TopK != 50 {
		t.Errorf("defaults not applied, TopK = %d", cfg.Search.TopK)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	if _, err := Load("nope"); err == nil {
		t.Fatal("Load() succeeded for a missing config file")
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("ENV", "")
	if got := GetEnv(); got != "local" {
		t.Errorf("GetEnv() = %q, want local", got)
	}
	t.Setenv("ENV", "prod")
	if got := GetEnv(); got != "prod" {
		t.Errorf("GetEnv() = %q, want prod", got)
	}
}

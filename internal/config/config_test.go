package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
app:
  name: "bloomsync"
  environment: "test"
remote:
  base_url: "https://api.example.com"
  api_key: "${BLOOMSYNC_API_KEY}"
store:
  backend: "sqlite"
  path: "queue.db"
queue:
  max_attempts: 3
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	t.Setenv("BLOOMSYNC_API_KEY", "secret-key")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Remote.BaseURL != "https://api.example.com" {
		t.Errorf("expected base_url https://api.example.com, got %s", cfg.Remote.BaseURL)
	}
	if cfg.Remote.APIKey != "secret-key" {
		t.Errorf("expected env-expanded api key, got %s", cfg.Remote.APIKey)
	}
	if cfg.Queue.MaxAttempts != 3 {
		t.Errorf("expected max_attempts 3, got %d", cfg.Queue.MaxAttempts)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Config{
		Remote: RemoteConfig{BaseURL: "https://api.example.com"},
		Store:  StoreConfig{Backend: "memory"},
	}
	cfg.applyDefaults()

	if cfg.Queue.MaxAttempts != 8 {
		t.Errorf("expected default max_attempts 8, got %d", cfg.Queue.MaxAttempts)
	}
	if cfg.Queue.DrainInterval() != 30*time.Second {
		t.Errorf("expected default drain interval 30s, got %s", cfg.Queue.DrainInterval())
	}
	if cfg.Connectivity.ProbeURL != "https://api.example.com/health" {
		t.Errorf("expected probe url derived from base_url, got %s", cfg.Connectivity.ProbeURL)
	}
	if cfg.API.Auth.HeaderAPIKey != "x-api-key" {
		t.Errorf("expected default api key header, got %s", cfg.API.Auth.HeaderAPIKey)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid sqlite config",
			cfg: Config{
				Remote: RemoteConfig{BaseURL: "https://api.example.com"},
				Store:  StoreConfig{Backend: "sqlite", Path: "queue.db"},
			},
			wantErr: false,
		},
		{
			name:    "missing remote base_url",
			cfg:     Config{Store: StoreConfig{Backend: "memory"}},
			wantErr: true,
		},
		{
			name: "sqlite without path",
			cfg: Config{
				Remote: RemoteConfig{BaseURL: "https://api.example.com"},
				Store:  StoreConfig{Backend: "sqlite"},
			},
			wantErr: true,
		},
		{
			name: "redis without address",
			cfg: Config{
				Remote: RemoteConfig{BaseURL: "https://api.example.com"},
				Store:  StoreConfig{Backend: "redis"},
			},
			wantErr: true,
		},
		{
			name: "unknown backend",
			cfg: Config{
				Remote: RemoteConfig{BaseURL: "https://api.example.com"},
				Store:  StoreConfig{Backend: "dynamo"},
			},
			wantErr: true,
		},
		{
			name: "auth enabled without keys",
			cfg: Config{
				Remote: RemoteConfig{BaseURL: "https://api.example.com"},
				Store:  StoreConfig{Backend: "memory"},
				API:    APIConfig{Enabled: true, Auth: APIAuthConfig{Enabled: true}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

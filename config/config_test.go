package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Env:      "test",
		Port:     8080,
		JWT:      JWTConfig{Secret: strings.Repeat("s", 32)},
		Postgres: PostgresConfig{MaxIdleConns: 10, MaxOpenConns: 100},
		LLM:      LLMConfig{Provider: "none"},
		Worker:   WorkerConfig{AudioWorkers: 2},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad env", func(c *Config) { c.Env = "qa" }, "invalid environment"},
		{"bad port", func(c *Config) { c.Port = 0 }, "invalid port"},
		{"short secret", func(c *Config) { c.JWT.Secret = "short" }, "JWT_SECRET"},
		{"idle over open", func(c *Config) { c.Postgres.MaxIdleConns = 200 }, "POSTGRES_MAX_IDLE_CONNS"},
		{"vertex without project", func(c *Config) { c.LLM.Provider = "vertex" }, "GOOGLE_PROJECT_ID"},
		{"openai without key", func(c *Config) { c.LLM.Provider = "openai" }, "OPENAI_API_KEY"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "bard" }, "invalid LLM_PROVIDER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestClientValidate(t *testing.T) {
	valid := func() ClientConfig {
		return ClientConfig{
			APIURL:         "http://localhost:8080/api",
			SocketURL:      "ws://localhost:8080/ws",
			RequestTimeout: time.Minute,
		}
	}
	tests := []struct {
		name    string
		mutate  func(c *ClientConfig)
		wantErr string
	}{
		{"valid", func(c *ClientConfig) {}, ""},
		{"no socket", func(c *ClientConfig) { c.SocketURL = "" }, ""},
		{"api not http", func(c *ClientConfig) { c.APIURL = "ftp://x/api" }, "CAREERFORGE_API_URL"},
		{"api relative", func(c *ClientConfig) { c.APIURL = "/api" }, "CAREERFORGE_API_URL"},
		{"socket not ws", func(c *ClientConfig) { c.SocketURL = "http://localhost/ws" }, "CAREERFORGE_WS_URL"},
		{"zero timeout", func(c *ClientConfig) { c.RequestTimeout = 0 }, "REQUEST_TIMEOUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

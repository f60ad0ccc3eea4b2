package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// ClientConfig configures the candidate CLI.
type ClientConfig struct {
	APIURL    string `envconfig:"CAREERFORGE_API_URL" default:"http://localhost:8080/api"`
	SocketURL string `envconfig:"CAREERFORGE_WS_URL" default:"ws://localhost:8080/ws"`
	Token     string `envconfig:"CAREERFORGE_TOKEN"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	RequestTimeout time.Duration `envconfig:"CAREERFORGE_REQUEST_TIMEOUT" default:"60s"`

	SpeechEnabled bool   `envconfig:"SPEECH_ENABLED" default:"false"`
	SpeechLang    string `envconfig:"SPEECH_LANGUAGE" default:"en-US"`

	// only needed by the token command
	JWTSecret string `envconfig:"JWT_SECRET"`
	JWTIssuer string `envconfig:"JWT_ISSUER"`
}

func LoadClient() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *ClientConfig) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid CAREERFORGE_API_URL: %q", c.APIURL)
	}
	if c.SocketURL != "" {
		u, err := url.Parse(c.SocketURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			return fmt.Errorf("invalid CAREERFORGE_WS_URL: %q", c.SocketURL)
		}
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("CAREERFORGE_REQUEST_TIMEOUT must be positive")
	}
	return nil
}

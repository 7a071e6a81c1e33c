package commands

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds scanctl's own settings, distinct from the server-side
// config.Config: it only ever needs to know where the API lives.
type Config struct {
	APIBaseURL string        `yaml:"apiBaseUrl"`
	Timeout    time.Duration `yaml:"timeout"`
	Verbose    bool          `yaml:"verbose"`
}

func LoadConfig(explicit string) (*Config, error) {
	c := &Config{
		APIBaseURL: "http://localhost:8000",
		Timeout:    10 * time.Second,
	}

	path := explicit
	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, ".scanctl.yaml")
	}
	if b, err := os.ReadFile(path); err == nil {
		_ = yaml.Unmarshal(b, c)
	}

	if v := os.Getenv("SCANCTL_API_URL"); v != "" {
		c.APIBaseURL = v
	}
	return c, nil
}

package peer

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config is one peer's slice of the ring topology plus local options.
// Each process gets its own file; the ring is closed by every peer naming
// its successor.
type Config struct {
	ID     int    `yaml:"id"`     // 0 is the coordinator
	Listen string `yaml:"listen"` // host:port this peer binds
	Next   string `yaml:"next"`   // host:port of the ring successor

	Auto         bool `yaml:"auto"`           // automatic strategy instead of prompting
	ScoreLimit   int  `yaml:"score_limit"`    // game ends once a total reaches this
	TokenDelayMS int  `yaml:"token_delay_ms"` // pacing sleep before releasing the token
}

// LoadConfig reads and validates a peer configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Auto:         true,
		ScoreLimit:   100,
		TokenDelayMS: 50,
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the fields a peer cannot run without.
func (c Config) Validate() error {
	if c.ID < 0 || c.ID > 3 {
		return fmt.Errorf("id must be 0-3, got %d", c.ID)
	}
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.Next == "" {
		return fmt.Errorf("next hop address is required")
	}
	if c.ScoreLimit <= 0 {
		return fmt.Errorf("score_limit must be positive, got %d", c.ScoreLimit)
	}
	return nil
}

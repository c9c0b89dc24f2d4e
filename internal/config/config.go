package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds environment defaults. Command-line flags override them.
type Config struct {
	LogLevel  string `env:"FRAMECHECK_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"FRAMECHECK_LOG_FORMAT" envDefault:"console"`

	FrameCount int    `env:"FRAMECHECK_FRAME_COUNT" envDefault:"10"`
	MaxWidth   int    `env:"FRAMECHECK_MAX_WIDTH"   envDefault:"480"`
	Format     string `env:"FRAMECHECK_FORMAT"      envDefault:"jpeg"`
	Quality    int    `env:"FRAMECHECK_QUALITY"     envDefault:"85"`
	Strategy   string `env:"FRAMECHECK_STRATEGY"    envDefault:"index"`

	MaxUploadMB int           `env:"FRAMECHECK_MAX_UPLOAD_MB"  envDefault:"200"`
	MinDuration time.Duration `env:"FRAMECHECK_MIN_DURATION"   envDefault:"20s"`
	MaxDuration time.Duration `env:"FRAMECHECK_MAX_DURATION"   envDefault:"40s"`
	Extensions  []string      `env:"FRAMECHECK_EXTENSIONS"     envDefault:".mp4,.mov,.avi,.mkv,.wmv,.webm,.m4v" envSeparator:","`

	OutputDir  string `env:"FRAMECHECK_OUTPUT_DIR" envDefault:"/data/output"`
	TempDir    string `env:"FRAMECHECK_TEMP_DIR"`
	NumEngines int    `env:"FRAMECHECK_ENGINES"    envDefault:"2"`

	DatabaseURL string `env:"FRAMECHECK_DATABASE_URL"`
	Postgres    Postgres
}

// Postgres mirrors the POSTGRES_* variables used by the database container.
type Postgres struct {
	Host     string `env:"POSTGRES_HOST"`
	Port     string `env:"POSTGRES_PORT" envDefault:"5432"`
	User     string `env:"POSTGRES_USER"`
	Password string `env:"POSTGRES_PASSWORD"`
	DB       string `env:"POSTGRES_DB"`
}

// Load parses the process environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings no run could use.
func (c *Config) Validate() error {
	if c.FrameCount < 1 {
		return fmt.Errorf("FRAMECHECK_FRAME_COUNT must be >= 1, got %d", c.FrameCount)
	}
	if c.MaxWidth < 1 {
		return fmt.Errorf("FRAMECHECK_MAX_WIDTH must be >= 1, got %d", c.MaxWidth)
	}
	if c.MaxUploadMB < 1 {
		return fmt.Errorf("FRAMECHECK_MAX_UPLOAD_MB must be >= 1, got %d", c.MaxUploadMB)
	}
	if c.MinDuration > c.MaxDuration {
		return fmt.Errorf("FRAMECHECK_MIN_DURATION (%s) exceeds FRAMECHECK_MAX_DURATION (%s)", c.MinDuration, c.MaxDuration)
	}
	return nil
}

// DatabaseURLOrDefault resolves the connection string: the explicit URL first,
// then POSTGRES_* variables. It returns "" when neither is set, meaning no database.
func (c *Config) DatabaseURLOrDefault() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	p := c.Postgres
	if p.Host == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", p.User, p.Password, p.Host, p.Port, p.DB)
}

// ExtensionSet normalizes Extensions to lower-case, dot-prefixed keys.
func (c *Config) ExtensionSet() map[string]bool {
	set := make(map[string]bool, len(c.Extensions))
	for _, ext := range c.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = true
	}
	return set
}

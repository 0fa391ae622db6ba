package config

import (
	"fmt"
	"time"

	"github.com/veranemoloko/offline-tiles/internal/domain"
	"github.com/veranemoloko/offline-tiles/internal/validation"
)

// Config holds all application configuration settings.
type Config struct {
	Environment string `envconfig:"TILES_ENV" default:"development"`

	HTTPPort    int           `envconfig:"TILES_HTTP_PORT" default:"8080"`
	HTTPTimeout time.Duration `envconfig:"TILES_HTTP_TIMEOUT" default:"15s"`

	TileURLTemplate string        `envconfig:"TILES_URL_TEMPLATE" default:"http://c.tile.openstreetmap.org/{z}/{x}/{y}.png"`
	UserAgent       string        `envconfig:"TILES_USER_AGENT" default:"offline-tiles/1.0"`
	Workers         int           `envconfig:"TILES_WORKERS" default:"1"`
	TileTimeout     time.Duration `envconfig:"TILES_TILE_TIMEOUT" default:"30s"`
	TileRetries     int           `envconfig:"TILES_TILE_RETRIES" default:"0"`
	RetryBackoff    time.Duration `envconfig:"TILES_RETRY_BACKOFF" default:"1s"`
	MaxTileSize     int64         `envconfig:"TILES_MAX_TILE_SIZE" default:"5242880"`

	CacheDir      string `envconfig:"TILES_CACHE_DIR" default:"./cache"`
	StateFile     string `envconfig:"TILES_STATE_FILE" default:"./state/jobs.json"`
	OverlaySource string `envconfig:"TILES_OVERLAY_SOURCE" default:"local_cache"`

	ShutdownTimeout time.Duration `envconfig:"TILES_SHUTDOWN_TIMEOUT" default:"30s"`

	LogLevel  string `envconfig:"TILES_LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"TILES_LOG_FORMAT" default:"json"`
}

// Validate checks the configuration for invalid or missing values.
// Returns an error describing the first invalid setting found.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	if err := validation.ValidateTileTemplate(c.TileURLTemplate); err != nil {
		return err
	}

	if c.Workers <= 0 {
		return fmt.Errorf("worker count must be positive: %d", c.Workers)
	}

	if c.TileTimeout <= 0 {
		return fmt.Errorf("tile timeout must be positive: %s", c.TileTimeout)
	}

	if c.TileRetries < 0 {
		return fmt.Errorf("tile retries cannot be negative: %d", c.TileRetries)
	}

	if c.MaxTileSize <= 0 {
		return fmt.Errorf("max tile size must be positive: %d", c.MaxTileSize)
	}

	if c.CacheDir == "" {
		return fmt.Errorf("cache directory cannot be empty")
	}
	if c.StateFile == "" {
		return fmt.Errorf("state file cannot be empty")
	}

	if !domain.OverlaySource(c.OverlaySource).Valid() {
		return fmt.Errorf("invalid overlay source: %q", c.OverlaySource)
	}

	return nil
}

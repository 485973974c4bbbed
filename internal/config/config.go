package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

const (
	defaultPollInterval = time.Second
	defaultBackend      = "auto"
	defaultPlayer       = "Spotify"
	defaultMprisName    = "org.mpris.MediaPlayer2.spotify"
	defaultOutputDir    = "/tmp/nowplaying"
	defaultArtworkSize  = 170
	defaultVolumeStep   = 10
	defaultLogLevel     = "info"
)

// FileConfig mirrors the TOML configuration file
type FileConfig struct {
	PollInterval string `koanf:"poll_interval"` // Go duration, e.g. "1s"
	Backend      string `koanf:"backend"`       // "auto", "osascript" or "mpris"
	Player       string `koanf:"player"`        // AppleScript application name
	MprisName    string `koanf:"mpris_name"`    // empty selects the first MPRIS player
	OutputDir    string `koanf:"output_dir"`
	ArtworkSize  int    `koanf:"artwork_size"`
	VolumeStep   int    `koanf:"volume_step"`
	LogLevel     string `koanf:"log_level"`
}

// AppConfig holds application configuration
type AppConfig struct {
	pollInterval time.Duration
	backend      string
	player       string
	mprisName    string
	outputDir    string
	artworkSize  int
	volumeStep   int
	logLevel     string
}

// Path returns the configuration file location, honouring NOWPLAYING_CONFIG
func Path() string {
	if p := os.Getenv("NOWPLAYING_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "nowplaying", "config.toml")
}

// Load reads the configuration file at path (if present), then applies
// environment overrides and defaults
func Load(path string) (*AppConfig, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	var fc FileConfig
	if err := k.Unmarshal("", &fc); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	applyEnvOverrides(&fc)

	cfg, err := fromFile(fc)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogLoaded reports the effective configuration
func (c *AppConfig) LogLoaded(logger *zap.Logger) {
	logger.Info("Configuration loaded",
		zap.Duration("pollInterval", c.pollInterval),
		zap.String("backend", c.backend),
		zap.String("player", c.player),
		zap.String("mprisName", c.mprisName),
		zap.String("outputDir", c.outputDir),
		zap.Int("artworkSize", c.artworkSize),
		zap.String("logLevel", c.logLevel))
}

// Default returns a configuration populated with defaults only
func Default() *AppConfig {
	return &AppConfig{
		pollInterval: defaultPollInterval,
		backend:      defaultBackend,
		player:       defaultPlayer,
		mprisName:    defaultMprisName,
		outputDir:    defaultOutputDir,
		artworkSize:  defaultArtworkSize,
		volumeStep:   defaultVolumeStep,
		logLevel:     defaultLogLevel,
	}
}

func fromFile(fc FileConfig) (*AppConfig, error) {
	cfg := Default()

	if fc.PollInterval != "" {
		d, err := time.ParseDuration(fc.PollInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid poll_interval %q: %w", fc.PollInterval, err)
		}
		cfg.pollInterval = d
	}
	if fc.Backend != "" {
		cfg.backend = fc.Backend
	}
	if fc.Player != "" {
		cfg.player = fc.Player
	}
	if fc.MprisName != "" {
		cfg.mprisName = fc.MprisName
	}
	if fc.OutputDir != "" {
		cfg.outputDir = expandPath(fc.OutputDir)
	}
	if fc.ArtworkSize != 0 {
		cfg.artworkSize = fc.ArtworkSize
	}
	if fc.VolumeStep != 0 {
		cfg.volumeStep = fc.VolumeStep
	}
	if fc.LogLevel != "" {
		cfg.logLevel = fc.LogLevel
	}

	// "any" selects the first MPRIS player on the bus
	if cfg.mprisName == "any" {
		cfg.mprisName = ""
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the file values
func applyEnvOverrides(fc *FileConfig) {
	if v := os.Getenv("NOWPLAYING_POLL_INTERVAL"); v != "" {
		fc.PollInterval = v
	}
	if v := os.Getenv("NOWPLAYING_BACKEND"); v != "" {
		fc.Backend = v
	}
	if v := os.Getenv("NOWPLAYING_PLAYER"); v != "" {
		fc.Player = v
	}
	if v := os.Getenv("NOWPLAYING_MPRIS_NAME"); v != "" {
		fc.MprisName = v
	}
	if v := os.Getenv("NOWPLAYING_OUTPUT_DIR"); v != "" {
		fc.OutputDir = os.ExpandEnv(v)
	}
	if v := os.Getenv("NOWPLAYING_ARTWORK_SIZE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			fc.ArtworkSize = i
		}
	}
	if v := os.Getenv("NOWPLAYING_VOLUME_STEP"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			fc.VolumeStep = i
		}
	}
	if v := os.Getenv("NOWPLAYING_LOG_LEVEL"); v != "" {
		fc.LogLevel = v
	}
}

// Validate checks that the configuration is usable
func (c *AppConfig) Validate() error {
	if c.pollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.pollInterval)
	}
	switch c.backend {
	case "auto", "osascript", "mpris":
	default:
		return fmt.Errorf("unknown backend %q (want auto, osascript or mpris)", c.backend)
	}
	if c.artworkSize <= 0 {
		return fmt.Errorf("artwork size must be positive, got %d", c.artworkSize)
	}
	if c.volumeStep <= 0 || c.volumeStep > 100 {
		return fmt.Errorf("volume step must be between 1 and 100, got %d", c.volumeStep)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.logLevel)
	}
	return nil
}

func expandPath(path string) string {
	path = os.ExpandEnv(path)
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// GetPollInterval returns the delay between two ticks
func (c *AppConfig) GetPollInterval() time.Duration {
	return c.pollInterval
}

// GetBackend returns the bridge backend name
func (c *AppConfig) GetBackend() string {
	return c.backend
}

// GetPlayer returns the AppleScript application name of the player
func (c *AppConfig) GetPlayer() string {
	return c.player
}

// GetMprisName returns the well-known D-Bus name of the player
func (c *AppConfig) GetMprisName() string {
	return c.mprisName
}

// GetOutputDir returns the directory for the current artwork file
func (c *AppConfig) GetOutputDir() string {
	return c.outputDir
}

// GetArtworkSize returns the edge length of processed artwork
func (c *AppConfig) GetArtworkSize() int {
	return c.artworkSize
}

// GetVolumeStep returns the volume change per command
func (c *AppConfig) GetVolumeStep() int {
	return c.volumeStep
}

// GetLogLevel returns the configured log level
func (c *AppConfig) GetLogLevel() string {
	return c.logLevel
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// PLATYRENDER_SOCKET_PATH.
const EnvPrefix = "PLATYRENDER"

type Config struct {
	Socket   SocketConfig   `mapstructure:"socket" yaml:"socket"`
	Renderer RendererConfig `mapstructure:"renderer" yaml:"renderer"`
	Audio    AudioConfig    `mapstructure:"audio" yaml:"audio"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`

	// Profile is the name of the profile applied on top of the base
	// settings, or "" when none was.
	Profile string `mapstructure:"-" yaml:"-"`
}

type SocketConfig struct {
	// Path is empty when the platform default should be used.
	Path            string        `mapstructure:"path" yaml:"path"`
	PollInterval    time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	ResponseTimeout time.Duration `mapstructure:"response_timeout" yaml:"response_timeout"`
}

type RendererConfig struct {
	FrameRate        int  `mapstructure:"frame_rate" yaml:"frame_rate"`
	ExitOnDisconnect bool `mapstructure:"exit_on_disconnect" yaml:"exit_on_disconnect"`
	Width            int  `mapstructure:"width" yaml:"width"`
	Height           int  `mapstructure:"height" yaml:"height"`
}

type AudioConfig struct {
	Backend        string `mapstructure:"backend" yaml:"backend"` // "pipewire", "malgo", "auto"
	SampleRate     int    `mapstructure:"sample_rate" yaml:"sample_rate"`
	Channels       int    `mapstructure:"channels" yaml:"channels"`
	FragmentFrames int    `mapstructure:"fragment_frames" yaml:"fragment_frames"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	// File receives serve's log lines. Empty keeps them off stderr, which
	// carries only events, unless -v is given.
	File  string `mapstructure:"file" yaml:"file"`
}

var defaultConfig = Config{
	Socket: SocketConfig{
		PollInterval:    100 * time.Millisecond,
		ResponseTimeout: 2 * time.Second,
	},
	Renderer: RendererConfig{
		FrameRate:        60,
		ExitOnDisconnect: true,
		Width:            1280,
		Height:           720,
	},
	Audio: AudioConfig{
		Backend:        "auto",
		SampleRate:     44100,
		Channels:       2,
		FragmentFrames: 735, // ~16.7ms at 44.1kHz
	},
	Log: LogConfig{
		Level: "info",
	},
}

// Default returns the built-in configuration.
func Default() *Config {
	c := defaultConfig
	return &c
}

// DefaultPath is where Load looks when no file is given.
func DefaultPath() string {
	return os.ExpandEnv("$HOME/.config/platyrender.yaml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("socket.path", "")
	v.SetDefault("socket.poll_interval", defaultConfig.Socket.PollInterval)
	v.SetDefault("socket.response_timeout", defaultConfig.Socket.ResponseTimeout)
	v.SetDefault("renderer.frame_rate", defaultConfig.Renderer.FrameRate)
	v.SetDefault("renderer.exit_on_disconnect", defaultConfig.Renderer.ExitOnDisconnect)
	v.SetDefault("renderer.width", defaultConfig.Renderer.Width)
	v.SetDefault("renderer.height", defaultConfig.Renderer.Height)
	v.SetDefault("audio.backend", defaultConfig.Audio.Backend)
	v.SetDefault("audio.sample_rate", defaultConfig.Audio.SampleRate)
	v.SetDefault("audio.channels", defaultConfig.Audio.Channels)
	v.SetDefault("audio.fragment_frames", defaultConfig.Audio.FragmentFrames)
	v.SetDefault("log.level", defaultConfig.Log.Level)
	v.SetDefault("log.file", "")
}

// Load reads configFile over the defaults, applies a profile and the
// environment, then validates the result.
//
// An empty configFile falls back to DefaultPath, which may be absent. An
// explicit file must exist. The profile comes from the argument, else from
// the file's active_config key; profiles live under configs.<name> and
// override any subset of the base keys.
func Load(configFile, profile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := configFile != ""
	if !explicit {
		configFile = DefaultPath()
	}
	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		slog.Debug("No config file, using defaults", "path", configFile)
	}

	if profile == "" {
		profile = v.GetString("active_config")
	}
	if profile != "" {
		if err := applyProfile(v, profile); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.Profile = profile
	cfg.Socket.Path = expandPath(cfg.Socket.Path)
	cfg.Log.File = expandPath(cfg.Log.File)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func applyProfile(v *viper.Viper, profile string) error {
	key := "configs." + profile
	if !v.IsSet(key) {
		return fmt.Errorf("configuration profile '%s' not found", profile)
	}
	overrides := v.GetStringMap(key)
	if err := v.MergeConfigMap(overrides); err != nil {
		return fmt.Errorf("error applying configuration profile '%s': %w", profile, err)
	}
	return nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Socket.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("socket.poll_interval must be > 0"))
	}
	if c.Socket.ResponseTimeout <= 0 {
		errs = append(errs, fmt.Errorf("socket.response_timeout must be > 0"))
	}
	if c.Socket.Path != "" && !filepath.IsAbs(c.Socket.Path) {
		errs = append(errs, fmt.Errorf("socket.path must be absolute: %s", c.Socket.Path))
	}

	if c.Renderer.FrameRate < 1 || c.Renderer.FrameRate > 240 {
		errs = append(errs, fmt.Errorf("renderer.frame_rate must be between 1 and 240, got %d", c.Renderer.FrameRate))
	}
	if c.Renderer.Width <= 0 || c.Renderer.Height <= 0 {
		errs = append(errs, fmt.Errorf("renderer.width and renderer.height must be > 0"))
	}

	switch strings.ToLower(c.Audio.Backend) {
	case "auto", "pipewire", "malgo":
	default:
		errs = append(errs, fmt.Errorf("audio.backend must be one of auto, pipewire, malgo, got '%s'", c.Audio.Backend))
	}
	if c.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be > 0"))
	}
	if c.Audio.Channels < 1 || c.Audio.Channels > 2 {
		errs = append(errs, fmt.Errorf("audio.channels must be 1 or 2, got %d", c.Audio.Channels))
	}
	if c.Audio.FragmentFrames <= 0 {
		errs = append(errs, fmt.Errorf("audio.fragment_frames must be > 0"))
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.File != "" && !filepath.IsAbs(c.Log.File) {
		errs = append(errs, fmt.Errorf("log.file must be absolute: %s", c.Log.File))
	}

	return errors.Join(errs...)
}

// ParseLevel maps log.level to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log.level must be one of debug, info, warn, error, got '%s'", level)
}

// FrameInterval is the render loop tick.
func (c *Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.Renderer.FrameRate)
}

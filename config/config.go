package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	BackendPortAudio = "portaudio"
	BackendMalgo     = "malgo"
	BackendSynthetic = "synthetic"
)

type Config struct {
	Backend        string
	SampleRate     int
	ChunkSize      int
	Bars           int
	SampleInterval time.Duration
	TickInterval   time.Duration
	Format         string // ogg or wav
	Bitrate        int
	Normalize      bool

	DataDir      string
	DatabasePath string // empty keeps messages in memory
	Listen       string
	Thread       string

	Mattermost Mattermost
	Transcribe Transcribe
	Translate  Translate
}

type Mattermost struct {
	URL       string `toml:"url"`
	Token     string `toml:"token"`
	ChannelID string `toml:"channel_id"`
	RootID    string `toml:"root_id"`
}

func (m Mattermost) Enabled() bool { return m.URL != "" }

type Transcribe struct {
	URL   string `toml:"url"`
	Token string `toml:"token"`
	Lang  string `toml:"lang"`
}

func (t Transcribe) Enabled() bool { return t.URL != "" }

type Translate struct {
	Lang       string `toml:"lang"`
	OllamaHost string `toml:"ollama_host"`
	Model      string `toml:"model"`
}

func (t Translate) Enabled() bool { return t.Lang != "" && t.Model != "" }

type fileConfig struct {
	Backend        string     `toml:"backend"`
	SampleRate     int        `toml:"sample_rate"`
	ChunkSize      int        `toml:"chunk_size"`
	Bars           int        `toml:"bars"`
	SampleInterval string     `toml:"sample_interval"`
	TickInterval   string     `toml:"tick_interval"`
	Format         string     `toml:"format"`
	Bitrate        int        `toml:"bitrate"`
	Normalize      *bool      `toml:"normalize"`
	DataDir        string     `toml:"data_dir"`
	DatabasePath   string     `toml:"database"`
	Listen         string     `toml:"listen"`
	Thread         string     `toml:"thread"`
	Mattermost     Mattermost `toml:"mattermost"`
	Transcribe     Transcribe `toml:"transcribe"`
	Translate      Translate  `toml:"translate"`
}

// Default returns the built-in configuration.
func Default() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Backend:        BackendPortAudio,
		SampleRate:     16000,
		ChunkSize:      1024,
		Bars:           14,
		SampleInterval: time.Second / 60,
		TickInterval:   250 * time.Millisecond,
		Format:         "ogg",
		Bitrate:        32000,
		Normalize:      true,
		DataDir:        dataDir,
		DatabasePath:   filepath.Join(dataDir, "lunarvox.db"),
		Listen:         "127.0.0.1:9766",
		Thread:         "general",
	}
}

// Load builds the configuration from defaults, the TOML file at path (the
// XDG location when path is empty) and LUNARVOX_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = configFilePath()
	}
	if path != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if err := cfg.applyFile(fc); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) applyFile(fc fileConfig) error {
	setString(&cfg.Backend, fc.Backend)
	setInt(&cfg.SampleRate, fc.SampleRate)
	setInt(&cfg.ChunkSize, fc.ChunkSize)
	setInt(&cfg.Bars, fc.Bars)
	setString(&cfg.Format, fc.Format)
	setInt(&cfg.Bitrate, fc.Bitrate)
	if fc.Normalize != nil {
		cfg.Normalize = *fc.Normalize
	}
	if fc.DataDir != "" {
		cfg.DataDir = expandTilde(fc.DataDir)
		cfg.DatabasePath = filepath.Join(cfg.DataDir, "lunarvox.db")
	}
	if fc.DatabasePath != "" {
		cfg.DatabasePath = expandTilde(fc.DatabasePath)
	}
	setString(&cfg.Listen, fc.Listen)
	setString(&cfg.Thread, fc.Thread)
	cfg.Mattermost = fc.Mattermost
	cfg.Transcribe = fc.Transcribe
	cfg.Translate = fc.Translate

	var err error
	if fc.SampleInterval != "" {
		if cfg.SampleInterval, err = time.ParseDuration(fc.SampleInterval); err != nil {
			return fmt.Errorf("sample_interval: %w", err)
		}
	}
	if fc.TickInterval != "" {
		if cfg.TickInterval, err = time.ParseDuration(fc.TickInterval); err != nil {
			return fmt.Errorf("tick_interval: %w", err)
		}
	}
	return nil
}

func (cfg *Config) applyEnv() error {
	setString(&cfg.Backend, os.Getenv("LUNARVOX_BACKEND"))
	setString(&cfg.Format, os.Getenv("LUNARVOX_FORMAT"))
	setString(&cfg.Listen, os.Getenv("LUNARVOX_LISTEN"))
	setString(&cfg.Thread, os.Getenv("LUNARVOX_THREAD"))
	if v := os.Getenv("LUNARVOX_DATA_DIR"); v != "" {
		cfg.DataDir = expandTilde(v)
		cfg.DatabasePath = filepath.Join(cfg.DataDir, "lunarvox.db")
	}
	if v, ok := os.LookupEnv("LUNARVOX_DATABASE"); ok {
		cfg.DatabasePath = expandTilde(v)
	}

	setString(&cfg.Mattermost.URL, os.Getenv("LUNARVOX_MATTERMOST_URL"))
	setString(&cfg.Mattermost.Token, os.Getenv("LUNARVOX_MATTERMOST_TOKEN"))
	setString(&cfg.Mattermost.ChannelID, os.Getenv("LUNARVOX_MATTERMOST_CHANNEL"))
	setString(&cfg.Transcribe.URL, os.Getenv("LUNARVOX_TRANSCRIBE_URL"))
	setString(&cfg.Transcribe.Token, os.Getenv("LUNARVOX_TRANSCRIBE_TOKEN"))
	setString(&cfg.Transcribe.Lang, os.Getenv("LUNARVOX_TRANSCRIBE_LANG"))
	setString(&cfg.Translate.Lang, os.Getenv("LUNARVOX_TRANSLATE_LANG"))
	setString(&cfg.Translate.Model, os.Getenv("LUNARVOX_TRANSLATE_MODEL"))
	setString(&cfg.Translate.OllamaHost, os.Getenv("OLLAMA_HOST"))

	for name, dst := range map[string]*int{
		"LUNARVOX_SAMPLE_RATE": &cfg.SampleRate,
		"LUNARVOX_CHUNK_SIZE":  &cfg.ChunkSize,
		"LUNARVOX_BARS":        &cfg.Bars,
		"LUNARVOX_BITRATE":     &cfg.Bitrate,
	} {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = n
	}
	if v := os.Getenv("LUNARVOX_NORMALIZE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LUNARVOX_NORMALIZE: %w", err)
		}
		cfg.Normalize = b
	}
	return nil
}

// Validate reports every invalid setting at once.
func (cfg *Config) Validate() error {
	var errs []error
	switch cfg.Backend {
	case BackendPortAudio, BackendMalgo, BackendSynthetic:
	default:
		errs = append(errs, fmt.Errorf("backend: unknown %q", cfg.Backend))
	}
	switch cfg.SampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		errs = append(errs, fmt.Errorf("sample_rate: %d is not an Opus rate", cfg.SampleRate))
	}
	if cfg.ChunkSize <= 0 {
		errs = append(errs, errors.New("chunk_size: must be positive"))
	}
	if cfg.Bars <= 0 {
		errs = append(errs, errors.New("bars: must be positive"))
	}
	if cfg.SampleInterval <= 0 {
		errs = append(errs, errors.New("sample_interval: must be positive"))
	}
	if cfg.TickInterval <= 0 || cfg.TickInterval > time.Second {
		errs = append(errs, errors.New("tick_interval: must be in (0, 1s]"))
	}
	switch strings.ToLower(cfg.Format) {
	case "ogg", "opus", "wav":
	default:
		errs = append(errs, fmt.Errorf("format: unknown %q", cfg.Format))
	}
	if cfg.Bitrate < 6000 || cfg.Bitrate > 510000 {
		errs = append(errs, fmt.Errorf("bitrate: %d out of range", cfg.Bitrate))
	}
	if cfg.Mattermost.Enabled() && (cfg.Mattermost.Token == "" || cfg.Mattermost.ChannelID == "") {
		errs = append(errs, errors.New("mattermost: token and channel_id are required"))
	}
	if cfg.Translate.Lang != "" && cfg.Translate.Model == "" {
		errs = append(errs, errors.New("translate: model is required"))
	}
	return errors.Join(errs...)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func configFilePath() string {
	var configDir string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		configDir = filepath.Join(xdg, "lunarvox")
	} else if home, err := os.UserHomeDir(); err == nil {
		configDir = filepath.Join(home, ".config", "lunarvox")
	} else {
		return ""
	}

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "lunarvox")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "lunarvox")
	}
	return filepath.Join(".", "lunarvox-data")
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

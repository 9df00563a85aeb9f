// Package config loads the inferstream configuration from a YAML file, the
// environment and the secret store.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/inercia/inferstream/internal/appdir"
	"github.com/inercia/inferstream/internal/client"
	"github.com/inercia/inferstream/internal/secrets"
	"github.com/inercia/inferstream/internal/transport"
)

// Environment variables read by Resolve.
const (
	EnvAPIKey    = "DASHSCOPE_API_KEY"
	EnvWorkspace = "DASHSCOPE_WORKSPACE"
	EnvWSURL     = "DASHSCOPE_WS_URL"
	EnvAPIBase   = "DASHSCOPE_API_BASE"
	EnvConfig    = "INFERSTREAM_CONFIG"
)

// Where the API key came from.
const (
	SourceNone    = ""
	SourceEnv     = "environment"
	SourceFile    = "config file"
	SourceSecrets = "secret store"
)

// ErrMissingAPIKey is returned by Validate when no API key was found.
var ErrMissingAPIKey = errors.New("no API key: set " + EnvAPIKey + ", api_key in the config file, or run 'inferstream auth set'")

// ASRConfig holds recognition defaults.
type ASRConfig struct {
	Model         string
	Format        string
	SampleRate    int
	ChunkSize     int
	ChunkInterval time.Duration
}

// TTSConfig holds synthesis defaults.
type TTSConfig struct {
	Model      string
	Voice      string
	Format     string
	SampleRate int
	Volume     *int
	Rate       *float64
	Pitch      *float64
}

// LogConfig holds logging settings. Command line flags take precedence.
type LogConfig struct {
	Level string
	File  string
	JSON  bool
}

// Config is the effective configuration.
type Config struct {
	APIKey string
	// APIKeySource is one of the Source constants.
	APIKeySource string

	Workspace      string
	DataInspection string

	HTTPEndpoint      string
	WebsocketEndpoint string

	// Heartbeat is the websocket ping interval. Zero disables pings.
	Heartbeat time.Duration
	Retry     client.RetryConfig

	ASR ASRConfig
	TTS TTSConfig
	Log LogConfig

	// Path is the file the configuration was read from, if any.
	Path string
}

type rawConfig struct {
	APIKey         string `yaml:"api_key"`
	Workspace      string `yaml:"workspace"`
	DataInspection string `yaml:"data_inspection"`
	Endpoints      struct {
		HTTP      string `yaml:"http"`
		Websocket string `yaml:"websocket"`
	} `yaml:"endpoints"`
	HeartbeatInterval string `yaml:"heartbeat_interval"`
	Retry             struct {
		InitialInterval string `yaml:"initial_interval"`
		MaxInterval     string `yaml:"max_interval"`
		MaxElapsed      string `yaml:"max_elapsed"`
	} `yaml:"retry"`
	ASR struct {
		Model         string `yaml:"model"`
		Format        string `yaml:"format"`
		SampleRate    int    `yaml:"sample_rate"`
		ChunkSize     int    `yaml:"chunk_size"`
		ChunkInterval string `yaml:"chunk_interval"`
	} `yaml:"asr"`
	TTS struct {
		Model      string   `yaml:"model"`
		Voice      string   `yaml:"voice"`
		Format     string   `yaml:"format"`
		SampleRate int      `yaml:"sample_rate"`
		Volume     *int     `yaml:"volume"`
		Rate       *float64 `yaml:"rate"`
		Pitch      *float64 `yaml:"pitch"`
	} `yaml:"tts"`
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
		JSON  bool   `yaml:"json"`
	} `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTPEndpoint:      client.DefaultAPIBase,
		WebsocketEndpoint: transport.DefaultEndpoint,
		Heartbeat:         20 * time.Second,
		Retry: client.RetryConfig{
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     30 * time.Second,
			MaxElapsed:      2 * time.Minute,
		},
		ASR: ASRConfig{
			Model:         "paraformer-realtime-v2",
			Format:        "pcm",
			SampleRate:    16000,
			ChunkSize:     3200,
			ChunkInterval: 100 * time.Millisecond,
		},
		TTS: TTSConfig{
			Model:      "cosyvoice-v2",
			Voice:      "longxiaochun_v2",
			Format:     "mp3",
			SampleRate: 22050,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the YAML file at path on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// Parse decodes YAML configuration on top of the defaults.
func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := Default()
	if raw.APIKey != "" {
		cfg.APIKey = raw.APIKey
		cfg.APIKeySource = SourceFile
	}
	setString(&cfg.Workspace, raw.Workspace)
	setString(&cfg.DataInspection, raw.DataInspection)
	setString(&cfg.HTTPEndpoint, raw.Endpoints.HTTP)
	setString(&cfg.WebsocketEndpoint, raw.Endpoints.Websocket)

	durations := []struct {
		key string
		val string
		dst *time.Duration
	}{
		{"heartbeat_interval", raw.HeartbeatInterval, &cfg.Heartbeat},
		{"retry.initial_interval", raw.Retry.InitialInterval, &cfg.Retry.InitialInterval},
		{"retry.max_interval", raw.Retry.MaxInterval, &cfg.Retry.MaxInterval},
		{"retry.max_elapsed", raw.Retry.MaxElapsed, &cfg.Retry.MaxElapsed},
		{"asr.chunk_interval", raw.ASR.ChunkInterval, &cfg.ASR.ChunkInterval},
	}
	for _, d := range durations {
		if d.val == "" {
			continue
		}
		v, err := time.ParseDuration(d.val)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = v
	}

	setString(&cfg.ASR.Model, raw.ASR.Model)
	setString(&cfg.ASR.Format, raw.ASR.Format)
	setInt(&cfg.ASR.SampleRate, raw.ASR.SampleRate)
	setInt(&cfg.ASR.ChunkSize, raw.ASR.ChunkSize)

	setString(&cfg.TTS.Model, raw.TTS.Model)
	setString(&cfg.TTS.Voice, raw.TTS.Voice)
	setString(&cfg.TTS.Format, raw.TTS.Format)
	setInt(&cfg.TTS.SampleRate, raw.TTS.SampleRate)
	cfg.TTS.Volume = raw.TTS.Volume
	cfg.TTS.Rate = raw.TTS.Rate
	cfg.TTS.Pitch = raw.TTS.Pitch

	setString(&cfg.Log.Level, raw.Log.Level)
	cfg.Log.File = raw.Log.File
	cfg.Log.JSON = raw.Log.JSON

	return cfg, nil
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

// Resolve builds the effective configuration. The file is path if given,
// then $INFERSTREAM_CONFIG, then appdir.ConfigPath; only an explicitly named
// file has to exist. Environment variables override the file. The API key
// is taken from the environment, then the file, then the secret store.
func Resolve(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvConfig)
		explicit = path != ""
	}
	if !explicit {
		p, err := appdir.ConfigPath()
		if err == nil {
			path = p
		}
	}

	cfg := Default()
	if path != "" {
		loaded, err := Load(path)
		switch {
		case err == nil:
			cfg = loaded
		case !explicit && errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}

	cfg.applyEnv()
	if cfg.APIKey == "" {
		if key, err := secrets.APIKey(); err == nil && key != "" {
			cfg.APIKey = key
			cfg.APIKeySource = SourceSecrets
		}
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.APIKey = v
		c.APIKeySource = SourceEnv
	}
	setString(&c.Workspace, os.Getenv(EnvWorkspace))
	setString(&c.WebsocketEndpoint, os.Getenv(EnvWSURL))
	setString(&c.HTTPEndpoint, os.Getenv(EnvAPIBase))
}

// Validate checks that the configuration can reach the service.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if err := checkURL("endpoints.websocket", c.WebsocketEndpoint, "ws", "wss"); err != nil {
		return err
	}
	if err := checkURL("endpoints.http", c.HTTPEndpoint, "http", "https"); err != nil {
		return err
	}
	if c.ASR.SampleRate <= 0 {
		return fmt.Errorf("asr.sample_rate must be positive, got %d", c.ASR.SampleRate)
	}
	if c.TTS.SampleRate <= 0 {
		return fmt.Errorf("tts.sample_rate must be positive, got %d", c.TTS.SampleRate)
	}
	if c.ASR.ChunkSize <= 0 {
		return fmt.Errorf("asr.chunk_size must be positive, got %d", c.ASR.ChunkSize)
	}
	if c.Heartbeat < 0 {
		return fmt.Errorf("heartbeat_interval must not be negative, got %s", c.Heartbeat)
	}
	return nil
}

func checkURL(key, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("invalid %s %q: want a %s URL", key, raw, schemes[len(schemes)-1])
}

// ClientConfig returns the settings the client needs.
func (c *Config) ClientConfig() client.Config {
	return client.Config{
		APIKey:         c.APIKey,
		Workspace:      c.Workspace,
		DataInspection: c.DataInspection,
		APIBase:        c.HTTPEndpoint,
		WebsocketURL:   c.WebsocketEndpoint,
		Retry:          c.Retry,
	}
}

// MaskedAPIKey returns the API key with all but its last four characters
// hidden.
func (c *Config) MaskedAPIKey() string {
	const keep = 4
	switch n := len(c.APIKey); {
	case n == 0:
		return ""
	case n <= keep*2:
		return "****"
	default:
		return "****" + c.APIKey[n-keep:]
	}
}

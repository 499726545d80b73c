package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// envPrefix namespaces environment overrides, e.g. TRACKLIFT_SPOTIFY_CLIENT_SECRET.
const envPrefix = "TRACKLIFT_"

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Storage     StorageConfig     `toml:"storage"`
	Lyrics      LyricsConfig      `toml:"lyrics"`
	Tagging     TaggingConfig     `toml:"tagging"`
	Media       MediaConfig       `toml:"media"`
	Ingest      IngestConfig      `toml:"ingest"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API client credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// StorageConfig selects and configures the remote object store.
type StorageConfig struct {
	Backend         string `toml:"backend"`
	Root            string `toml:"root"`
	Bucket          string `toml:"bucket"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	PublicURL       string `toml:"public_url"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
}

// LyricsConfig configures the remote lyrics provider.
type LyricsConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// TaggingConfig configures the AI genre/mood tagging service.
type TaggingConfig struct {
	Enabled        bool   `toml:"enabled"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// MediaConfig configures the transcoding tools and media worker pool.
type MediaConfig struct {
	FFmpegPath     string `toml:"ffmpeg_path"`
	FFprobePath    string `toml:"ffprobe_path"`
	WorkDir        string `toml:"work_dir"`
	SegmentSeconds int    `toml:"segment_seconds"`
	AudioBitrate   string `toml:"audio_bitrate"`
	Workers        int    `toml:"workers"`
}

// IngestConfig contains ingestion pipeline settings.
type IngestConfig struct {
	ScratchDir             string  `toml:"scratch_dir"`
	ProviderTimeoutSeconds int     `toml:"provider_timeout_seconds"`
	EPMaxTracks            int     `toml:"ep_max_tracks"`
	MetadataRateLimit      float64 `toml:"metadata_rate_limit"`
}

// ProviderTimeout returns the per-call timeout applied to metadata and lyrics lookups.
func (c IngestConfig) ProviderTimeout() time.Duration {
	if c.ProviderTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.ProviderTimeoutSeconds) * time.Second
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values from the environment (and a .env file in the working directory, if present) override file values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	_ = godotenv.Load()
	config.ApplyEnv(os.LookupEnv)

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides secrets and endpoints from environment variables.
//
// lookup is usually [os.LookupEnv]; tests pass a map-backed function.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	overrides := map[string]*string{
		"SPOTIFY_CLIENT_ID":         &c.Credentials.Spotify.ClientID,
		"SPOTIFY_CLIENT_SECRET":     &c.Credentials.Spotify.ClientSecret,
		"STORAGE_BACKEND":           &c.Storage.Backend,
		"STORAGE_BUCKET":            &c.Storage.Bucket,
		"STORAGE_REGION":            &c.Storage.Region,
		"STORAGE_ENDPOINT":          &c.Storage.Endpoint,
		"STORAGE_PUBLIC_URL":        &c.Storage.PublicURL,
		"STORAGE_ACCESS_KEY_ID":     &c.Storage.AccessKeyID,
		"STORAGE_SECRET_ACCESS_KEY": &c.Storage.SecretAccessKey,
		"TAGGING_API_KEY":           &c.Tagging.APIKey,
		"DATABASE_PATH":             &c.Database.Path,
	}

	for name, target := range overrides {
		if v, ok := lookup(envPrefix + name); ok && strings.TrimSpace(v) != "" {
			*target = strings.TrimSpace(v)
		}
	}
}

// Validate checks the settings required to run an ingestion.
func (c *Config) Validate() error {
	var problems []string

	if c.Database.Path == "" {
		problems = append(problems, "database.path is required")
	}
	if c.Credentials.Spotify.ClientID == "" || c.Credentials.Spotify.ClientSecret == "" {
		problems = append(problems, "credentials.spotify client_id and client_secret are required")
	}

	switch c.Storage.Backend {
	case "s3":
		if c.Storage.Bucket == "" {
			problems = append(problems, "storage.bucket is required for the s3 backend")
		}
	case "filesystem":
		if c.Storage.Root == "" {
			problems = append(problems, "storage.root is required for the filesystem backend")
		}
	case "memory":
	default:
		problems = append(problems, fmt.Sprintf("unknown storage.backend %q", c.Storage.Backend))
	}

	if c.Tagging.Enabled && c.Tagging.APIKey == "" {
		problems = append(problems, "tagging.api_key is required when tagging is enabled")
	}
	if c.Media.Workers < 0 {
		problems = append(problems, "media.workers must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sjawhar/ghost-minutes/internal/suggest"
	"github.com/sjawhar/ghost-minutes/internal/transcribe"
)

// EnvPrefix is the namespace prefix for all Ghost Minutes environment variables.
const EnvPrefix = "GHOST_MINUTES_"

// Config holds all application configuration. Secrets (API keys, connection
// strings) are loaded exclusively from environment variables and never
// appear in the config file.
type Config struct {
	Server        Server                     `yaml:"server"`
	Transcription Transcription              `yaml:"transcription"`
	Audio         Audio                      `yaml:"audio"`
	Grouping      transcribe.GroupThresholds `yaml:"grouping"`
	Summarization Summarization              `yaml:"summarization"`
	Pipeline      Pipeline                   `yaml:"pipeline"`
	Notify        Notify                     `yaml:"notify"`

	// Secrets, env vars only.
	OpenAIAPIKey           string `yaml:"-"`
	AnthropicAPIKey        string `yaml:"-"`
	GeminiAPIKey           string `yaml:"-"`
	DeepgramAPIKey         string `yaml:"-"`
	AzureStorageConnection string `yaml:"-"`
}

type Server struct {
	Listen     string `yaml:"listen"`
	DBPath     string `yaml:"db_path"`
	TempDir    string `yaml:"temp_dir"`
	ArchiveDir string `yaml:"archive_dir"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`
}

type Transcription struct {
	Provider       string                     `yaml:"provider"`
	Model          string                     `yaml:"model"`
	BaseURL        string                     `yaml:"base_url"`
	Language       string                     `yaml:"language"`
	MaxUploadBytes int64                      `yaml:"max_upload_bytes"`
	ChunkTimeout   string                     `yaml:"chunk_timeout"`
	Merge          transcribe.MergeThresholds `yaml:"merge"`
}

// Audio restricts which recordings an audio_ref may point at.
type Audio struct {
	LocalRoot      string   `yaml:"local_root"`
	AllowedSchemes []string `yaml:"allowed_schemes"`
	AllowedHosts   []string `yaml:"allowed_hosts"`
}

// Preset is a named summarization template.
type Preset struct {
	Description  string `yaml:"description"`
	SystemPrompt string `yaml:"system_prompt"`
	UserTemplate string `yaml:"user_template"`
	Model        string `yaml:"model"`
}

type Summarization struct {
	Model      string            `yaml:"model"`
	Presets    map[string]Preset `yaml:"presets"`
	LiveWindow int               `yaml:"live_window"`
	Caps       suggest.Caps      `yaml:"caps"`
}

type Pipeline struct {
	Workers         int    `yaml:"workers"`
	PersistAttempts int    `yaml:"persist_attempts"`
	PersistDelay    string `yaml:"persist_delay"`
	CacheTTL        string `yaml:"cache_ttl"`
	CacheSize       int    `yaml:"cache_size"`
}

type Notify struct {
	GDriveFolderID        string `yaml:"gdrive_folder_id"`
	GoogleCredentialsFile string `yaml:"google_credentials_file"`
}

func defaults() Config {
	return Config{
		Server: Server{
			Listen:     ":8080",
			DBPath:     "data/ghost-minutes.db",
			TempDir:    os.TempDir(),
			ArchiveDir: "data/minutes",
			LogLevel:   "info",
			LogFormat:  "text",
		},
		Transcription: Transcription{
			Provider:       "openai",
			MaxUploadBytes: transcribe.DefaultMaxUploadBytes,
			ChunkTimeout:   "10m",
			Merge:          transcribe.DefaultMergeThresholds(),
		},
		Audio: Audio{
			LocalRoot:      "data/recordings",
			AllowedSchemes: []string{"file", "azblob"},
		},
		Grouping: transcribe.DefaultGroupThresholds(),
		Summarization: Summarization{
			Model:      "openai/gpt-4o-mini",
			LiveWindow: 40,
			Caps:       suggest.DefaultCaps(),
		},
		Pipeline: Pipeline{
			Workers:         2,
			PersistAttempts: 3,
			PersistDelay:    "200ms",
			CacheTTL:        "30s",
			CacheSize:       256,
		},
		Notify: Notify{
			GoogleCredentialsFile: "./service-account.json",
		},
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ChunkTimeout returns the per-chunk transcription deadline, falling back
// to the consolidator default if the value is invalid.
func (c *Config) ChunkTimeout() time.Duration {
	return parseDurationOr(c.Transcription.ChunkTimeout, transcribe.DefaultChunkTimeout)
}

func (c *Config) PersistDelay() time.Duration {
	return parseDurationOr(c.Pipeline.PersistDelay, 200*time.Millisecond)
}

func (c *Config) CacheTTL() time.Duration {
	return parseDurationOr(c.Pipeline.CacheTTL, 30*time.Second)
}

// APIKey returns the secret for an LLM or transcription provider name.
func (c *Config) APIKey(provider string) string {
	switch provider {
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	case "gemini":
		return c.GeminiAPIKey
	case "deepgram":
		return c.DeepgramAPIKey
	}
	return ""
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Server.Listen, "LISTEN")
	setString(&cfg.Server.DBPath, "DB_PATH")
	setString(&cfg.Server.TempDir, "TEMP_DIR")
	setString(&cfg.Server.ArchiveDir, "ARCHIVE_DIR")
	setString(&cfg.Server.LogLevel, "LOG_LEVEL")
	setString(&cfg.Server.LogFormat, "LOG_FORMAT")
	setString(&cfg.Transcription.Provider, "TRANSCRIPTION_PROVIDER")
	setString(&cfg.Transcription.Model, "TRANSCRIPTION_MODEL")
	setString(&cfg.Transcription.BaseURL, "TRANSCRIPTION_BASE_URL")
	setString(&cfg.Transcription.Language, "LANGUAGE")
	setString(&cfg.Transcription.ChunkTimeout, "CHUNK_TIMEOUT")
	if v := os.Getenv(EnvPrefix + "MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && n > 0 {
			cfg.Transcription.MaxUploadBytes = n
		}
	}
	setString(&cfg.Audio.LocalRoot, "AUDIO_LOCAL_ROOT")
	setString(&cfg.Summarization.Model, "SUMMARY_MODEL")
	setInt(&cfg.Summarization.LiveWindow, "LIVE_WINDOW")
	setInt(&cfg.Pipeline.Workers, "WORKERS")
	setString(&cfg.Pipeline.CacheTTL, "CACHE_TTL")
	setString(&cfg.Notify.GDriveFolderID, "GDRIVE_FOLDER_ID")
	setString(&cfg.Notify.GoogleCredentialsFile, "GOOGLE_CREDENTIALS_FILE")
}

func setString(dst *string, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			*dst = n
		}
	}
}

func loadSecrets(cfg *Config) {
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv(EnvPrefix + "ANTHROPIC_API_KEY")
	cfg.GeminiAPIKey = os.Getenv(EnvPrefix + "GEMINI_API_KEY")
	cfg.DeepgramAPIKey = os.Getenv(EnvPrefix + "DEEPGRAM_API_KEY")
	cfg.AzureStorageConnection = os.Getenv(EnvPrefix + "AZURE_STORAGE_CONNECTION_STRING")
}

func validate(cfg *Config) []string {
	var warnings []string

	switch cfg.Transcription.Provider {
	case "openai", "deepgram":
		if cfg.APIKey(cfg.Transcription.Provider) == "" {
			warnings = append(warnings, fmt.Sprintf("%s API key not configured, audio transcription will fail. Set %s%s_API_KEY.",
				cfg.Transcription.Provider, EnvPrefix, strings.ToUpper(cfg.Transcription.Provider)))
		}
	default:
		warnings = append(warnings, fmt.Sprintf("Unknown transcription provider %q, expected openai or deepgram.", cfg.Transcription.Provider))
	}

	if provider, _, ok := strings.Cut(cfg.Summarization.Model, "/"); !ok {
		warnings = append(warnings, fmt.Sprintf("Invalid summarization model %q, expected provider/model.", cfg.Summarization.Model))
	} else if cfg.APIKey(provider) == "" {
		warnings = append(warnings, fmt.Sprintf("%s API key not configured, summaries will fail. Set %s%s_API_KEY.",
			provider, EnvPrefix, strings.ToUpper(provider)))
	}
	for name, preset := range cfg.Summarization.Presets {
		if !strings.Contains(preset.UserTemplate, "{{transcript}}") {
			warnings = append(warnings, fmt.Sprintf("Preset %q has no {{transcript}} placeholder.", name))
		}
	}

	if _, err := time.ParseDuration(cfg.Transcription.ChunkTimeout); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid chunk_timeout %q, using default %s.", cfg.Transcription.ChunkTimeout, transcribe.DefaultChunkTimeout))
	}
	if _, err := time.ParseDuration(cfg.Pipeline.PersistDelay); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid persist_delay %q, using default 200ms.", cfg.Pipeline.PersistDelay))
	}
	if _, err := time.ParseDuration(cfg.Pipeline.CacheTTL); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid cache_ttl %q, using default 30s.", cfg.Pipeline.CacheTTL))
	}
	if cfg.Pipeline.Workers <= 0 {
		cfg.Pipeline.Workers = 1
		warnings = append(warnings, "pipeline.workers must be positive, using 1.")
	}
	if cfg.Pipeline.PersistAttempts <= 0 {
		cfg.Pipeline.PersistAttempts = 3
		warnings = append(warnings, "pipeline.persist_attempts must be positive, using 3.")
	}
	if cfg.Notify.GDriveFolderID != "" {
		if _, err := os.Stat(cfg.Notify.GoogleCredentialsFile); err != nil {
			warnings = append(warnings, fmt.Sprintf("Google credentials file %q not readable, Drive export is disabled.", cfg.Notify.GoogleCredentialsFile))
		}
	}

	return warnings
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/MimeLyc/live-caption-history/internal/captionfilter"
	"github.com/MimeLyc/live-caption-history/internal/history"
	"github.com/MimeLyc/live-caption-history/internal/termmap"
	"github.com/MimeLyc/live-caption-history/internal/translator"
	"github.com/MimeLyc/live-caption-history/pkg/icron"
	"github.com/MimeLyc/live-caption-history/pkg/log"
)

// Config holds all application configuration
// Supports environment variables with sensible defaults
//
// Environment Variables:
// LLM Configuration (translation is disabled without LLM_API_KEY):
// - LLM_API_KEY, LLM_API_URL, LLM_MODEL, LLM_MAX_TOKENS, LLM_TEMPERATURE, LLM_TIMEOUT
//
// Storage Configuration:
// - STORAGE_BACKEND: sqlite or redis (default: sqlite)
// - DATA_DIR: Directory of the sqlite database (default: /app/data)
// - REDIS_ADDR, REDIS_PASSWORD, REDIS_DB: Redis connection when STORAGE_BACKEND=redis
//
// History Configuration:
// - HISTORY_STORAGE_KEY: Record key (default: meetTranslationHistory)
// - HISTORY_AUTOSAVE_MS: Autosave debounce (default: 30000)
// - HISTORY_MIN_SPEAKER_MS: Minimum turn duration, currently informational (default: 3000)
// - HISTORY_RETENTION_DAYS: Entries older than this are pruned, 0 disables (default: 7)
// - RETENTION_CRON: Schedule of the retention sweep (default: 0 * * * *)
// - TRANSCRIPT_POLICY: target or both (default: target)
//
// Filter Configuration:
// - FILTER_MIN_LENGTH, FILTER_DEBOUNCE_MS, FILTER_SIMILARITY, FILTER_MAX_CACHE
//
// System Configuration:
// - HTTP_ADDR (default: :8080), TARGET_LANGUAGE (default: vi), SETTINGS_FILE, GLOSSARY_FILE, TZ
type Config struct {
	LLM LLMConfig `json:"llm"`

	HTTP HTTPConfig `json:"http"`

	Storage StorageConfig `json:"storage"`

	History HistoryConfig `json:"history"`

	Filter captionfilter.Settings `json:"filter"`

	Translate TranslateConfig `json:"translate"`

	System SystemConfig `json:"system"`
}

// LLMConfig holds the configuration for LLM client
// Supports any OpenAI-compatible provider (OpenRouter, OpenAI, etc.)
type LLMConfig struct {
	APIKey      string  `json:"-"`
	APIURL      string  `json:"api_url"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Timeout     int     `json:"timeout"`
	AppName     string  `json:"app_name"`
}

type HTTPConfig struct {
	Addr string `json:"addr"`
}

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type StorageConfig struct {
	Backend       string `json:"backend"`
	DataDir       string `json:"data_dir"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"-"`
	RedisDB       int    `json:"redis_db"`
}

type HistoryConfig struct {
	StorageKey         string                   `json:"storage_key"`
	AutosaveInterval   time.Duration            `json:"autosave_interval"`
	MinSpeakerDuration time.Duration            `json:"min_speaker_duration"`
	RetentionDays      int                      `json:"retention_days"`
	RetentionCron      string                   `json:"retention_cron"`
	Policy             history.TranscriptPolicy `json:"policy"`
}

// Settings converts the configuration into history manager settings.
func (c HistoryConfig) Settings() history.Settings {
	return history.Settings{
		MinSpeakerDuration: c.MinSpeakerDuration,
		AutosaveInterval:   c.AutosaveInterval,
		StorageKey:         c.StorageKey,
		Policy:             c.Policy,
	}
}

// Retention is the age after which entries are pruned; zero means never.
func (c HistoryConfig) Retention() time.Duration {
	if c.RetentionDays <= 0 {
		return 0
	}
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

type TranslateConfig struct {
	TargetLanguage language.Tag `json:"target_language"`
	GlossaryFile   string       `json:"glossary_file"`
}

type SystemConfig struct {
	TZ           string `json:"tz"`
	SettingsFile string `json:"settings_file"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	policy, ok := history.ParsePolicy(getEnvString("TRANSCRIPT_POLICY", string(history.PolicyTargetOnly)))
	if !ok {
		log.Warn("Unknown TRANSCRIPT_POLICY, using %s", policy)
	}

	config := &Config{
		LLM: LLMConfig{
			APIKey:      getEnvString("LLM_API_KEY", ""),
			APIURL:      getEnvString("LLM_API_URL", "https://openrouter.ai/api/v1"),
			Model:       getEnvString("LLM_MODEL", "openai/gpt-4o-mini"),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 512),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.2),
			Timeout:     getEnvInt("LLM_TIMEOUT", 15),
			AppName:     getEnvString("LLM_APP_NAME", "live-caption-history"),
		},
		HTTP: HTTPConfig{
			Addr: getEnvString("HTTP_ADDR", ":8080"),
		},
		Storage: StorageConfig{
			Backend:       strings.ToLower(getEnvString("STORAGE_BACKEND", BackendSQLite)),
			DataDir:       getEnvString("DATA_DIR", "/app/data"),
			RedisAddr:     getEnvString("REDIS_ADDR", ""),
			RedisPassword: getEnvString("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
		},
		History: HistoryConfig{
			StorageKey:         getEnvString("HISTORY_STORAGE_KEY", history.DefaultStorageKey),
			AutosaveInterval:   getEnvMillis("HISTORY_AUTOSAVE_MS", 30*time.Second),
			MinSpeakerDuration: getEnvMillis("HISTORY_MIN_SPEAKER_MS", 3*time.Second),
			RetentionDays:      getEnvInt("HISTORY_RETENTION_DAYS", 7),
			RetentionCron:      getEnvString("RETENTION_CRON", "0 * * * *"),
			Policy:             policy,
		},
		Filter: captionfilter.Settings{
			MinLength:           getEnvInt("FILTER_MIN_LENGTH", 10),
			Debounce:            getEnvMillis("FILTER_DEBOUNCE_MS", time.Second),
			SimilarityThreshold: getEnvFloat("FILTER_SIMILARITY", 0.85),
			MaxCacheSize:        getEnvInt("FILTER_MAX_CACHE", 100),
		},
		Translate: TranslateConfig{
			TargetLanguage: getEnvLanguage("TARGET_LANGUAGE", language.Vietnamese),
			GlossaryFile:   getEnvString("GLOSSARY_FILE", ""),
		},
		System: SystemConfig{
			TZ:           getEnvString("TZ", "UTC"),
			SettingsFile: getEnvString("SETTINGS_FILE", ""),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Info("Config: http=%s storage=%s key=%s target=%s translation=%t",
		config.HTTP.Addr, config.Storage.Backend, config.History.StorageKey,
		config.Translate.TargetLanguage, config.TranslationEnabled())
	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	switch c.Storage.Backend {
	case BackendSQLite:
	case BackendRedis:
		if strings.TrimSpace(c.Storage.RedisAddr) == "" {
			return fmt.Errorf("REDIS_ADDR is required when STORAGE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND %q", c.Storage.Backend)
	}
	if c.History.RetentionDays > 0 {
		if _, err := icron.Parser.Parse(c.History.RetentionCron); err != nil {
			return fmt.Errorf("invalid RETENTION_CRON: %w", err)
		}
	}
	if !translator.IsSupportedTarget(c.Translate.TargetLanguage) {
		return fmt.Errorf("unsupported TARGET_LANGUAGE %s", c.Translate.TargetLanguage)
	}
	if err := RuntimeSettingsFromFilter(c.Filter).Validate(); err != nil {
		return fmt.Errorf("invalid filter settings: %w", err)
	}
	return nil
}

// TranslationEnabled reports whether an LLM is configured for caption translation.
func (c *Config) TranslationEnabled() bool {
	return strings.TrimSpace(c.LLM.APIKey) != ""
}

func (c *Config) DBPath() string {
	return filepath.Join(c.Storage.DataDir, "captions.db")
}

func (c *Config) LockPath() string {
	return filepath.Join(c.Storage.DataDir, "captiond.lock")
}

// RuntimeSettingsPath is the filter settings file, inside the data directory
// unless SETTINGS_FILE says otherwise.
func (c *Config) RuntimeSettingsPath() string {
	if c.System.SettingsFile != "" {
		return c.System.SettingsFile
	}
	return filepath.Join(c.Storage.DataDir, "filter-settings.json")
}

// GlossaryPath is the translation glossary, term_map.<target>.json in the data
// directory unless GLOSSARY_FILE says otherwise.
func (c *Config) GlossaryPath() string {
	if c.Translate.GlossaryFile != "" {
		return c.Translate.GlossaryFile
	}
	return termmap.FilePath(c.Storage.DataDir, c.Translate.TargetLanguage.String())
}

// Location is the time zone used for text exports.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.System.TZ)
	if err != nil {
		log.Warn("Unknown TZ %q, using UTC", c.System.TZ)
		return time.UTC
	}
	return loc
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvMillis reads a millisecond count as a duration
func getEnvMillis(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

func getEnvLanguage(key string, defaultValue language.Tag) language.Tag {
	if value := os.Getenv(key); value != "" {
		if tag, err := language.Parse(value); err == nil {
			return tag
		}
		log.Warn("Invalid %s %q, using %s", key, value, defaultValue)
	}
	return defaultValue
}

// Package config loads bot settings from environment variables with
// defaults and validation.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// RenderConfig holds the render service connection and the parameters
// applied to every generation.
type RenderConfig struct {
	APIKey            string        // VIDU_API_KEY (VIDO_API_KEY accepted)
	BaseURL           string        // VIDU_BASE_URL
	Model             string        // vidu2.0|vidu1.5|vidu1.0
	AspectRatio       string        // e.g. 16:9
	Resolution        string        // e.g. 360p
	Duration          int           // seconds
	MovementAmplitude string        // auto|small|medium|large
	EndingPrompt      string        // appended to every prompt
	Timeout           time.Duration // per HTTP request
	RateRPS           float64       // 0 disables pacing
	RateBurst         int
	PollInterval      time.Duration
	PollBudget        time.Duration
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	Driver   string // postgres|sqlite
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	Path     string // sqlite file
}

// OpenAIConfig enables prompt refinement and memory search.
type OpenAIConfig struct {
	APIKey        string
	RefinePrompts bool
}

// Config holds all configuration values for the bot.
type Config struct {
	DiscordToken  string
	AdminID       int64
	MemoryHistory int // entries listed by /memory

	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool
	MetricsAddr string // empty disables /metrics

	Render   RenderConfig
	Database DatabaseConfig
	OpenAI   OpenAIConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables, applies defaults,
// normalizes values and validates the result.
func Load() (Config, error) {
	cfg := Config{
		DiscordToken:  getenv("DISCORD_TOKEN", ""),
		AdminID:       getint64("ADMIN_ID", 0),
		MemoryHistory: getint("MEMORY_HISTORY", 5),

		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		MetricsAddr: getenv("METRICS_ADDR", ""),

		Render: RenderConfig{
			APIKey:            firstNonEmpty(os.Getenv("VIDU_API_KEY"), os.Getenv("VIDO_API_KEY")),
			BaseURL:           getenv("VIDU_BASE_URL", "https://api.vidu.com/ent/v2"),
			Model:             getenv("VIDU_MODEL", "vidu1.5"),
			AspectRatio:       getenv("VIDU_ASPECT_RATIO", "16:9"),
			Resolution:        getenv("VIDU_RESOLUTION", "360p"),
			Duration:          getint("VIDU_DURATION", 4),
			MovementAmplitude: strings.ToLower(getenv("VIDU_MOVEMENT_AMPLITUDE", "auto")),
			EndingPrompt:      getenv("ENDING_PROMPT", "2d animation"),
			Timeout:           getdur("RENDER_TIMEOUT", 30*time.Second),
			RateRPS:           getfloat("RENDER_RPS", 2),
			RateBurst:         getint("RENDER_BURST", 4),
			PollInterval:      getdur("POLL_INTERVAL", 5*time.Second),
			PollBudget:        getdur("POLL_BUDGET", 60*time.Second),
		},

		Database: DatabaseConfig{
			Driver:   strings.ToLower(getenv("DB_DRIVER", "postgres")),
			Host:     getenv("DB_HOST", "localhost"),
			Port:     getint("DB_PORT", 5432),
			User:     getenv("DB_USER", "postgres"),
			Password: getenv("DB_PASSWORD", ""),
			Name:     getenv("DB_NAME", "discord_video_bot"),
			Path:     getenv("DATABASE", "bot_data.db"),
		},

		OpenAI: OpenAIConfig{
			APIKey:        getenv("OPENAI_API_KEY", ""),
			RefinePrompts: getbool("OPENAI_REFINE_PROMPTS", false),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	switch cfg.Database.Driver {
	case "postgres", "sqlite":
	default:
		return cfg, errors.New("DB_DRIVER must be postgres or sqlite")
	}
	if cfg.Database.Driver == "sqlite" && strings.TrimSpace(cfg.Database.Path) == "" {
		return cfg, errors.New("DATABASE must not be empty")
	}
	switch cfg.Render.MovementAmplitude {
	case "auto", "small", "medium", "large":
	default:
		return cfg, errors.New("VIDU_MOVEMENT_AMPLITUDE must be one of: auto, small, medium, large")
	}
	if cfg.Render.Duration <= 0 {
		return cfg, errors.New("VIDU_DURATION must be > 0")
	}
	if cfg.Render.PollInterval <= 0 || cfg.Render.PollBudget <= 0 || cfg.Render.Timeout <= 0 {
		return cfg, errors.New("POLL_INTERVAL, POLL_BUDGET and RENDER_TIMEOUT must be positive durations")
	}
	if cfg.Render.PollBudget < cfg.Render.PollInterval {
		return cfg, errors.New("POLL_BUDGET must be >= POLL_INTERVAL")
	}
	if cfg.Render.RateRPS < 0 {
		return cfg, errors.New("RENDER_RPS must be >= 0")
	}
	if cfg.Render.RateBurst < 1 {
		return cfg, errors.New("RENDER_BURST must be >= 1")
	}
	if cfg.MemoryHistory < 1 {
		return cfg, errors.New("MEMORY_HISTORY must be >= 1")
	}

	return cfg, nil
}

// Validate checks the settings only needed to actually connect. Mock runs
// skip the render API key.
func (c Config) Validate(mock bool) error {
	if strings.TrimSpace(c.DiscordToken) == "" {
		return errors.New("DISCORD_TOKEN must be set")
	}
	if c.AdminID == 0 {
		return errors.New("ADMIN_ID must be set")
	}
	if !mock && strings.TrimSpace(c.Render.APIKey) == "" {
		return errors.New("VIDU_API_KEY must be set unless running with --mock")
	}
	return nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Package config reads runtime settings from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Port        string
	DatabaseURL string
	// HistoryDir holds the CLI's SQLite history; empty means ~/.mehelper.
	HistoryDir string

	// Empty endpoint and model values select the client defaults.
	AnalysisAPIKey   string
	AnalysisEndpoint string
	AnalysisModel    string
	AnalysisTimeout  time.Duration

	GeminiAPIKey string
	GeminiModel  string

	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string

	TelegramBotToken string
	EmergencyChatID  int64

	RedisURL string
	CacheTTL time.Duration

	TablesPath     string
	ReportFontPath string
	LogLevel       string
	LogFormat      string
	AllowedOrigins []string
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		HistoryDir:        os.Getenv("HISTORY_DB_DIR"),
		AnalysisAPIKey:    os.Getenv("HF_TOKEN"),
		AnalysisEndpoint:  os.Getenv("ANALYSIS_ENDPOINT"),
		AnalysisModel:     os.Getenv("ANALYSIS_MODEL"),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiModel:       os.Getenv("GEMINI_MODEL"),
		ElevenLabsAPIKey:  os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID: os.Getenv("ELEVENLABS_VOICE_ID"),
		TelegramBotToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		RedisURL:          os.Getenv("REDIS_URL"),
		TablesPath:        os.Getenv("TRIAGE_TABLES_PATH"),
		ReportFontPath:    os.Getenv("REPORT_FONT_PATH"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "text"),
		AllowedOrigins:    splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}

	var err error
	if cfg.AnalysisTimeout, err = getDuration("ANALYSIS_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = getDuration("CACHE_TTL", time.Hour); err != nil {
		return nil, err
	}
	if raw := os.Getenv("EMERGENCY_CHAT_ID"); raw != "" {
		if cfg.EmergencyChatID, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, fmt.Errorf("EMERGENCY_CHAT_ID must be an integer: %w", err)
		}
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	return cfg, nil
}

// NewLogger builds the process logger from LogLevel and LogFormat.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(c.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if c.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

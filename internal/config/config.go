package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration, loaded from the environment.
type Config struct {
	// Parties tracked by the ledger. Transfer amounts are attributed to
	// whichever of the two sent the message.
	PartyA string `env:"LEDGER_PARTY_A" envDefault:"Ricardo"`
	PartyB string `env:"LEDGER_PARTY_B" envDefault:"Rafael"`

	// Directories
	IncomingDir  string `env:"INCOMING_DIR"  envDefault:"./incoming"`
	ProcessedDir string `env:"PROCESSED_DIR" envDefault:"./processed"`
	DataDir      string `env:"DATA_DIR"      envDefault:"./data"`

	// Storage
	LedgerDBPath   string `env:"LEDGER_DB_PATH"    envDefault:""`
	OCRCachePath   string `env:"OCR_CACHE_PATH"    envDefault:""`
	CorrectionLog  string `env:"CORRECTION_LOG"    envDefault:""`

	// LLM
	LLMProvider   string        `env:"LLM_PROVIDER"    envDefault:"gemini"`
	GeminiModel   string        `env:"GEMINI_MODEL"    envDefault:"gemini-2.5-flash"`
	GeminiAPIKey  string        `env:"GEMINI_API_KEY"  envDefault:""`
	ClaudeModel   string        `env:"CLAUDE_MODEL"    envDefault:"claude-sonnet-4-5-20250929"`
	ClaudeAPIKey  string        `env:"ANTHROPIC_API_KEY" envDefault:""`
	LLMTimeout    time.Duration `env:"LLM_TIMEOUT"     envDefault:"60s"`

	// Ingestion
	WorkerCount int `env:"WORKER_COUNT" envDefault:"4"`

	// OCR
	OCRLanguage string `env:"OCR_LANGUAGE" envDefault:"por"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load loads configuration from environment variables and fills in the
// storage paths that default relative to DataDir.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	if cfg.LedgerDBPath == "" {
		cfg.LedgerDBPath = cfg.DataDir + "/ledger.db"
	}
	if cfg.OCRCachePath == "" {
		cfg.OCRCachePath = cfg.DataDir + "/ocr-cache.db"
	}
	if cfg.CorrectionLog == "" {
		cfg.CorrectionLog = cfg.DataDir + "/corrections.jsonl"
	}
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}

	return cfg, nil
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        int
	LogLevel    string
	NatsURL     string
	NatsToken   string
	DatabaseURL string
	WebhookURL  string

	FrameListPath string
	StatePath     string

	Workers     int
	OrderPolicy string
	BatchSize   int
	Stagger     time.Duration
	MaxRetries  int
	RatePerSec  float64
	RateBurst   int

	OCRBinary  string
	OCRArgs    []string
	OCRTimeout time.Duration

	AnthropicAPIKey string
	AnthropicModel  string
	AnalysisTimeout time.Duration
	FrameTimeout    time.Duration
	BatchTimeout    time.Duration

	AirtableAPIKeys []string
	AirtableBaseID  string
	AirtableTable   string
	PathField       string
	OCRField        string
	FlaggedField    string
	TypesField      string
}

func Load() Config {
	return Config{
		Port:        envInt("FRAMESIFT_PORT", 8760),
		LogLevel:    envStr("LOG_LEVEL", "info"),
		NatsURL:     envStr("NATS_URL", ""),
		NatsToken:   envStr("NATS_TOKEN", ""),
		DatabaseURL: envStr("DATABASE_URL", ""),
		WebhookURL:  envStr("FRAMESIFT_WEBHOOK_URL", ""),

		FrameListPath: envStr("FRAMESIFT_FRAME_LIST", ""),
		StatePath:     envStr("FRAMESIFT_STATE_PATH", "framesift_state.json"),

		Workers:     envInt("FRAMESIFT_WORKERS", 3),
		OrderPolicy: envStr("FRAMESIFT_ORDER", "chronological"),
		BatchSize:   envInt("FRAMESIFT_BATCH_SIZE", 25),
		Stagger:     envDur("FRAMESIFT_STAGGER", 10*time.Second),
		MaxRetries:  envInt("FRAMESIFT_MAX_RETRIES", 3),
		RatePerSec:  envFloat("FRAMESIFT_RATE_PER_SEC", 4),
		RateBurst:   envInt("FRAMESIFT_RATE_BURST", 4),

		OCRBinary:  envStr("FRAMESIFT_OCR_BINARY", "tesseract"),
		OCRArgs:    envList("FRAMESIFT_OCR_ARGS"),
		OCRTimeout: envDur("FRAMESIFT_OCR_TIMEOUT", 60*time.Second),

		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envStr("FRAMESIFT_MODEL", "claude-sonnet-4-20250514"),
		AnalysisTimeout: envDur("FRAMESIFT_ANALYSIS_TIMEOUT", 60*time.Second),
		FrameTimeout:    envDur("FRAMESIFT_FRAME_TIMEOUT", 2*time.Minute),
		BatchTimeout:    envDur("FRAMESIFT_BATCH_TIMEOUT", 10*time.Minute),

		AirtableAPIKeys: envList("AIRTABLE_API_KEYS"),
		AirtableBaseID:  envStr("AIRTABLE_BASE_ID", ""),
		AirtableTable:   envStr("AIRTABLE_TABLE", "Frames"),
		PathField:       envStr("FRAMESIFT_PATH_FIELD", "FramePath"),
		OCRField:        envStr("FRAMESIFT_OCR_FIELD", "OCRData"),
		FlaggedField:    envStr("FRAMESIFT_FLAGGED_FIELD", "Flagged"),
		TypesField:      envStr("FRAMESIFT_TYPES_FIELD", "SensitiveContentTypes"),
	}
}

// Validate checks the settings a run cannot start without.
func (c Config) Validate() error {
	if c.FrameListPath == "" {
		return fmt.Errorf("FRAMESIFT_FRAME_LIST is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("FRAMESIFT_WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.DatabaseURL == "" {
		if len(c.AirtableAPIKeys) == 0 {
			return fmt.Errorf("AIRTABLE_API_KEYS or DATABASE_URL is required")
		}
		if c.AirtableBaseID == "" {
			return fmt.Errorf("AIRTABLE_BASE_ID is required")
		}
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envList splits a comma-separated env var, trimming whitespace and
// dropping empty entries.
func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppPort int

	GeminiAPIKey  string
	DetectModel   string
	AnalyzeModel  string
	EvaluateModel string

	MaxVolumesToTry     int
	MaxPages            int
	EvaluationThreshold float64

	NavTimeout  time.Duration
	StepWait    time.Duration
	CallTimeout time.Duration

	// PromptsPath optionally points at a YAML file overriding the built-in
	// stage prompts.
	PromptsPath string
}

func Load() (*Config, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("environment variable GEMINI_API_KEY is required but not set")
	}

	appPort, err := getEnvInt("APP_PORT", 8080)
	if err != nil {
		return nil, err
	}
	maxVolumes, err := getEnvInt("MAX_VOLUMES_TO_TRY", 5)
	if err != nil {
		return nil, err
	}
	maxPages, err := getEnvInt("MAX_PREVIEW_PAGES", 10)
	if err != nil {
		return nil, err
	}
	threshold, err := getEnvFloat("EVALUATION_THRESHOLD", 0.8)
	if err != nil {
		return nil, err
	}

	return &Config{
		AppPort:             appPort,
		GeminiAPIKey:        apiKey,
		DetectModel:         getEnv("DETECT_MODEL", "gemini-2.5-pro"),
		AnalyzeModel:        getEnv("ANALYZE_MODEL", "gemini-1.5-pro"),
		EvaluateModel:       getEnv("EVALUATE_MODEL", "gemini-2.5-flash"),
		MaxVolumesToTry:     maxVolumes,
		MaxPages:            maxPages,
		EvaluationThreshold: threshold,
		NavTimeout:          30 * time.Second,
		StepWait:            2 * time.Second,
		CallTimeout:         2 * time.Minute,
		PromptsPath:         os.Getenv("PROMPTS_PATH"),
	}, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be a number: %w", key, err)
	}
	return f, nil
}

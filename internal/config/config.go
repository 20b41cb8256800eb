package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Session  SessionConfig
	Pipeline PipelineConfig
	Intake   IntakeConfig
	SMTP     SMTPConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	StreamLogFilePath  string
	CorsAllowedOrigins string
}

type SessionConfig struct {
	// TTL is the inactivity timeout after which a session becomes eligible
	// for reclamation.
	TTL           time.Duration
	SweepInterval time.Duration
	// MaxValidationAttempts caps failed gateway passes before the session is
	// flagged for manual review. 0 disables the cap.
	MaxValidationAttempts int
}

type PipelineConfig struct {
	MaxStageRetries uint64
	RetryBaseDelay  time.Duration
	// StreamBuffer is the bounded per-subscriber event buffer. Oldest events
	// are dropped when a slow consumer falls behind.
	StreamBuffer int
}

type IntakeConfig struct {
	// Extractor selects the field-extraction collaborator: "ollama" or "rules".
	Extractor     string
	OllamaBaseURL string
	OllamaModel   string
}

type SMTPConfig struct {
	Host       string
	Port       int
	Email      string
	Password   string
	SenderName string
	// NotifyOutcome enables mailing the final decision to the applicant.
	NotifyOutcome bool
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			StreamLogFilePath:  getEnv("STREAM_LOG_FILE_PATH", "logs/stream.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		},
		Session: SessionConfig{
			TTL:                   getEnvAsDuration("SESSION_TTL", 30*time.Minute),
			SweepInterval:         getEnvAsDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),
			MaxValidationAttempts: getEnvAsInt("MAX_VALIDATION_ATTEMPTS", 3),
		},
		Pipeline: PipelineConfig{
			MaxStageRetries: uint64(getEnvAsInt("MAX_STAGE_RETRIES", 3)),
			RetryBaseDelay:  getEnvAsDuration("STAGE_RETRY_BASE_DELAY", 500*time.Millisecond),
			StreamBuffer:    getEnvAsInt("STREAM_BUFFER", 64),
		},
		Intake: IntakeConfig{
			Extractor:     getEnv("INTAKE_EXTRACTOR", "rules"),
			OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OllamaModel:   getEnv("OLLAMA_MODEL", "llama3"),
		},
		SMTP: SMTPConfig{
			Host:          getEnv("SMTP_HOST", ""),
			Port:          getEnvAsInt("SMTP_PORT", 587),
			Email:         getEnv("SMTP_EMAIL", ""),
			Password:      getEnv("SMTP_PASSWORD", ""),
			SenderName:    getEnv("SMTP_SENDER_NAME", "LoanFlow"),
			NotifyOutcome: getEnv("NOTIFY_OUTCOME", "false") == "true",
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}

package config

import (
	"fmt"
	"os"
)

// Config holds application configuration
type Config struct {
	Port             string
	DBConn           string
	LogLevel         string
	DocumentDir      string
	RequirementsFile string
	DispatchSpec     string

	// Field extractor (LLM OCR) settings
	OpenAIKey     string
	OpenAIModel   string
	OpenAIBaseURL string

	// Optional SMTP notification settings
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SenderEmail  string
	NotifyEmail  string
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		DBConn:           getEnv("DB_CONN", "host=localhost port=5432 user=test password=test dbname=income sslmode=disable"),
		LogLevel:         getEnv("LOG_LEVEL", "INFO"),
		DocumentDir:      getEnv("DOCUMENT_DIR", "/var/lib/income-engine/documents"),
		RequirementsFile: getEnv("REQUIREMENTS_FILE", ""),
		DispatchSpec:     getEnv("DISPATCH_SPEC", "@every 15s"),
		OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:      getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", ""),
		SMTPHost:         getEnv("SMTP_HOST", ""),
		SMTPPort:         getEnv("SMTP_PORT", "587"),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		SenderEmail:      getEnv("SENDER_EMAIL", "noreply@income-engine.local"),
		NotifyEmail:      getEnv("NOTIFY_EMAIL", ""),
	}

	if cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}

	return cfg, nil
}

// NotificationsEnabled reports whether SMTP settings are complete enough to send
func (c *Config) NotificationsEnabled() bool {
	return c.SMTPHost != "" && c.NotifyEmail != ""
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

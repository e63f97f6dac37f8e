// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// CallSafetyConfig provides the demo-mode destination safety settings.
type CallSafetyConfig interface {
	GetDemoMode() bool
	GetDemoToNumbers() []string
	GetDemoNumberStrategy() string
	GetScopeCallsToDemoList() bool
	GetAllowOutboundCalls() bool
}

// VoiceConfig provides settings for the voice-agent platform client.
type VoiceConfig interface {
	GetVoiceAPIURL() string
	GetVoiceAPIKey() string
	GetVoicePhoneNumberID() string
	GetWebhookBaseURL() string
	GetWebhookSecret() string
}

// AIConfig provides settings for the damage-analysis and report-synthesis models.
type AIConfig interface {
	GetGeminiAPIKey() string
	GetAnalysisModel() string
	GetReportModel() string
}

// SchedulerConfig provides settings for the asynq task queue.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetStuckSessionAge() time.Duration
}

// EmailConfig provides settings for report-ready email notifications.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetAppBaseURL() string
}

// StorageConfig provides settings for MinIO S3-compatible photo storage.
type StorageConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketDamagePhotos() string
	IsMinIOEnabled() bool
}

// DemoShopsConfig provides the optional demo shop directory file.
type DemoShopsConfig interface {
	GetDemoShopsFile() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                     string
	HTTPAddr                string
	DatabaseURL             string
	JWTAccessSecret         string
	CORSAllowAll            bool
	CORSOrigins             []string
	CORSAllowCreds          bool
	DemoMode                bool
	DemoToNumbers           []string
	DemoNumberStrategy      string
	ScopeCallsToDemoList    bool
	AllowOutboundCalls      bool
	VoiceAPIURL             string
	VoiceAPIKey             string
	VoicePhoneNumberID      string
	WebhookBaseURL          string
	WebhookSecret           string
	GeminiAPIKey            string
	AnalysisModel           string
	ReportModel             string
	RedisURL                string
	RedisTLSInsecure        bool
	AsynqQueueName          string
	AsynqConcurrency        int
	StuckSessionAge         time.Duration
	EmailEnabled            bool
	SMTPHost                string
	SMTPPort                int
	SMTPUsername            string
	SMTPPassword            string
	EmailFromName           string
	EmailFromAddress        string
	AppBaseURL              string
	MinIOEndpoint           string
	MinIOAccessKey          string
	MinIOSecretKey          string
	MinIOUseSSL             bool
	MinioBucketDamagePhotos string
	DemoShopsFile           string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// CallSafetyConfig implementation
func (c *Config) GetDemoMode() bool             { return c.DemoMode }
func (c *Config) GetDemoToNumbers() []string    { return c.DemoToNumbers }
func (c *Config) GetDemoNumberStrategy() string { return c.DemoNumberStrategy }
func (c *Config) GetScopeCallsToDemoList() bool { return c.ScopeCallsToDemoList }
func (c *Config) GetAllowOutboundCalls() bool   { return c.AllowOutboundCalls }

// VoiceConfig implementation
func (c *Config) GetVoiceAPIURL() string        { return c.VoiceAPIURL }
func (c *Config) GetVoiceAPIKey() string        { return c.VoiceAPIKey }
func (c *Config) GetVoicePhoneNumberID() string { return c.VoicePhoneNumberID }
func (c *Config) GetWebhookBaseURL() string     { return c.WebhookBaseURL }
func (c *Config) GetWebhookSecret() string      { return c.WebhookSecret }

// AIConfig implementation
func (c *Config) GetGeminiAPIKey() string  { return c.GeminiAPIKey }
func (c *Config) GetAnalysisModel() string { return c.AnalysisModel }
func (c *Config) GetReportModel() string   { return c.ReportModel }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string               { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool         { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string         { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int          { return c.AsynqConcurrency }
func (c *Config) GetStuckSessionAge() time.Duration { return c.StuckSessionAge }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) GetAppBaseURL() string       { return c.AppBaseURL }

// StorageConfig implementation
func (c *Config) GetMinIOEndpoint() string           { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string          { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string          { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool               { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketDamagePhotos() string { return c.MinioBucketDamagePhotos }
func (c *Config) IsMinIOEnabled() bool               { return c.MinIOEndpoint != "" }

// DemoShopsConfig implementation
func (c *Config) GetDemoShopsFile() string { return c.DemoShopsFile }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                     getEnv("APP_ENV", "development"),
		HTTPAddr:                getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:             getEnv("DATABASE_URL", ""),
		JWTAccessSecret:         getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:            corsAllowAll,
		CORSOrigins:             corsOrigins,
		CORSAllowCreds:          strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		DemoMode:                strings.EqualFold(getEnv("DEMO_MODE", "true"), "true"),
		DemoToNumbers:           splitCSV(getEnv("DEMO_TO_NUMBERS", "")),
		DemoNumberStrategy:      strings.ToLower(getEnv("DEMO_NUMBER_STRATEGY", "round_robin")),
		ScopeCallsToDemoList:    strings.EqualFold(getEnv("SCOPE_CALLS_TO_DEMO_LIST", "false"), "true"),
		AllowOutboundCalls:      strings.EqualFold(getEnv("ALLOW_OUTBOUND_CALLS", "true"), "true"),
		VoiceAPIURL:             getEnv("VOICE_API_URL", "https://api.vapi.ai"),
		VoiceAPIKey:             getEnv("VOICE_API_KEY", ""),
		VoicePhoneNumberID:      getEnv("VOICE_PHONE_NUMBER_ID", ""),
		WebhookBaseURL:          getEnv("WEBHOOK_BASE_URL", "http://localhost:8080"),
		WebhookSecret:           getEnv("WEBHOOK_SECRET", ""),
		GeminiAPIKey:            getEnv("GEMINI_API_KEY", ""),
		AnalysisModel:           getEnv("ANALYSIS_MODEL", "gemini-2.5-flash"),
		ReportModel:             getEnv("REPORT_MODEL", "gemini-2.5-flash"),
		RedisURL:                getEnv("REDIS_URL", ""),
		RedisTLSInsecure:        strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:          getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:        mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		StuckSessionAge:         mustDuration(getEnv("STUCK_SESSION_AGE", "2h")),
		EmailEnabled:            strings.EqualFold(getEnv("EMAIL_ENABLED", "false"), "true"),
		SMTPHost:                getEnv("SMTP_HOST", ""),
		SMTPPort:                mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:            getEnv("SMTP_USERNAME", ""),
		SMTPPassword:            getEnv("SMTP_PASSWORD", ""),
		EmailFromName:           getEnv("EMAIL_FROM_NAME", "GarageCall"),
		EmailFromAddress:        getEnv("EMAIL_FROM_ADDRESS", ""),
		AppBaseURL:              getEnv("APP_BASE_URL", ""),
		MinIOEndpoint:           getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:          getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:          getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:             strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinioBucketDamagePhotos: getEnv("MINIO_BUCKET_DAMAGE_PHOTOS", "damage-photos"),
		DemoShopsFile:           getEnv("DEMO_SHOPS_FILE", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.DemoNumberStrategy != "round_robin" && cfg.DemoNumberStrategy != "first" {
		return nil, fmt.Errorf("DEMO_NUMBER_STRATEGY must be round_robin or first, got %q", cfg.DemoNumberStrategy)
	}
	if cfg.DemoMode && len(cfg.DemoToNumbers) == 0 {
		return nil, fmt.Errorf("DEMO_TO_NUMBERS is required when DEMO_MODE is true")
	}
	if cfg.EmailEnabled && (cfg.SMTPHost == "" || cfg.EmailFromAddress == "") {
		return nil, fmt.Errorf("SMTP_HOST and EMAIL_FROM_ADDRESS are required when EMAIL_ENABLED is true")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}

package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host        string
	Port        int
	MaxUploadMB int64
}

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type AuthConfig struct {
	AccessSecret string
}

type DetectionConfig struct {
	Endpoint   string
	APIKey     string
	Confidence int
	Overlap    int
	Timeout    time.Duration
}

type StorageConfig struct {
	ArtifactDir string
	ReportName  string
}

type R2Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	PublicBaseURL string
}

type LiveConfig struct {
	DefaultSessionID string
	MaxSessions      int
}

type ReportConfig struct {
	Seed      int64
	WriteXLSX bool
}

type TelegramConfig struct {
	Token       string
	ChatID      int64
	APIEndpoint string
}

type Config struct {
	Environment string
	LogLevel    string
	HTTP        HTTPConfig
	DB          DBConfig
	Auth        AuthConfig
	Detection   DetectionConfig
	Storage     StorageConfig
	R2          R2Config
	Live        LiveConfig
	Report      ReportConfig
	Telegram    TelegramConfig
}

func Load() (*Config, error) {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")
	v.AddConfigPath("./internal/config")

	v.AutomaticEnv()

	v.SetDefault("HTTP_HOST", "0.0.0.0")
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("HTTP_MAX_UPLOAD_MB", 50)
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DETECTION_ENDPOINT", "https://detect.roboflow.com/car-damage-detection-t0g92/3")
	v.SetDefault("DETECTION_CONFIDENCE", 40)
	v.SetDefault("DETECTION_OVERLAP", 30)
	v.SetDefault("DETECTION_TIMEOUT", 30*time.Second)
	v.SetDefault("ARTIFACT_DIR", "static")
	v.SetDefault("REPORT_NAME", "inspection_report")
	v.SetDefault("LIVE_DEFAULT_SESSION_ID", "default")
	v.SetDefault("LIVE_MAX_SESSIONS", 64)
	v.SetDefault("REPORT_WRITE_XLSX", true)
	v.SetDefault("TELEGRAM_API_ENDPOINT", "https://api.telegram.org/bot%s/%s")

	_ = v.ReadInConfig()

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		HTTP: HTTPConfig{
			Host:        v.GetString("HTTP_HOST"),
			Port:        v.GetInt("HTTP_PORT"),
			MaxUploadMB: v.GetInt64("HTTP_MAX_UPLOAD_MB"),
		},
		DB: DBConfig{
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
		Auth: AuthConfig{
			AccessSecret: v.GetString("JWT_ACCESS_SECRET"),
		},
		Detection: DetectionConfig{
			Endpoint:   v.GetString("DETECTION_ENDPOINT"),
			APIKey:     v.GetString("DETECTION_API_KEY"),
			Confidence: v.GetInt("DETECTION_CONFIDENCE"),
			Overlap:    v.GetInt("DETECTION_OVERLAP"),
			Timeout:    v.GetDuration("DETECTION_TIMEOUT"),
		},
		Storage: StorageConfig{
			ArtifactDir: v.GetString("ARTIFACT_DIR"),
			ReportName:  v.GetString("REPORT_NAME"),
		},
		R2: R2Config{
			Endpoint:      v.GetString("R2_ENDPOINT"),
			AccessKey:     v.GetString("R2_ACCESS_KEY_ID"),
			SecretKey:     v.GetString("R2_SECRET_ACCESS_KEY"),
			Bucket:        v.GetString("R2_BUCKET"),
			Region:        v.GetString("R2_REGION"),
			PublicBaseURL: v.GetString("R2_PUBLIC_BASE_URL"),
		},
		Live: LiveConfig{
			DefaultSessionID: v.GetString("LIVE_DEFAULT_SESSION_ID"),
			MaxSessions:      v.GetInt("LIVE_MAX_SESSIONS"),
		},
		Report: ReportConfig{
			Seed:      v.GetInt64("REPORT_SEED"),
			WriteXLSX: v.GetBool("REPORT_WRITE_XLSX"),
		},
		Telegram: TelegramConfig{
			Token:       v.GetString("TELEGRAM_TOKEN"),
			ChatID:      v.GetInt64("TELEGRAM_CHAT_ID"),
			APIEndpoint: v.GetString("TELEGRAM_API_ENDPOINT"),
		},
	}

	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.Detection.Timeout <= 0 {
		cfg.Detection.Timeout = 30 * time.Second
	}
	if cfg.Live.MaxSessions <= 0 {
		cfg.Live.MaxSessions = 64
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if cfg.Auth.AccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.Detection.APIKey == "" {
		return fmt.Errorf("DETECTION_API_KEY is required")
	}
	if cfg.Detection.Confidence < 0 || cfg.Detection.Confidence > 100 {
		return fmt.Errorf("DETECTION_CONFIDENCE must be within 0..100")
	}
	if cfg.Detection.Overlap < 0 || cfg.Detection.Overlap > 100 {
		return fmt.Errorf("DETECTION_OVERLAP must be within 0..100")
	}
	if cfg.Storage.ArtifactDir == "" {
		return fmt.Errorf("ARTIFACT_DIR is required")
	}
	return nil
}

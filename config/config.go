// Package config loads engine configuration from the environment and owns
// the shared *gorm.DB connection, mirroring the teacher's config package
// shape (package-level DB/AppConfig, LoadConfig/ConnectDB, godotenv for
// local development) trimmed down to what the engine actually needs —
// Stripe, OAuth-provider, and warmup settings are gone along with the
// product surface they configured.
package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"verifyengine/models"
)

var (
	DB        *gorm.DB
	AppConfig Config
	envLoaded bool
)

type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type SMTPConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"-"`
	FromName  string `json:"from_name"`
	FromEmail string `json:"from_email"`
}

type Config struct {
	Environment    string `json:"environment"`
	JWTSecret      string `json:"-"`
	ServerPort     string `json:"server_port"`
	DBHost         string `json:"db_host"`
	DBPort         string `json:"db_port"`
	DBUser         string `json:"db_user"`
	DBPassword     string `json:"-"`
	DBName         string `json:"db_name"`
	DBSSLMode      string `json:"db_ssl_mode"`
	DBMaxIdleConns int    `json:"db_max_idle_conns"`
	DBMaxOpenConns int    `json:"db_max_open_conns"`

	Redis RedisConfig `json:"redis"`
	SMTP  SMTPConfig  `json:"smtp"`

	SentryDSN string `json:"-"`
	LogLevel  string `json:"log_level"`

	// VerifyHeloDomain is the domain this engine presents itself as when
	// probing a remote SMTP server (§4.5).
	VerifyHeloDomain string `json:"verify_helo_domain"`
	// VerifyMailFrom is the envelope sender used for outbound probes.
	VerifyMailFrom string `json:"verify_mail_from"`

	SingleWorkerConcurrency int `json:"single_worker_concurrency"`
	BulkWorkerConcurrency   int `json:"bulk_worker_concurrency"`

	// IPPool lists the outbound addresses the Rate Governor round-robins
	// across for SMTP probes (§4.4, §6 ip_pool).
	IPPool []string `json:"ip_pool"`
}

func init() {
	_ = godotenv.Load()
	envLoaded = true
}

func LoadConfig() error {
	AppConfig = Config{
		Environment:    getEnv("ENVIRONMENT", "development"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		ServerPort:     getEnv("SERVER_PORT", "5000"),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "verifyengine"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		Redis: RedisConfig{
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		SMTP: SMTPConfig{
			Host:      getEnv("SMTP_HOST", ""),
			Port:      getEnvAsInt("SMTP_PORT", 587),
			Username:  getEnv("SMTP_USERNAME", ""),
			Password:  getEnv("SMTP_PASSWORD", ""),
			FromName:  getEnv("SMTP_FROM_NAME", "Email Verify Engine"),
			FromEmail: getEnv("SMTP_FROM_EMAIL", ""),
		},

		SentryDSN: getEnv("SENTRY_DSN", ""),
		LogLevel:  getEnv("LOG_LEVEL", "info"),

		VerifyHeloDomain: getEnv("VERIFY_HELO_DOMAIN", "mail.example.com"),
		VerifyMailFrom:   getEnv("VERIFY_MAIL_FROM", "probe@example.com"),

		SingleWorkerConcurrency: getEnvAsInt("SINGLE_WORKER_CONCURRENCY", 20),
		BulkWorkerConcurrency:   getEnvAsInt("BULK_WORKER_CONCURRENCY", 5),

		IPPool: getEnvAsList("IP_POOL", nil),
	}

	if AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if AppConfig.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	logConfig()
	return nil
}

func ConnectDB() error {
	log.Println("attempting to connect to database")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost, AppConfig.DBPort, AppConfig.DBUser,
		AppConfig.DBPassword, AppConfig.DBName, AppConfig.DBSSLMode,
	)
	log.Println("using connection string:", maskPassword(dsn))

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("connected to database, starting migration")
	if err := DB.AutoMigrate(
		&models.User{},
		&models.APIKey{},
		&models.BatchJob{},
		&models.VerificationLog{},
	); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("migration complete")
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		log.Printf("environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

// getEnvAsList splits a comma-separated env var, trimming whitespace
// around each entry and dropping empty ones.
func getEnvAsList(key string, fallback []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	if _, err := fmt.Sscanf(valueStr, "%d", &value); err != nil {
		return fallback
	}
	return value
}

func maskPassword(dsn string) string {
	const marker = "password="
	start := strings.Index(dsn, marker)
	if start == -1 {
		return dsn
	}
	start += len(marker)
	end := strings.IndexAny(dsn[start:], " ")
	if end == -1 {
		return dsn[:start] + "*****"
	}
	return dsn[:start] + "*****" + dsn[start+end:]
}

func logConfig() {
	log.Println("loaded configuration:")
	log.Printf("environment: %s", AppConfig.Environment)
	log.Printf("server port: %s", AppConfig.ServerPort)
	log.Printf("database: %s@%s:%s/%s", AppConfig.DBUser, AppConfig.DBHost, AppConfig.DBPort, AppConfig.DBName)
}

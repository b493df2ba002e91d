package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config содержит конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Session  SessionConfig
	Comments CommentsConfig
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Host       string
	Port       string
	CORSOrigin string
}

// DatabaseConfig содержит настройки базы данных
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig содержит настройки Redis для хранения сессий.
// Пустой URL означает хранение сессий в памяти процесса.
type RedisConfig struct {
	URL string
}

// SessionConfig содержит настройки cookie посетителя
type SessionConfig struct {
	CookieName string
	Lifetime   time.Duration
	Secure     bool
}

// CommentsConfig содержит правила приема комментариев
type CommentsConfig struct {
	PrivilegedEmail string
	MaxLength       int
	Cooldown        time.Duration
	MaxReplyDepth   int
	OrphansAsRoots  bool
}

// Load загружает конфигурацию из переменных окружения
// Приоритет: переменные окружения системы > .env файл > значения по умолчанию
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := &envParser{}
	cfg := &Config{
		Server: ServerConfig{
			Host:       getEnv("SERVER_HOST", "localhost"),
			Port:       getEnv("SERVER_PORT", "8080"),
			CORSOrigin: getEnv("CORS_ORIGIN", "*"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "pagecomments"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Session: SessionConfig{
			CookieName: getEnv("SESSION_COOKIE_NAME", "comments_session"),
			Lifetime:   time.Duration(env.getInt("SESSION_LIFETIME_HOURS", 24*365)) * time.Hour,
			Secure:     env.getBool("SESSION_SECURE", false),
		},
		Comments: CommentsConfig{
			PrivilegedEmail: getEnv("COMMENTS_ADMIN_EMAIL", ""),
			MaxLength:       env.getInt("COMMENTS_MAX_LENGTH", 1000),
			Cooldown:        time.Duration(env.getInt("COMMENTS_COOLDOWN_MS", 30000)) * time.Millisecond,
			MaxReplyDepth:   env.getInt("COMMENTS_MAX_REPLY_DEPTH", 3),
			OrphansAsRoots:  env.getBool("COMMENTS_ORPHANS_AS_ROOTS", false),
		},
	}

	if err := env.err(); err != nil {
		return nil, err
	}

	if cfg.Comments.MaxLength <= 0 {
		return nil, fmt.Errorf("COMMENTS_MAX_LENGTH must be positive, got %d", cfg.Comments.MaxLength)
	}
	if cfg.Comments.Cooldown < 0 {
		return nil, fmt.Errorf("COMMENTS_COOLDOWN_MS must not be negative")
	}

	return cfg, nil
}

// DSN возвращает строку подключения к PostgreSQL
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envParser разбирает числовые и логические переменные и копит ошибки разбора
type envParser struct {
	errs []error
}

func (p *envParser) getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid integer %q", key, value))
		return defaultValue
	}
	return parsed
}

func (p *envParser) getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid boolean %q", key, value))
		return defaultValue
	}
	return parsed
}

func (p *envParser) err() error {
	return errors.Join(p.errs...)
}

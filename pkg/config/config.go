// Package config loads service configuration from the environment.
// Every compliance threshold is tunable here; nothing is baked into engine code.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"custodia/pkg/errors"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Risk       RiskConfig
	Monitoring MonitoringConfig
	Policy     PolicyConfig
	Tiers      TierConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

// RiskConfig drives the per-transaction risk assessment engine.
type RiskConfig struct {
	SingleTxLimit        decimal.Decimal // single-transaction reporting limit
	DailyThreshold       decimal.Decimal // daily monitoring threshold
	Cumulative30DayLimit decimal.Decimal
	StructuringThreshold decimal.Decimal
	VelocityThreshold    int
	VelocityWindow       time.Duration
	NewAccountAge        time.Duration

	HighRiskJurisdictions []string
	SanctionsPatterns     []string

	// Decision thresholds. Independently tunable from the action ladder.
	BlockScore  int
	ReviewScore int
	EDDScore    int

	SARFilingWindow time.Duration
}

// MonitoringConfig drives the real-time monitor's flag/block thresholds.
type MonitoringConfig struct {
	FlagScore     int
	BlockScore    int
	SweepInterval time.Duration
	SweepWindow   time.Duration
}

// PolicyConfig is the pre-signing instruction policy: the on-chain programs a
// customer-signed transaction may invoke and the structural limits applied.
type PolicyConfig struct {
	AllowedPrograms          []string
	SystemProgramID          string
	TokenProgramID           string
	MaxInstructions          int
	MinTokenTransferAccounts int

	// Amounts in base units of the native asset.
	HighValueThreshold uint64
	// Token transfer threshold for forced second factor. Zero keeps the
	// conservative default of flagging every token transfer.
	TokenHighValueThreshold uint64
	FeeBuffer               uint64
}

// TierConfig maps verification tiers to daily spend limits.
type TierConfig struct {
	UnverifiedDailyLimit decimal.Decimal
	BasicDailyLimit      decimal.Decimal
	FullDailyLimit       decimal.Decimal
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:      normalizeRedisURL(getEnv("REDIS_URL", "localhost:6379")),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Risk: RiskConfig{
			SingleTxLimit:         getDecimalEnv("RISK_SINGLE_TX_LIMIT", "10000"),
			DailyThreshold:        getDecimalEnv("RISK_DAILY_THRESHOLD", "5000"),
			Cumulative30DayLimit:  getDecimalEnv("RISK_CUMULATIVE_30D_LIMIT", "50000"),
			StructuringThreshold:  getDecimalEnv("RISK_STRUCTURING_THRESHOLD", "9000"),
			VelocityThreshold:     getIntEnv("RISK_VELOCITY_THRESHOLD", 5),
			VelocityWindow:        getDurationEnv("RISK_VELOCITY_WINDOW", time.Hour),
			NewAccountAge:         getDurationEnv("RISK_NEW_ACCOUNT_AGE", 30*24*time.Hour),
			HighRiskJurisdictions: getSliceEnv("RISK_HIGH_RISK_JURISDICTIONS", "IR,KP,SY,CU,MM"),
			SanctionsPatterns:     getSliceEnv("RISK_SANCTIONS_PATTERNS", ""),
			BlockScore:            getIntEnv("RISK_BLOCK_SCORE", 85),
			ReviewScore:           getIntEnv("RISK_REVIEW_SCORE", 60),
			EDDScore:              getIntEnv("RISK_EDD_SCORE", 75),
			SARFilingWindow:       getDurationEnv("RISK_SAR_FILING_WINDOW", 30*24*time.Hour),
		},
		Monitoring: MonitoringConfig{
			FlagScore:     getIntEnv("MONITOR_FLAG_SCORE", 40),
			BlockScore:    getIntEnv("MONITOR_BLOCK_SCORE", 80),
			SweepInterval: getDurationEnv("MONITOR_SWEEP_INTERVAL", 24*time.Hour),
			SweepWindow:   getDurationEnv("MONITOR_SWEEP_WINDOW", 24*time.Hour),
		},
		Policy: PolicyConfig{
			AllowedPrograms:          getSliceEnv("POLICY_ALLOWED_PROGRAMS", "11111111111111111111111111111111,TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"),
			SystemProgramID:          getEnv("POLICY_SYSTEM_PROGRAM_ID", "11111111111111111111111111111111"),
			TokenProgramID:           getEnv("POLICY_TOKEN_PROGRAM_ID", "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"),
			MaxInstructions:          getIntEnv("POLICY_MAX_INSTRUCTIONS", 4),
			MinTokenTransferAccounts: getIntEnv("POLICY_MIN_TOKEN_TRANSFER_ACCOUNTS", 3),
			HighValueThreshold:       getUint64Env("POLICY_HIGH_VALUE_THRESHOLD", 1_000_000_000),
			TokenHighValueThreshold:  getUint64Env("POLICY_TOKEN_HIGH_VALUE_THRESHOLD", 0),
			FeeBuffer:                getUint64Env("POLICY_FEE_BUFFER", 5_000_000),
		},
		Tiers: TierConfig{
			UnverifiedDailyLimit: getDecimalEnv("TIER_UNVERIFIED_DAILY_LIMIT", "100"),
			BasicDailyLimit:      getDecimalEnv("TIER_BASIC_DAILY_LIMIT", "2500"),
			FullDailyLimit:       getDecimalEnv("TIER_FULL_DAILY_LIMIT", "50000"),
		},
	}
}

// ValidateCore rejects configurations the engines cannot run with.
func (c *Config) ValidateCore() error {
	if c.Database.URL == "" {
		return errors.Config("DATABASE_URL is required")
	}
	if c.Risk.SingleTxLimit.LessThanOrEqual(decimal.Zero) {
		return errors.Config("RISK_SINGLE_TX_LIMIT must be positive")
	}
	if c.Risk.StructuringThreshold.GreaterThanOrEqual(c.Risk.SingleTxLimit) {
		return errors.Config("RISK_STRUCTURING_THRESHOLD must be below RISK_SINGLE_TX_LIMIT")
	}
	if c.Risk.VelocityThreshold <= 0 {
		return errors.Config("RISK_VELOCITY_THRESHOLD must be positive")
	}
	if len(c.Policy.AllowedPrograms) == 0 {
		return errors.Config("POLICY_ALLOWED_PROGRAMS must not be empty")
	}
	if c.Policy.MaxInstructions <= 0 {
		return errors.Config("POLICY_MAX_INSTRUCTIONS must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func normalizeRedisURL(url string) string {
	// Strip redis:// or redis+tls:// scheme if present
	if strings.HasPrefix(url, "redis+tls://") {
		return url[len("redis+tls://"):]
	}
	if strings.HasPrefix(url, "redis://") {
		return url[len("redis://"):]
	}
	return url
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getUint64Env(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseUint(value, 10, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getDecimalEnv(key, defaultValue string) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	d, _ := decimal.NewFromString(defaultValue)
	return d
}

func getSliceEnv(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

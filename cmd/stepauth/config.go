package main

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// config holds harness settings read from the environment, an optional .env
// file and an optional stepauth.yaml.
type config struct {
	RedisAddr string `mapstructure:"STEPAUTH_REDIS_ADDR"`
	LogLevel  string `mapstructure:"STEPAUTH_LOG_LEVEL"`
	AuditLog  bool   `mapstructure:"STEPAUTH_AUDIT_LOG"`
	JWTSecret string `mapstructure:"STEPAUTH_JWT_SECRET"`

	SMTPHost     string `mapstructure:"STEPAUTH_SMTP_HOST"`
	SMTPPort     int    `mapstructure:"STEPAUTH_SMTP_PORT"`
	SMTPUser     string `mapstructure:"STEPAUTH_SMTP_USER"`
	SMTPPassword string `mapstructure:"STEPAUTH_SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"STEPAUTH_SMTP_FROM"`
}

func loadConfig() (*config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()

	y := viper.New()
	y.SetConfigName("stepauth")
	y.SetConfigType("yaml")
	y.AddConfigPath(".")
	if err := y.ReadInConfig(); err == nil {
		if err := v.MergeConfigMap(y.AllSettings()); err != nil {
			return nil, err
		}
	}

	v.AutomaticEnv()

	v.SetDefault("STEPAUTH_REDIS_ADDR", "")
	v.SetDefault("STEPAUTH_LOG_LEVEL", "warn")
	v.SetDefault("STEPAUTH_AUDIT_LOG", false)
	v.SetDefault("STEPAUTH_JWT_SECRET", "stepauth-local-development-secret")
	v.SetDefault("STEPAUTH_SMTP_HOST", "")
	v.SetDefault("STEPAUTH_SMTP_PORT", 587)
	v.SetDefault("STEPAUTH_SMTP_USER", "")
	v.SetDefault("STEPAUTH_SMTP_PASSWORD", "")
	v.SetDefault("STEPAUTH_SMTP_FROM", "")

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if len(cfg.JWTSecret) < 16 {
		return nil, errors.New("config: STEPAUTH_JWT_SECRET must be at least 16 bytes")
	}
	if _, err := cfg.level(); err != nil {
		return nil, err
	}
	if cfg.SMTPHost != "" {
		if cfg.SMTPFrom == "" {
			return nil, errors.New("config: STEPAUTH_SMTP_FROM must be set when STEPAUTH_SMTP_HOST is")
		}
		if cfg.SMTPPort <= 0 || cfg.SMTPPort > 65535 {
			return nil, errors.New("config: STEPAUTH_SMTP_PORT must be a valid port")
		}
	}

	return &cfg, nil
}

func (c *config) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, errors.New("config: STEPAUTH_LOG_LEVEL must be debug, info, warn or error")
	}
	return lvl, nil
}

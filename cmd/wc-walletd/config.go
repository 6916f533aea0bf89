package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/wcproto/wc-server-go/wc"
)

// fileConfig is the raw TOML shape. Every field is optional; absent
// fields keep their defaults.
type fileConfig struct {
	RedisAddr   string   `toml:"redis_addr"`
	KeyPrefix   string   `toml:"key_prefix"`
	CacheTTL    string   `toml:"cache_ttl"`
	Accounts    []string `toml:"accounts"`
	ChainID     int64    `toml:"chain_id"`
	AutoApprove bool     `toml:"auto_approve"`
	LogLevel    string   `toml:"log_level"`

	WalletName        string `toml:"wallet_name"`
	WalletURL         string `toml:"wallet_url"`
	WalletDescription string `toml:"wallet_description"`
}

type daemonConfig struct {
	RedisAddr   string
	KeyPrefix   string
	CacheTTL    time.Duration
	Accounts    []string
	ChainID     int64
	AutoApprove bool
	LogLevel    slog.Level
	Meta        wc.ClientMeta
}

func defaultDaemonConfig() daemonConfig {
	return daemonConfig{
		RedisAddr: "localhost:6379",
		KeyPrefix: "wc:bridge:",
		CacheTTL:  24 * time.Hour,
		ChainID:   1,
		LogLevel:  slog.LevelInfo,
		Meta: wc.ClientMeta{
			Description: "wc-walletd terminal wallet",
			URL:         "https://github.com/wcproto/wc-server-go",
			Name:        "wc-walletd",
		},
	}
}

// loadDaemonConfig reads path over the defaults. An empty path returns
// the defaults untouched.
func loadDaemonConfig(path string) (daemonConfig, error) {
	cfg := defaultDaemonConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return daemonConfig{}, fmt.Errorf("load walletd config: %w", err)
	}

	if meta.IsDefined("redis_addr") {
		if addr := strings.TrimSpace(raw.RedisAddr); addr != "" {
			cfg.RedisAddr = addr
		}
	}

	if meta.IsDefined("key_prefix") {
		cfg.KeyPrefix = strings.TrimSpace(raw.KeyPrefix)
	}

	if meta.IsDefined("cache_ttl") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.CacheTTL))
		if err != nil {
			return daemonConfig{}, fmt.Errorf("parse cache_ttl: %w", err)
		}
		cfg.CacheTTL = d
	}

	if meta.IsDefined("accounts") {
		cfg.Accounts = normalizeAccounts(raw.Accounts)
	}

	if meta.IsDefined("chain_id") {
		cfg.ChainID = raw.ChainID
	}

	if meta.IsDefined("auto_approve") {
		cfg.AutoApprove = raw.AutoApprove
	}

	if meta.IsDefined("log_level") {
		level, err := parseLogLevel(raw.LogLevel)
		if err != nil {
			return daemonConfig{}, err
		}
		cfg.LogLevel = level
	}

	if meta.IsDefined("wallet_name") {
		cfg.Meta.Name = strings.TrimSpace(raw.WalletName)
	}

	if meta.IsDefined("wallet_url") {
		cfg.Meta.URL = strings.TrimSpace(raw.WalletURL)
	}

	if meta.IsDefined("wallet_description") {
		cfg.Meta.Description = strings.TrimSpace(raw.WalletDescription)
	}

	return cfg, nil
}

func normalizeAccounts(in []string) []string {
	out := make([]string, 0, len(in))
	for _, acct := range in {
		v := strings.TrimSpace(acct)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log_level %q", raw)
	}
}

// Package config loads engine and infrastructure settings from an optional
// dotenv file overlaid with TRUSTCORE_-prefixed environment variables.
// Environment always wins over the file; everything unset keeps the engine
// defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	trustcore "github.com/veiled-systems/trustcore"
)

const envPrefix = "TRUSTCORE_"

// Infra carries the connection settings that live outside the engine
// config: where Redis and Postgres are, and whether this is a production
// deployment.
type Infra struct {
	RedisAddr   string
	PostgresDSN string
	Production  bool
}

// Settings is everything a deployment needs to build an Engine.
type Settings struct {
	Infra  Infra
	Engine trustcore.Config
}

// Load reads the dotenv file at path (skipped when path is empty) and the
// process environment, and returns validated settings.
func Load(path string) (Settings, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), dotenv.ParserEnv("", ".", strings.ToLower)); err != nil {
			return Settings{}, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return Settings{}, fmt.Errorf("config: load environment: %w", err)
	}

	cfg := trustcore.DefaultConfig()

	if v := k.String("session_prefix"); v != "" {
		cfg.Session.RedisPrefix = v
	}
	if k.Exists("session_idle_ttl") {
		cfg.Session.IdleTTL = k.Duration("session_idle_ttl")
	}

	if k.Exists("captcha_enabled") {
		cfg.Captcha.Enabled = k.Bool("captcha_enabled")
	}
	if k.Exists("captcha_length") {
		cfg.Captcha.Length = k.Int("captcha_length")
	}
	if k.Exists("captcha_width") {
		cfg.Captcha.Width = k.Int("captcha_width")
	}
	if k.Exists("captcha_height") {
		cfg.Captcha.Height = k.Int("captcha_height")
	}
	if k.Exists("captcha_image_ttl") {
		cfg.Captcha.ImageTTL = k.Duration("captcha_image_ttl")
	}
	if k.Exists("captcha_active_ttl") {
		cfg.Captcha.ActiveTTL = k.Duration("captcha_active_ttl")
	}

	if k.Exists("recovery_cooldown") {
		cfg.Recovery.Cooldown = k.Duration("recovery_cooldown")
	}
	if k.Exists("bcrypt_cost") {
		cfg.Password.BcryptCost = k.Int("bcrypt_cost")
	}
	if v := k.String("totp_issuer"); v != "" {
		cfg.TOTP.Issuer = v
	}

	if v := k.String("unlock_path"); v != "" {
		cfg.Redirect.UnlockPath = v
	}
	if v := k.String("entry_path"); v != "" {
		cfg.Redirect.EntryPath = v
	}
	cfg.Redirect.Production = k.Bool("production")

	if err := cfg.Validate(); err != nil {
		return Settings{}, err
	}

	infra := Infra{
		RedisAddr:   k.String("redis_addr"),
		PostgresDSN: k.String("postgres_dsn"),
		Production:  k.Bool("production"),
	}
	if infra.RedisAddr == "" {
		infra.RedisAddr = "127.0.0.1:6379"
	}

	return Settings{Infra: infra, Engine: cfg}, nil
}

package trustcore

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/veiled-systems/trustcore/password"
)

// Config is the engine-wide configuration tree. Zero values take the
// defaults from DefaultConfig; Validate rejects combinations the engine
// cannot run with.
type Config struct {
	Session  SessionConfig
	Captcha  CaptchaConfig
	Recovery RecoveryConfig
	Password PasswordConfig
	TOTP     TOTPConfig
	Redirect RedirectConfig
}

// SessionConfig tunes the dual-realm session layer.
type SessionConfig struct {
	RedisPrefix string
	IdleTTL     time.Duration
}

// CaptchaConfig tunes the challenge engine. Enabled is the kill switch;
// when false every challenge check passes without touching the cache.
type CaptchaConfig struct {
	Enabled   bool
	Length    int
	Width     int
	Height    int
	ImageTTL  time.Duration
	ActiveTTL time.Duration
}

// RecoveryConfig tunes the mnemonic-recovery cooldown.
type RecoveryConfig struct {
	Cooldown time.Duration
}

// PasswordConfig tunes credential hashing.
type PasswordConfig struct {
	BcryptCost int
}

// TOTPConfig names the issuer stamped into provisioning URIs.
type TOTPConfig struct {
	Issuer string
}

// RedirectConfig tunes redirect validation and the fixed gate endpoints.
type RedirectConfig struct {
	UnlockPath string
	EntryPath  string

	// Production widens SafeRedirect to accept onion-host referrers.
	Production bool
}

// DefaultConfig returns the settings a production deployment starts from.
func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			RedisPrefix: "sess",
			IdleTTL:     15 * time.Minute,
		},
		Captcha: CaptchaConfig{
			Enabled:   true,
			Length:    5,
			Width:     300,
			Height:    80,
			ImageTTL:  120 * time.Second,
			ActiveTTL: 600 * time.Second,
		},
		Recovery: RecoveryConfig{
			Cooldown: 30 * time.Minute,
		},
		Password: PasswordConfig{
			BcryptCost: password.DefaultCost,
		},
		TOTP: TOTPConfig{
			Issuer: "trustcore",
		},
		Redirect: RedirectConfig{
			UnlockPath: "/unlock",
			EntryPath:  "/",
		},
	}
}

// Validate checks explicit settings. Zero values are filled by New and are
// never an error here.
func (c Config) Validate() error {
	if c.Session.IdleTTL < 0 {
		return errors.New("config: session idle ttl must not be negative")
	}
	if c.Captcha.Length < 0 {
		return errors.New("config: captcha length must not be negative")
	}
	if c.Captcha.Width < 0 || c.Captcha.Height < 0 {
		return errors.New("config: captcha dimensions must not be negative")
	}
	if c.Captcha.ImageTTL < 0 || c.Captcha.ActiveTTL < 0 {
		return errors.New("config: captcha ttls must not be negative")
	}
	if c.Captcha.ImageTTL > 0 && c.Captcha.ActiveTTL > 0 && c.Captcha.ImageTTL > c.Captcha.ActiveTTL {
		return errors.New("config: captcha image ttl must not exceed the active window")
	}
	if c.Recovery.Cooldown < 0 {
		return errors.New("config: recovery cooldown must not be negative")
	}
	if c.Password.BcryptCost != 0 && (c.Password.BcryptCost < bcrypt.MinCost || c.Password.BcryptCost > bcrypt.MaxCost) {
		return errors.New("config: bcrypt cost out of range")
	}
	return nil
}

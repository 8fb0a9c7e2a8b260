package trustcore

import (
	"context"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/veiled-systems/trustcore/captcha"
	"github.com/veiled-systems/trustcore/internal/limiters"
	"github.com/veiled-systems/trustcore/password"
	"github.com/veiled-systems/trustcore/session"
	"github.com/veiled-systems/trustcore/store"
)

// Engine is the trust-and-access facade: credential verification, the
// dual-realm session layer, the challenge engine, and the recovery
// cooldown, behind one handle. An Engine is built once by New and is safe
// for concurrent use.
type Engine struct {
	config Config
	logger *slog.Logger

	members store.MemberStore
	panel   store.PanelStore

	sessions *session.Manager
	captcha  *captcha.Engine
	recovery *limiters.RecoveryLimiter
	hasher   *password.Hasher
	verifier SecondFactorVerifier
}

// Deps carries the external dependencies an Engine is wired with. Redis and
// Members are required; everything else has a default.
type Deps struct {
	Redis   redis.UniversalClient
	Members store.MemberStore

	// Panel may be nil when no administrative realm exists; panel logins
	// then fail as invalid credentials.
	Panel store.PanelStore

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// Rasterizer defaults to the built-in image renderer.
	Rasterizer captcha.Rasterizer

	// SecondFactor defaults to the built-in TOTP verifier.
	SecondFactor SecondFactorVerifier
}

func New(cfg Config, deps Deps) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Redis == nil {
		return nil, errors.New("trustcore: redis client is required")
	}
	if deps.Members == nil {
		return nil, errors.New("trustcore: member store is required")
	}

	defaults := DefaultConfig()
	if cfg.Session.RedisPrefix == "" {
		cfg.Session.RedisPrefix = defaults.Session.RedisPrefix
	}
	if cfg.Session.IdleTTL == 0 {
		cfg.Session.IdleTTL = defaults.Session.IdleTTL
	}
	if cfg.Recovery.Cooldown == 0 {
		cfg.Recovery.Cooldown = defaults.Recovery.Cooldown
	}
	if cfg.Password.BcryptCost == 0 {
		cfg.Password.BcryptCost = defaults.Password.BcryptCost
	}
	if cfg.TOTP.Issuer == "" {
		cfg.TOTP.Issuer = defaults.TOTP.Issuer
	}
	if cfg.Redirect.UnlockPath == "" {
		cfg.Redirect.UnlockPath = defaults.Redirect.UnlockPath
	}
	if cfg.Redirect.EntryPath == "" {
		cfg.Redirect.EntryPath = defaults.Redirect.EntryPath
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	hasher, err := password.New(cfg.Password.BcryptCost)
	if err != nil {
		return nil, err
	}

	verifier := deps.SecondFactor
	if verifier == nil {
		verifier = NewTOTPVerifier(cfg.TOTP.Issuer)
	}

	e := &Engine{
		config:   cfg,
		logger:   logger,
		members:  deps.Members,
		panel:    deps.Panel,
		hasher:   hasher,
		verifier: verifier,
		recovery: limiters.NewRecoveryLimiter(deps.Redis, limiters.RecoveryConfig{
			Cooldown: cfg.Recovery.Cooldown,
		}),
		captcha: captcha.New(deps.Redis, captcha.Config{
			Enabled:   cfg.Captcha.Enabled,
			Length:    cfg.Captcha.Length,
			Width:     cfg.Captcha.Width,
			Height:    cfg.Captcha.Height,
			ImageTTL:  cfg.Captcha.ImageTTL,
			ActiveTTL: cfg.Captcha.ActiveTTL,
		}, deps.Rasterizer),
	}

	e.sessions = session.NewManager(deps.Redis, &storeProfileSource{
		members: deps.Members,
		panel:   deps.Panel,
	}, session.Config{
		Prefix:     cfg.Session.RedisPrefix,
		IdleTTL:    cfg.Session.IdleTTL,
		UnlockPath: cfg.Redirect.UnlockPath,
		EntryPath:  cfg.Redirect.EntryPath,
		Production: cfg.Redirect.Production,
	})

	return e, nil
}

// Close releases engine-owned resources. The injected Redis client and
// stores remain the caller's to close.
func (e *Engine) Close() {}

// Sessions exposes the underlying session manager for callers that need the
// full surface rather than the engine's convenience wrappers.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// storeProfileSource adapts the credential store to the session layer's
// profile lookup.
type storeProfileSource struct {
	members store.MemberStore
	panel   store.PanelStore
}

func (s *storeProfileSource) MemberProfile(ctx context.Context, username string) (session.MemberProfile, error) {
	rec, err := s.members.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return session.MemberProfile{}, session.ErrNoProfile
		}
		return session.MemberProfile{}, err
	}
	return session.MemberProfile{
		ID:        rec.ID,
		AuthLevel: rec.AuthLevel,
		Currency:  rec.Currency,
	}, nil
}

func (s *storeProfileSource) PanelProfile(ctx context.Context, username string) (session.PanelProfile, error) {
	if s.panel == nil {
		return session.PanelProfile{}, session.ErrNoProfile
	}
	rec, err := s.panel.FindPanelByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return session.PanelProfile{}, session.ErrNoProfile
		}
		return session.PanelProfile{}, err
	}
	return session.PanelProfile{AuthLevel: rec.AuthLevel}, nil
}

// Package captcha issues and verifies single-use image challenges. The
// challenge code is the cache key of its rendered image; a per-form pointer
// ties the active code to a session so verification never trusts anything
// the client submits beyond the answer itself.
package captcha

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veiled-systems/trustcore/secureid"
)

// ErrRedisUnavailable wraps cache faults. Verification treats it as a
// failure, never as a pass.
var ErrRedisUnavailable = errors.New("captcha redis unavailable")

// VerifyResult is the outcome of a challenge check.
type VerifyResult int

const (
	// VerifyAbsent means no active challenge existed for the form; the
	// caller should issue a fresh one.
	VerifyAbsent VerifyResult = iota
	// VerifyMatch means the submitted answer was correct; the challenge
	// has been consumed.
	VerifyMatch
	// VerifyMismatch means the answer was wrong; a replacement challenge
	// has already been installed.
	VerifyMismatch
)

const (
	defaultLength    = 5
	defaultWidth     = 300
	defaultHeight    = 80
	defaultImageTTL  = 120 * time.Second
	defaultActiveTTL = 600 * time.Second
)

// Config tunes the Engine. Zero values take the defaults; Enabled is the
// kill switch and must be set explicitly.
type Config struct {
	Enabled   bool
	Length    int
	Width     int
	Height    int
	ImageTTL  time.Duration
	ActiveTTL time.Duration
}

// Engine is the Redis-backed challenge issuer.
type Engine struct {
	redis  redis.UniversalClient
	config Config
	ras    Rasterizer
}

func New(redisClient redis.UniversalClient, cfg Config, ras Rasterizer) *Engine {
	if cfg.Length <= 0 {
		cfg.Length = defaultLength
	}
	if cfg.Width <= 0 {
		cfg.Width = defaultWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = defaultHeight
	}
	if cfg.ImageTTL <= 0 {
		cfg.ImageTTL = defaultImageTTL
	}
	if cfg.ActiveTTL <= 0 {
		cfg.ActiveTTL = defaultActiveTTL
	}
	if ras == nil {
		ras = NewImageRasterizer()
	}

	return &Engine{
		redis:  redisClient,
		config: cfg,
		ras:    ras,
	}
}

// Enabled reports the kill switch state.
func (e *Engine) Enabled() bool {
	return e.config.Enabled
}

func imageKey(code string) string {
	return "captcha:" + code
}

func activeKey(sid, form string) string {
	return "captcha:active:" + sid + ":" + form
}

// Initialize returns the challenge image for the named form. While the
// form's active challenge still has a cached image, that image is returned
// again; otherwise a fresh code is drawn, rendered, and installed. The
// returned payload is opaque to the caller.
func (e *Engine) Initialize(ctx context.Context, sid, form string, dark bool) (string, error) {
	if !e.config.Enabled {
		return "", nil
	}

	code, err := e.redis.Get(ctx, activeKey(sid, form)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if err == nil {
		image, err := e.redis.Get(ctx, imageKey(code)).Result()
		if err == nil {
			return image, nil
		}
		if !errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		// Image expired out from under the pointer; fall through and
		// reissue.
	}

	return e.issue(ctx, sid, form, dark)
}

// Verify checks the submitted answer against the form's active challenge.
// The challenge image is consumed regardless of outcome, so a code can never
// be answered twice: of two concurrent submissions only one can win the
// consume, the other reads VerifyAbsent. On mismatch a replacement challenge
// is installed before returning; the caller renders it via Initialize.
func (e *Engine) Verify(ctx context.Context, sid, form, submitted string, dark bool) (VerifyResult, error) {
	if !e.config.Enabled {
		return VerifyMatch, nil
	}

	code, err := e.redis.Get(ctx, activeKey(sid, form)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return VerifyAbsent, nil
		}
		return VerifyAbsent, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Consume the image atomically before judging the answer. A missing
	// image means the challenge was already spent or expired under its
	// pointer; either way there is nothing left to answer.
	if err := e.redis.GetDel(ctx, imageKey(code)).Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return VerifyAbsent, nil
		}
		return VerifyAbsent, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if submitted == code {
		if err := e.redis.Del(ctx, activeKey(sid, form)).Err(); err != nil {
			return VerifyAbsent, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return VerifyMatch, nil
	}

	if _, err := e.issue(ctx, sid, form, dark); err != nil {
		return VerifyMismatch, err
	}
	return VerifyMismatch, nil
}

// issue draws a new code, renders its image, and installs both keys. The
// image is installed with SetNX so a concurrent issue of the same code never
// shortens an existing image's window.
func (e *Engine) issue(ctx context.Context, sid, form string, dark bool) (string, error) {
	code, err := secureid.Generate(e.config.Length, false, Alphabet)
	if err != nil {
		return "", err
	}

	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	image, err := render(code, e.config.Width, e.config.Height, dark, e.ras, rng)
	if err != nil {
		return "", err
	}

	if err := e.redis.SetNX(ctx, imageKey(code), image, e.config.ImageTTL).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if err := e.redis.Set(ctx, activeKey(sid, form), code, e.config.ActiveTTL).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return image, nil
}

package trustcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/veiled-systems/trustcore/store"
)

// VerifyLogin checks a member credential pair and, on success, runs the
// login side effects: the account's display preference is copied onto the
// session and the last-login timestamp is advanced. A banned account with
// correct credentials short-circuits before any side effect. When the
// account carries a second factor, the result signals it; the side effects
// run regardless.
//
// Unknown usernames, wrong passwords, and internal faults all come back as
// LoginError; only the returned error distinguishes a fault for logging.
func (e *Engine) VerifyLogin(ctx context.Context, sid, username, plain string) (LoginResult, error) {
	if e == nil || e.members == nil {
		return LoginResult{}, ErrEngineNotReady
	}

	rec, err := e.members.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		e.logger.Error("member lookup failed", "username", username, "err", err)
		return LoginResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ok, err := e.hasher.Verify(plain, rec.PasswordHash)
	if err != nil || !ok {
		return LoginResult{}, ErrInvalidCredentials
	}

	if rec.Banned {
		return LoginResult{Status: LoginBanned}, ErrAccountBanned
	}

	if err := e.sessions.SetDarkMode(ctx, sid, rec.DarkMode); err != nil {
		// Presentation state only; the session itself will surface a
		// cache fault on the authenticate step.
		e.logger.Warn("dark mode carry-over failed", "username", username, "err", err)
	}

	if err := e.members.UpdateLastLogin(ctx, rec.Username, time.Now()); err != nil {
		e.logger.Warn("last-login update failed", "username", username, "err", err)
	}

	return LoginResult{
		Status:       LoginSuccess,
		SecondFactor: rec.SecondFactor,
		Frozen:       rec.Frozen,
		DarkMode:     rec.DarkMode,
	}, nil
}

// VerifyPanelLogin checks a panel credential pair. The panel realm has no
// ban flag and no side effects; the returned level is the row's
// authorization level.
func (e *Engine) VerifyPanelLogin(ctx context.Context, username, plain string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	if e.panel == nil {
		return 0, ErrInvalidCredentials
	}

	rec, err := e.panel.FindPanelByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, ErrInvalidCredentials
		}
		e.logger.Error("panel lookup failed", "username", username, "err", err)
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ok, err := e.hasher.Verify(plain, rec.PasswordHash)
	if err != nil || !ok {
		return 0, ErrInvalidCredentials
	}
	return rec.AuthLevel, nil
}

// VerifyMnemonic checks a recovery phrase against the stored mnemonic hash.
// The cooldown is consulted before the phrase is even compared, and the
// cooldown marker is installed only on a successful match. Any cache
// ambiguity reads as limited.
func (e *Engine) VerifyMnemonic(ctx context.Context, username, phrase string) (bool, error) {
	if e == nil || e.members == nil {
		return false, ErrEngineNotReady
	}

	limited, err := e.recovery.IsLimited(ctx, username)
	if err != nil {
		e.logger.Error("recovery limiter unavailable", "username", username, "err", err)
		return false, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	if limited {
		return false, ErrRateLimited
	}

	rec, err := e.members.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		e.logger.Error("member lookup failed", "username", username, "err", err)
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ok, err := e.hasher.Verify(phrase, rec.MnemonicHash)
	if err != nil || !ok {
		return false, nil
	}

	// The match is unusable until its cooldown marker is durable.
	if err := e.recovery.Limit(ctx, username); err != nil {
		e.logger.Error("recovery marker install failed", "username", username, "err", err)
		return false, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return true, nil
}

package trustcore

import "errors"

var (
	// ErrInvalidCredentials is returned when a username/password pair does
	// not match exactly one stored account.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountBanned is returned when an otherwise-correct login hits a
	// banned account.
	ErrAccountBanned = errors.New("account banned")
	// ErrRateLimited is returned when the recovery cooldown is active for
	// the target username.
	ErrRateLimited = errors.New("recovery rate limited")
	// ErrStoreUnavailable wraps credential-store faults.
	ErrStoreUnavailable = errors.New("credential store unavailable")
	// ErrCacheUnavailable wraps cache faults surfaced through the engine.
	ErrCacheUnavailable = errors.New("cache unavailable")
	// ErrEngineNotReady is returned when an Engine method is called before
	// New wired its dependencies.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrSecondFactorUnsupported is returned for second-factor modes the
	// engine can signal but not verify.
	ErrSecondFactorUnsupported = errors.New("second factor mode not supported")
)

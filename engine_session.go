package trustcore

import "context"

// IssueSession mints the authenticated snapshot for an already-verified
// username in the given realm.
func (e *Engine) IssueSession(ctx context.Context, sid, username string, realm Realm) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	if realm == RealmPanel {
		return e.sessions.AuthenticatePanel(ctx, sid, username)
	}
	return e.sessions.Authenticate(ctx, sid, username)
}

// CurrentSession returns the realm's snapshot, if any, plus a pending
// one-shot referrer redirect the caller must honor first.
func (e *Engine) CurrentSession(ctx context.Context, sid string, realm Realm) (*Snapshot, Redirect, error) {
	if e == nil || e.sessions == nil {
		return nil, Redirect{}, ErrEngineNotReady
	}
	if realm == RealmPanel {
		return e.sessions.CurrentPanel(ctx, sid)
	}
	return e.sessions.Current(ctx, sid)
}

// NewSessionID returns a fresh opaque session identifier.
func (e *Engine) NewSessionID() (string, error) {
	if e == nil || e.sessions == nil {
		return "", ErrEngineNotReady
	}
	return e.sessions.NewSessionID()
}

// Unlocked reports whether the session has passed the entry gate, returning
// the redirect a locked session must follow.
func (e *Engine) Unlocked(ctx context.Context, sid, requestPath string) (bool, Redirect, error) {
	if e == nil || e.sessions == nil {
		return false, Redirect{}, ErrEngineNotReady
	}
	return e.sessions.Unlocked(ctx, sid, requestPath)
}

// Unlock marks the session as having passed the entry gate.
func (e *Engine) Unlock(ctx context.Context, sid string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	return e.sessions.Unlock(ctx, sid)
}

// RegisterFormAttempt counts a sensitive-form submission; overflow destroys
// the session and redirects to the entry point.
func (e *Engine) RegisterFormAttempt(ctx context.Context, sid string) (Redirect, error) {
	if e == nil || e.sessions == nil {
		return Redirect{}, ErrEngineNotReady
	}
	return e.sessions.RegisterFormAttempt(ctx, sid)
}

// SetReferrer stores a post-login redirect target.
func (e *Engine) SetReferrer(ctx context.Context, sid, uri string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	return e.sessions.SetReferrer(ctx, sid, uri)
}

// Username returns the member session's username, or "" when absent or on
// any session fault.
func (e *Engine) Username(ctx context.Context, sid string) string {
	if e == nil || e.sessions == nil {
		return ""
	}
	username, err := e.sessions.Username(ctx, sid)
	if err != nil {
		e.logger.Warn("username read failed", "err", err)
	}
	return username
}

// Currency returns the member session's display currency, falling back to
// usd when absent or on any session fault.
func (e *Engine) Currency(ctx context.Context, sid string) string {
	if e == nil || e.sessions == nil {
		return "usd"
	}
	currency, err := e.sessions.Currency(ctx, sid)
	if err != nil {
		e.logger.Warn("currency read failed", "err", err)
	}
	return currency
}

// AuthLevel returns the member session's authorization level, or 0 when
// absent or on any session fault.
func (e *Engine) AuthLevel(ctx context.Context, sid string) int {
	if e == nil || e.sessions == nil {
		return 0
	}
	level, err := e.sessions.AuthLevel(ctx, sid)
	if err != nil {
		e.logger.Warn("auth level read failed", "err", err)
	}
	return level
}

// DarkMode reports the session's display preference; faults read as false.
func (e *Engine) DarkMode(ctx context.Context, sid string) bool {
	if e == nil || e.sessions == nil {
		return false
	}
	return e.sessions.DarkMode(ctx, sid)
}

// DestroySession removes the session record.
func (e *Engine) DestroySession(ctx context.Context, sid string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	return e.sessions.Destroy(ctx, sid)
}

// RedirectAndDestroy destroys the session and returns the redirect the
// caller must follow.
func (e *Engine) RedirectAndDestroy(ctx context.Context, sid, uri string) (Redirect, error) {
	if e == nil || e.sessions == nil {
		return Redirect{}, ErrEngineNotReady
	}
	return e.sessions.RedirectAndDestroy(ctx, sid, uri)
}

// SafeRedirect validates a caller-supplied referrer against the redirect
// allow-list.
func (e *Engine) SafeRedirect(referrer string) Redirect {
	if e == nil || e.sessions == nil {
		return Redirect{}
	}
	return e.sessions.SafeRedirect(referrer)
}

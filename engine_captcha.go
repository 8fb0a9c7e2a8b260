package trustcore

import "context"

// NewChallenge returns the challenge image payload for the named form,
// reusing the form's active challenge while it lives. The session's display
// preference picks the palette. When the challenge engine is disabled the
// payload is empty.
func (e *Engine) NewChallenge(ctx context.Context, sid, form string) (string, error) {
	if e == nil || e.captcha == nil {
		return "", ErrEngineNotReady
	}
	if !e.captcha.Enabled() {
		return "", nil
	}
	return e.captcha.Initialize(ctx, sid, form, e.DarkMode(ctx, sid))
}

// VerifyChallenge checks a submitted answer. Matched challenges are
// consumed; mismatches install a replacement before returning. When the
// challenge engine is disabled the check passes without touching the cache.
func (e *Engine) VerifyChallenge(ctx context.Context, sid, form, answer string) (ChallengeResult, error) {
	if e == nil || e.captcha == nil {
		return ChallengeAbsent, ErrEngineNotReady
	}
	if !e.captcha.Enabled() {
		return e.captcha.Verify(ctx, sid, form, answer, false)
	}
	return e.captcha.Verify(ctx, sid, form, answer, e.DarkMode(ctx, sid))
}

// ChallengesEnabled reports the challenge kill switch state.
func (e *Engine) ChallengesEnabled() bool {
	if e == nil || e.captcha == nil {
		return false
	}
	return e.captcha.Enabled()
}

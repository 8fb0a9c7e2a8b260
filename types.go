package trustcore

import (
	"github.com/veiled-systems/trustcore/captcha"
	"github.com/veiled-systems/trustcore/session"
	"github.com/veiled-systems/trustcore/store"
)

// LoginStatus is the tri-state outcome of a credential check.
type LoginStatus int

const (
	// LoginError covers unknown usernames, wrong passwords, and every
	// internal fault. Callers cannot tell these apart.
	LoginError LoginStatus = iota
	// LoginBanned means the credentials were correct but the account is
	// banned. No login side effects were performed.
	LoginBanned
	// LoginSuccess means the credentials were correct and login side
	// effects have run.
	LoginSuccess
)

// SecondFactorMode re-exports the store's second-factor discriminator.
type SecondFactorMode = store.SecondFactorMode

const (
	SecondFactorNone = store.SecondFactorNone
	SecondFactorOTP  = store.SecondFactorOTP
	SecondFactorPGP  = store.SecondFactorPGP
)

// LoginResult carries the outcome of VerifyLogin. SecondFactor, Frozen, and
// DarkMode are meaningful only when Status is LoginSuccess.
type LoginResult struct {
	Status       LoginStatus
	SecondFactor SecondFactorMode

	// Frozen is surfaced for the caller's presentation layer; it does not
	// gate the login itself.
	Frozen   bool
	DarkMode bool
}

// Realm aliases the session realm discriminator.
type Realm = session.Realm

const (
	RealmMember = session.RealmMember
	RealmPanel  = session.RealmPanel
)

// Snapshot aliases the session principal snapshot.
type Snapshot = session.Snapshot

// Redirect aliases the explicit redirect instruction returned by session
// and routing operations.
type Redirect = session.Redirect

// ChallengeResult aliases the captcha verification outcome.
type ChallengeResult = captcha.VerifyResult

const (
	ChallengeAbsent   = captcha.VerifyAbsent
	ChallengeMatch    = captcha.VerifyMatch
	ChallengeMismatch = captcha.VerifyMismatch
)

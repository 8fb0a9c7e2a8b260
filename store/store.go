// Package store defines the durable credential store consumed by the trust
// core: plain data records and lookup/update capabilities, plus a Postgres
// implementation. Account mutation beyond last-login and the OTP secret
// belongs to account-management flows outside this module.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no account row matches a lookup. Callers on
// authentication paths must blur this into the same outcome as a wrong
// password to preserve username-enumeration resistance.
var ErrNotFound = errors.New("store: account not found")

// SecondFactorMode selects the second-factor verifier for an account.
type SecondFactorMode string

const (
	SecondFactorNone SecondFactorMode = "none"
	SecondFactorOTP  SecondFactorMode = "otp"
	SecondFactorPGP  SecondFactorMode = "pgp"
)

// AccountRecord is a member account row. It is a plain snapshot; mutating it
// has no effect on the store.
type AccountRecord struct {
	ID           string
	Username     string
	PasswordHash string
	MnemonicHash string
	Banned       bool
	Frozen       bool
	SecondFactor SecondFactorMode
	OTPSecret    string
	PGPKey       string
	DarkMode     bool
	AuthLevel    int
	Currency     string
	LastLoginAt  time.Time
}

// PanelRecord is an administrative-panel account row. Panel accounts live in
// a separate table and never satisfy member lookups.
type PanelRecord struct {
	Username     string
	PasswordHash string
	AuthLevel    int
}

// MemberStore is the member-realm credential capability.
type MemberStore interface {
	FindByUsername(ctx context.Context, username string) (AccountRecord, error)
	UpdateLastLogin(ctx context.Context, username string, at time.Time) error
	UpdateOTPSecret(ctx context.Context, username, secret string) error
}

// PanelStore is the panel-realm credential capability.
type PanelStore interface {
	FindPanelByUsername(ctx context.Context, username string) (PanelRecord, error)
}

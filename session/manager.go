// Package session owns the ephemeral, dual-realm session state: the
// authenticated-principal snapshot, the unlock gate, the one-shot referrer,
// and the form-attempt counter. All state lives in Redis under a 15-minute
// sliding idle window; nothing survives in process memory across requests.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps cache faults. Security checks treat it as
// "not authenticated / not permitted".
var ErrRedisUnavailable = errors.New("session redis unavailable")

// ErrNoProfile is returned by Authenticate when the credential store does
// not hold exactly one matching row. The session stays unauthenticated.
var ErrNoProfile = errors.New("no matching account profile")

const (
	sessionIDSize   = 16
	maxFormAttempts = 3

	defaultIdleTTL    = 15 * time.Minute
	defaultPrefix     = "sess"
	defaultUnlockPath = "/unlock"
	defaultEntryPath  = "/"
)

// onionHost matches the legacy v2 onion-host referrer shape accepted in
// production. Everything else falls back to the entry path.
var onionHost = regexp.MustCompile(`^(?i)https?://[a-z2-7]{16}\.onion/?`)

// MemberProfile carries the member-realm fields copied into a snapshot.
type MemberProfile struct {
	ID        string
	AuthLevel int
	Currency  string
}

// PanelProfile carries the panel-realm fields copied into a snapshot.
type PanelProfile struct {
	AuthLevel int
}

// ProfileSource resolves an already-verified username to its realm profile.
// Implementations must return ErrNoProfile unless exactly one row matches.
type ProfileSource interface {
	MemberProfile(ctx context.Context, username string) (MemberProfile, error)
	PanelProfile(ctx context.Context, username string) (PanelProfile, error)
}

// Config tunes the Manager.
type Config struct {
	Prefix     string
	IdleTTL    time.Duration
	UnlockPath string
	EntryPath  string

	// Production widens SafeRedirect to accept onion-host referrers in
	// addition to same-origin paths.
	Production bool
}

// Manager is the Redis-backed session layer shared by both realms.
type Manager struct {
	redis    redis.UniversalClient
	profiles ProfileSource
	config   Config
}

func NewManager(redisClient redis.UniversalClient, profiles ProfileSource, cfg Config) *Manager {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaultIdleTTL
	}
	if cfg.UnlockPath == "" {
		cfg.UnlockPath = defaultUnlockPath
	}
	if cfg.EntryPath == "" {
		cfg.EntryPath = defaultEntryPath
	}

	return &Manager{
		redis:    redisClient,
		profiles: profiles,
		config:   cfg,
	}
}

// NewSessionID returns an opaque identifier for the caller's transport to
// hold. 16 random bytes, base64url without padding.
func (m *Manager) NewSessionID() (string, error) {
	var raw [sessionIDSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

func (m *Manager) key(sid string) string {
	return m.config.Prefix + ":" + sid
}

// load fetches the session record, refreshing the sliding idle window on a
// hit. An absent session decodes as the empty record.
func (m *Manager) load(ctx context.Context, sid string) (*record, error) {
	data, err := m.redis.Get(ctx, m.key(sid)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &record{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		// Corrupt blob: fail closed by treating the session as absent.
		return &record{}, nil
	}

	if err := m.redis.Expire(ctx, m.key(sid), m.config.IdleTTL).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return &rec, nil
}

func (m *Manager) save(ctx context.Context, sid string, rec *record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := m.redis.Set(ctx, m.key(sid), data, m.config.IdleTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Authenticate mints the member-realm snapshot for an already-verified
// username. Credential verification is the caller's responsibility; this
// method performs no password check. Unless the store holds exactly one
// matching row the session is left untouched and ErrNoProfile is returned.
func (m *Manager) Authenticate(ctx context.Context, sid, username string) error {
	profile, err := m.profiles.MemberProfile(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNoProfile) {
			return ErrNoProfile
		}
		return err
	}

	rec, err := m.load(ctx, sid)
	if err != nil {
		return err
	}

	rec.Member = &Snapshot{
		Realm:     RealmMember,
		ID:        profile.ID,
		Username:  username,
		AuthLevel: profile.AuthLevel,
		Currency:  profile.Currency,
		StartedAt: time.Now().Unix(),
	}

	return m.save(ctx, sid, rec)
}

// AuthenticatePanel is Authenticate for the administrative panel realm.
func (m *Manager) AuthenticatePanel(ctx context.Context, sid, username string) error {
	profile, err := m.profiles.PanelProfile(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNoProfile) {
			return ErrNoProfile
		}
		return err
	}

	rec, err := m.load(ctx, sid)
	if err != nil {
		return err
	}

	rec.Panel = &Snapshot{
		Realm:     RealmPanel,
		Username:  username,
		AuthLevel: profile.AuthLevel,
		StartedAt: time.Now().Unix(),
	}

	return m.save(ctx, sid, rec)
}

// Current returns the member snapshot if present. When a stored referrer
// exists it is consumed exactly once and returned as a Redirect the caller
// must honor before rendering anything.
func (m *Manager) Current(ctx context.Context, sid string) (*Snapshot, Redirect, error) {
	return m.current(ctx, sid, RealmMember)
}

// CurrentPanel is Current for the panel realm.
func (m *Manager) CurrentPanel(ctx context.Context, sid string) (*Snapshot, Redirect, error) {
	return m.current(ctx, sid, RealmPanel)
}

func (m *Manager) current(ctx context.Context, sid string, realm Realm) (*Snapshot, Redirect, error) {
	rec, err := m.load(ctx, sid)
	if err != nil {
		return nil, Redirect{}, err
	}

	snap := rec.Member
	if realm == RealmPanel {
		snap = rec.Panel
	}
	if snap == nil {
		return nil, Redirect{}, nil
	}

	if rec.Referrer != "" {
		target := rec.Referrer
		rec.Referrer = ""
		if err := m.save(ctx, sid, rec); err != nil {
			return nil, Redirect{}, err
		}
		return snap, Redirect{Location: target}, nil
	}

	return snap, Redirect{}, nil
}

// Unlocked enforces the coarse pre-authentication gate. A locked session on
// any path other than the unlock endpoint is redirected there; routing must
// treat the redirect as a hard precondition, not advice.
func (m *Manager) Unlocked(ctx context.Context, sid, requestPath string) (bool, Redirect, error) {
	rec, err := m.load(ctx, sid)
	if err != nil {
		return false, Redirect{}, err
	}

	if rec.Unlocked {
		return true, Redirect{}, nil
	}
	if requestPath != m.config.UnlockPath {
		return false, Redirect{Location: m.config.UnlockPath}, nil
	}
	return false, Redirect{}, nil
}

// Unlock marks the session as having passed the entry challenge.
func (m *Manager) Unlock(ctx context.Context, sid string) error {
	rec, err := m.load(ctx, sid)
	if err != nil {
		return err
	}
	rec.Unlocked = true
	return m.save(ctx, sid, rec)
}

// RegisterFormAttempt counts a sensitive-form submission. Overflowing the
// cap destroys the session and redirects to the entry point.
func (m *Manager) RegisterFormAttempt(ctx context.Context, sid string) (Redirect, error) {
	rec, err := m.load(ctx, sid)
	if err != nil {
		return Redirect{}, err
	}

	if rec.FormAttempts >= maxFormAttempts {
		if err := m.Destroy(ctx, sid); err != nil {
			return Redirect{}, err
		}
		return Redirect{Location: m.config.EntryPath}, nil
	}

	rec.FormAttempts++
	return Redirect{}, m.save(ctx, sid, rec)
}

// Username returns the member snapshot's username, or "" without error when
// no authenticated session exists.
func (m *Manager) Username(ctx context.Context, sid string) (string, error) {
	rec, err := m.load(ctx, sid)
	if err != nil {
		return "", err
	}
	if rec.Member == nil {
		return "", nil
	}
	return rec.Member.Username, nil
}

// Currency returns the member snapshot's display currency, falling back to
// usd on any session failure.
func (m *Manager) Currency(ctx context.Context, sid string) (string, error) {
	rec, err := m.load(ctx, sid)
	if err != nil {
		return "usd", err
	}
	if rec.Member == nil || rec.Member.Currency == "" {
		return "usd", nil
	}
	return rec.Member.Currency, nil
}

// AuthLevel returns the member snapshot's authorization level, falling back
// to 0 on any session failure.
func (m *Manager) AuthLevel(ctx context.Context, sid string) (int, error) {
	rec, err := m.load(ctx, sid)
	if err != nil {
		return 0, err
	}
	if rec.Member == nil {
		return 0, nil
	}
	return rec.Member.AuthLevel, nil
}

// DarkMode reports the session's display preference. Faults read as false.
func (m *Manager) DarkMode(ctx context.Context, sid string) bool {
	rec, err := m.load(ctx, sid)
	if err != nil {
		return false
	}
	return rec.DarkMode
}

// SetDarkMode stores the display preference applied at login time.
func (m *Manager) SetDarkMode(ctx context.Context, sid string, enabled bool) error {
	rec, err := m.load(ctx, sid)
	if err != nil {
		return err
	}
	rec.DarkMode = enabled
	return m.save(ctx, sid, rec)
}

// SetReferrer stores a post-login redirect target, consumed at most once by
// Current/CurrentPanel.
func (m *Manager) SetReferrer(ctx context.Context, sid, uri string) error {
	rec, err := m.load(ctx, sid)
	if err != nil {
		return err
	}
	rec.Referrer = uri
	return m.save(ctx, sid, rec)
}

// Destroy removes the session record.
func (m *Manager) Destroy(ctx context.Context, sid string) error {
	if err := m.redis.Del(ctx, m.key(sid)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RedirectAndDestroy destroys the session and instructs the caller to
// redirect to uri.
func (m *Manager) RedirectAndDestroy(ctx context.Context, sid, uri string) (Redirect, error) {
	if uri == "" {
		uri = m.config.EntryPath
	}
	if err := m.Destroy(ctx, sid); err != nil {
		return Redirect{}, err
	}
	return Redirect{Location: uri}, nil
}

// SafeRedirect validates a caller-supplied referrer. Same-origin paths are
// always allowed; production deployments additionally accept the fixed
// onion-host shape. Everything else falls back to the entry path. The
// referrer header is untrusted input and this is an allow-list, not a
// convenience.
func (m *Manager) SafeRedirect(referrer string) Redirect {
	if strings.HasPrefix(referrer, "/") && !strings.HasPrefix(referrer, "//") {
		return Redirect{Location: referrer}
	}
	if m.config.Production && onionHost.MatchString(referrer) {
		return Redirect{Location: referrer}
	}
	return Redirect{Location: m.config.EntryPath}
}

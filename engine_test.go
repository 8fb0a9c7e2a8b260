package trustcore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/veiled-systems/trustcore/password"
	"github.com/veiled-systems/trustcore/store"
)

type fakeMembers struct {
	mu       sync.Mutex
	accounts map[string]store.AccountRecord
	fault    error
}

func (f *fakeMembers) FindByUsername(_ context.Context, username string) (store.AccountRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fault != nil {
		return store.AccountRecord{}, f.fault
	}
	rec, ok := f.accounts[username]
	if !ok {
		return store.AccountRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (f *fakeMembers) UpdateLastLogin(_ context.Context, username string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.accounts[username]
	if !ok {
		return store.ErrNotFound
	}
	rec.LastLoginAt = at
	f.accounts[username] = rec
	return nil
}

func (f *fakeMembers) UpdateOTPSecret(_ context.Context, username, secret string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.accounts[username]
	if !ok {
		return store.ErrNotFound
	}
	rec.OTPSecret = secret
	f.accounts[username] = rec
	return nil
}

func (f *fakeMembers) lastLogin(username string) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts[username].LastLoginAt
}

type fakePanel struct {
	rows map[string]store.PanelRecord
}

func (f *fakePanel) FindPanelByUsername(_ context.Context, username string) (store.PanelRecord, error) {
	rec, ok := f.rows[username]
	if !ok {
		return store.PanelRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func quickHash(t *testing.T, plain string) string {
	t.Helper()

	h, err := password.New(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hasher init failed: %v", err)
	}
	encoded, err := h.Hash(plain)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	return encoded
}

type testRig struct {
	engine  *Engine
	members *fakeMembers
	redis   *miniredis.Miniredis
}

func newTestEngine(t *testing.T) *testRig {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	members := &fakeMembers{accounts: map[string]store.AccountRecord{
		"alice": {
			ID:           "u-1",
			Username:     "alice",
			PasswordHash: quickHash(t, "hunter2"),
			MnemonicHash: quickHash(t, "ocean ladder mango"),
			SecondFactor: store.SecondFactorNone,
			DarkMode:     true,
			AuthLevel:    2,
			Currency:     "eur",
		},
		"bob": {
			ID:           "u-2",
			Username:     "bob",
			PasswordHash: quickHash(t, "swordfish"),
			Banned:       true,
			SecondFactor: store.SecondFactorNone,
		},
		"carol": {
			ID:           "u-3",
			Username:     "carol",
			PasswordHash: quickHash(t, "letmein"),
			Frozen:       true,
			SecondFactor: store.SecondFactorNone,
		},
	}}
	panel := &fakePanel{rows: map[string]store.PanelRecord{
		"root": {Username: "root", PasswordHash: quickHash(t, "toor"), AuthLevel: 9},
	}}

	cfg := Config{}
	cfg.Captcha.Enabled = true
	cfg.Password.BcryptCost = bcrypt.MinCost

	engine, err := New(cfg, Deps{
		Redis:   rdb,
		Members: members,
		Panel:   panel,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("engine init failed: %v", err)
	}

	return &testRig{engine: engine, members: members, redis: mr}
}

func TestNewRequiresRedisAndMembers(t *testing.T) {
	if _, err := New(Config{}, Deps{}); err == nil {
		t.Fatal("expected an error without a redis client")
	}
	if _, err := New(Config{}, Deps{Redis: redis.NewClient(&redis.Options{})}); err == nil {
		t.Fatal("expected an error without a member store")
	}
}

func TestConfigValidateRejectsInvertedChallengeWindows(t *testing.T) {
	cfg := Config{}
	cfg.Captcha.ImageTTL = 10 * time.Minute
	cfg.Captcha.ActiveTTL = time.Minute

	if err := cfg.Validate(); err == nil {
		t.Fatal("image window longer than the active window must be rejected")
	}
}

func TestVerifyLoginUnknownUser(t *testing.T) {
	rig := newTestEngine(t)

	result, err := rig.engine.VerifyLogin(context.Background(), "s1", "mallory", "whatever")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if result.Status != LoginError {
		t.Fatalf("expected LoginError, got %v", result.Status)
	}
}

func TestVerifyLoginWrongPassword(t *testing.T) {
	rig := newTestEngine(t)

	result, err := rig.engine.VerifyLogin(context.Background(), "s1", "alice", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if result.Status != LoginError {
		t.Fatalf("expected LoginError, got %v", result.Status)
	}
	if !rig.members.lastLogin("alice").IsZero() {
		t.Fatal("a failed login must not advance the last-login timestamp")
	}
}

func TestVerifyLoginBannedBeforeSideEffects(t *testing.T) {
	rig := newTestEngine(t)

	result, err := rig.engine.VerifyLogin(context.Background(), "s1", "bob", "swordfish")
	if !errors.Is(err, ErrAccountBanned) {
		t.Fatalf("expected ErrAccountBanned, got %v", err)
	}
	if result.Status != LoginBanned {
		t.Fatalf("expected LoginBanned, got %v", result.Status)
	}
	if !rig.members.lastLogin("bob").IsZero() {
		t.Fatal("a banned login must not advance the last-login timestamp")
	}
}

func TestVerifyLoginSuccess(t *testing.T) {
	rig := newTestEngine(t)
	ctx := context.Background()

	result, err := rig.engine.VerifyLogin(ctx, "s1", "alice", "hunter2")
	if err != nil {
		t.Fatalf("VerifyLogin failed: %v", err)
	}
	if result.Status != LoginSuccess {
		t.Fatalf("expected LoginSuccess, got %v", result.Status)
	}
	if result.SecondFactor != SecondFactorNone {
		t.Fatalf("unexpected second factor %q", result.SecondFactor)
	}
	if !result.DarkMode {
		t.Fatal("dark mode preference must be surfaced")
	}
	if rig.members.lastLogin("alice").IsZero() {
		t.Fatal("a successful login must advance the last-login timestamp")
	}
	if !rig.engine.DarkMode(ctx, "s1") {
		t.Fatal("dark mode preference must be carried onto the session")
	}
}

func TestVerifyLoginSurfacesFrozenWithoutGating(t *testing.T) {
	rig := newTestEngine(t)

	result, err := rig.engine.VerifyLogin(context.Background(), "s1", "carol", "letmein")
	if err != nil {
		t.Fatalf("VerifyLogin failed: %v", err)
	}
	if result.Status != LoginSuccess {
		t.Fatal("a frozen account must still log in")
	}
	if !result.Frozen {
		t.Fatal("the frozen flag must be surfaced")
	}
}

func TestVerifyLoginStoreFault(t *testing.T) {
	rig := newTestEngine(t)
	rig.members.fault = errors.New("connection refused")

	result, err := rig.engine.VerifyLogin(context.Background(), "s1", "alice", "hunter2")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if result.Status != LoginError {
		t.Fatalf("expected LoginError, got %v", result.Status)
	}
}

func TestSecondFactorAccountLoginUpdatesLastLogin(t *testing.T) {
	rig := newTestEngine(t)
	ctx := context.Background()

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "t", AccountName: "dave"})
	if err != nil {
		t.Fatalf("totp generate failed: %v", err)
	}
	rig.members.accounts["dave"] = store.AccountRecord{
		ID:           "u-4",
		Username:     "dave",
		PasswordHash: quickHash(t, "correct horse"),
		SecondFactor: store.SecondFactorOTP,
		OTPSecret:    key.Secret(),
	}

	result, err := rig.engine.VerifyLogin(ctx, "s1", "dave", "correct horse")
	if err != nil {
		t.Fatalf("VerifyLogin failed: %v", err)
	}
	if result.Status != LoginSuccess || result.SecondFactor != SecondFactorOTP {
		t.Fatalf("expected OTP signal, got %+v", result)
	}
	// The timestamp advances on the success branch itself, not after the
	// second factor.
	if rig.members.lastLogin("dave").IsZero() {
		t.Fatal("a successful credential check must advance the last-login timestamp")
	}

	ok, err := rig.engine.VerifySecondFactor(ctx, "dave", "000000")
	if err != nil || ok {
		t.Fatalf("bogus code must fail: ok=%v err=%v", ok, err)
	}

	code, err := totp.GenerateCode(key.Secret(), time.Now())
	if err != nil {
		t.Fatalf("totp code failed: %v", err)
	}
	ok, err = rig.engine.VerifySecondFactor(ctx, "dave", code)
	if err != nil {
		t.Fatalf("VerifySecondFactor failed: %v", err)
	}
	if !ok {
		t.Fatal("a valid code must pass")
	}
}

func TestSecondFactorUnsupportedMode(t *testing.T) {
	rig := newTestEngine(t)
	rig.members.accounts["erin"] = store.AccountRecord{
		ID:           "u-5",
		Username:     "erin",
		PasswordHash: quickHash(t, "pw"),
		SecondFactor: store.SecondFactorPGP,
		PGPKey:       "-----BEGIN PGP PUBLIC KEY BLOCK-----",
	}

	ok, err := rig.engine.VerifySecondFactor(context.Background(), "erin", "anything")
	if !errors.Is(err, ErrSecondFactorUnsupported) {
		t.Fatalf("expected ErrSecondFactorUnsupported, got %v", err)
	}
	if ok {
		t.Fatal("unsupported modes must not pass")
	}
}

func TestIssueOTPSecret(t *testing.T) {
	rig := newTestEngine(t)
	ctx := context.Background()

	secret, qr, err := rig.engine.IssueOTPSecret(ctx, "alice")
	if err != nil {
		t.Fatalf("IssueOTPSecret failed: %v", err)
	}
	if secret == "" {
		t.Fatal("expected a secret")
	}
	if !strings.HasPrefix(qr, "data:image/png;base64,") {
		t.Fatalf("expected a PNG data URL, got %.40q", qr)
	}

	rec, err := rig.members.FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if rec.OTPSecret != secret {
		t.Fatal("the issued secret must be persisted")
	}
}

func TestTOTPVerifierRoundTrip(t *testing.T) {
	v := NewTOTPVerifier("trustcore-test")

	secret, err := v.IssueSecret("alice")
	if err != nil {
		t.Fatalf("IssueSecret failed: %v", err)
	}
	code, err := v.CurrentCode(secret)
	if err != nil {
		t.Fatalf("CurrentCode failed: %v", err)
	}
	if !v.VerifyCode(secret, code) {
		t.Fatal("the current code must verify against its own secret")
	}
	if v.VerifyCode(secret, "000000") {
		t.Fatal("a bogus code must not verify")
	}

	uri := v.ProvisioningURI(secret, "alice")
	if !strings.HasPrefix(uri, "otpauth://totp/") || !strings.Contains(uri, secret) {
		t.Fatalf("bad provisioning uri %q", uri)
	}
}

func TestVerifyPanelLogin(t *testing.T) {
	rig := newTestEngine(t)
	ctx := context.Background()

	level, err := rig.engine.VerifyPanelLogin(ctx, "root", "toor")
	if err != nil {
		t.Fatalf("VerifyPanelLogin failed: %v", err)
	}
	if level != 9 {
		t.Fatalf("expected level 9, got %d", level)
	}

	if _, err := rig.engine.VerifyPanelLogin(ctx, "root", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	// Member credentials never satisfy the panel realm.
	if _, err := rig.engine.VerifyPanelLogin(ctx, "alice", "hunter2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestVerifyMnemonicMatchInstallsCooldown(t *testing.T) {
	rig := newTestEngine(t)
	ctx := context.Background()

	ok, err := rig.engine.VerifyMnemonic(ctx, "alice", "ocean ladder mango")
	if err != nil {
		t.Fatalf("VerifyMnemonic failed: %v", err)
	}
	if !ok {
		t.Fatal("the correct phrase must match")
	}
	if !rig.redis.Exists("rl:recovery:alice") {
		t.Fatal("a match must install the cooldown marker")
	}

	// The cooldown blocks even the correct phrase.
	ok, err = rig.engine.VerifyMnemonic(ctx, "alice", "ocean ladder mango")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if ok {
		t.Fatal("a limited username must never match")
	}
}

func TestVerifyMnemonicMismatchLeavesNoMarker(t *testing.T) {
	rig := newTestEngine(t)

	ok, err := rig.engine.VerifyMnemonic(context.Background(), "alice", "wrong phrase entirely")
	if err != nil {
		t.Fatalf("VerifyMnemonic failed: %v", err)
	}
	if ok {
		t.Fatal("a wrong phrase must not match")
	}
	if rig.redis.Exists("rl:recovery:alice") {
		t.Fatal("a mismatch must not install the cooldown marker")
	}
}

func TestVerifyMnemonicFailsClosedOnCacheFault(t *testing.T) {
	rig := newTestEngine(t)
	rig.redis.Close()

	ok, err := rig.engine.VerifyMnemonic(context.Background(), "alice", "ocean ladder mango")
	if !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("expected ErrCacheUnavailable, got %v", err)
	}
	if ok {
		t.Fatal("a cache fault must never read as a match")
	}
}

func TestLoginToSessionEndToEnd(t *testing.T) {
	rig := newTestEngine(t)
	ctx := context.Background()

	sid, err := rig.engine.NewSessionID()
	if err != nil {
		t.Fatalf("NewSessionID failed: %v", err)
	}

	result, err := rig.engine.VerifyLogin(ctx, sid, "alice", "hunter2")
	if err != nil || result.Status != LoginSuccess {
		t.Fatalf("login failed: %+v, %v", result, err)
	}
	if err := rig.engine.IssueSession(ctx, sid, "alice", RealmMember); err != nil {
		t.Fatalf("IssueSession failed: %v", err)
	}

	snap, redirect, err := rig.engine.CurrentSession(ctx, sid, RealmMember)
	if err != nil {
		t.Fatalf("CurrentSession failed: %v", err)
	}
	if redirect.Redirecting() {
		t.Fatalf("unexpected redirect %q", redirect.Location)
	}
	if snap == nil || snap.Username != "alice" || snap.ID != "u-1" || snap.Currency != "eur" {
		t.Fatalf("bad snapshot: %+v", snap)
	}

	if rig.engine.Currency(ctx, sid) != "eur" {
		t.Fatal("currency accessor must reflect the snapshot")
	}
	if rig.engine.AuthLevel(ctx, sid) != 2 {
		t.Fatal("auth level accessor must reflect the snapshot")
	}
}

func TestChallengeEndToEnd(t *testing.T) {
	rig := newTestEngine(t)
	ctx := context.Background()

	image, err := rig.engine.NewChallenge(ctx, "s1", "login")
	if err != nil {
		t.Fatalf("NewChallenge failed: %v", err)
	}
	if !strings.HasPrefix(image, "data:image/png;base64,") {
		t.Fatalf("expected a PNG data URL, got %.40q", image)
	}

	code, err := rig.redis.Get("captcha:active:s1:login")
	if err != nil {
		t.Fatalf("no active challenge: %v", err)
	}

	result, err := rig.engine.VerifyChallenge(ctx, "s1", "login", code)
	if err != nil {
		t.Fatalf("VerifyChallenge failed: %v", err)
	}
	if result != ChallengeMatch {
		t.Fatalf("expected ChallengeMatch, got %v", result)
	}

	// Consumed: the same answer can never pass again.
	result, err = rig.engine.VerifyChallenge(ctx, "s1", "login", code)
	if err != nil {
		t.Fatalf("replay VerifyChallenge failed: %v", err)
	}
	if result != ChallengeAbsent {
		t.Fatalf("expected ChallengeAbsent, got %v", result)
	}
}

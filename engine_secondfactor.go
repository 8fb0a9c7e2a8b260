package trustcore

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"net/url"
	"time"

	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/veiled-systems/trustcore/secureid"
	"github.com/veiled-systems/trustcore/store"
)

// SecondFactorVerifier is the second-factor capability: secret issuance,
// code generation for enrollment checks, provisioning URIs, and
// verification.
type SecondFactorVerifier interface {
	IssueSecret(username string) (string, error)
	CurrentCode(secret string) (string, error)
	ProvisioningURI(secret, username string) string
	VerifyCode(secret, code string) bool
}

type totpVerifier struct {
	issuer string
}

// NewTOTPVerifier returns the default time-based one-time-password
// verifier.
func NewTOTPVerifier(issuer string) SecondFactorVerifier {
	return &totpVerifier{issuer: issuer}
}

func (v *totpVerifier) IssueSecret(username string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      v.issuer,
		AccountName: username,
	})
	if err != nil {
		return "", err
	}
	return key.Secret(), nil
}

func (v *totpVerifier) CurrentCode(secret string) (string, error) {
	return totp.GenerateCode(secret, time.Now())
}

func (v *totpVerifier) ProvisioningURI(secret, username string) string {
	q := url.Values{}
	q.Set("secret", secret)
	q.Set("issuer", v.issuer)
	return (&url.URL{
		Scheme:   "otpauth",
		Host:     "totp",
		Path:     "/" + v.issuer + ":" + username,
		RawQuery: q.Encode(),
	}).String()
}

func (v *totpVerifier) VerifyCode(secret, code string) bool {
	return totp.Validate(code, secret)
}

// VerifySecondFactor checks the second-factor code for an account whose
// first factor already passed. Accounts without a second factor pass
// trivially; modes the engine cannot verify fail with
// ErrSecondFactorUnsupported.
func (e *Engine) VerifySecondFactor(ctx context.Context, username, code string) (bool, error) {
	if e == nil || e.members == nil {
		return false, ErrEngineNotReady
	}

	rec, err := e.members.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		e.logger.Error("member lookup failed", "username", username, "err", err)
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	switch rec.SecondFactor {
	case store.SecondFactorNone:
		return true, nil
	case store.SecondFactorOTP:
		return rec.OTPSecret != "" && e.verifier.VerifyCode(rec.OTPSecret, code), nil
	default:
		return false, ErrSecondFactorUnsupported
	}
}

// IssueOTPSecret provisions a fresh time-based secret for the account,
// persists it, and returns the secret together with a QR provisioning image
// as a PNG data URL.
func (e *Engine) IssueOTPSecret(ctx context.Context, username string) (secret, qr string, err error) {
	if e == nil || e.members == nil {
		return "", "", ErrEngineNotReady
	}

	rec, err := e.members.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", "", ErrInvalidCredentials
		}
		return "", "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	secret, err = e.verifier.IssueSecret(username)
	if err != nil {
		return "", "", err
	}

	if err := e.members.UpdateOTPSecret(ctx, rec.Username, secret); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	qr, err = ProvisioningQR(e.verifier.ProvisioningURI(secret, username))
	if err != nil {
		return "", "", err
	}
	return secret, qr, nil
}

// ProvisioningQR renders a provisioning URI as an embeddable PNG data URL.
func ProvisioningQR(uri string) (string, error) {
	code, err := qrcode.New(uri, qrcode.Medium)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, code.Image(256)); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// NewSecureID returns an n-character lowercase identifier, dash-grouped
// when grouped is set. Suitable for order and dispute references.
func NewSecureID(n int, grouped bool) (string, error) {
	return secureid.NewID(n, grouped)
}

// NewSecretID returns an n-character hex-alphabet secret suitable for
// bearer-style lookups.
func NewSecretID(n int, grouped bool) (string, error) {
	return secureid.NewSecret(n, grouped)
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements MemberStore and PanelStore on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) FindByUsername(ctx context.Context, username string) (AccountRecord, error) {
	query := `
		SELECT id, username, password, mnemonic, banned, frozen,
		       twofa_mode, otp_secret, pgp_key, dark_mode,
		       auth_level, currency, COALESCE(last_login_date, 'epoch'::timestamptz)
		FROM users
		WHERE username = $1`

	var rec AccountRecord
	err := p.pool.QueryRow(ctx, query, username).Scan(
		&rec.ID, &rec.Username, &rec.PasswordHash, &rec.MnemonicHash,
		&rec.Banned, &rec.Frozen, &rec.SecondFactor, &rec.OTPSecret,
		&rec.PGPKey, &rec.DarkMode, &rec.AuthLevel, &rec.Currency,
		&rec.LastLoginAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountRecord{}, ErrNotFound
		}
		return AccountRecord{}, fmt.Errorf("query account: %w", err)
	}

	return rec, nil
}

func (p *Postgres) UpdateLastLogin(ctx context.Context, username string, at time.Time) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE users SET last_login_date = $2 WHERE username = $1`,
		username, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) UpdateOTPSecret(ctx context.Context, username, secret string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE users SET otp_secret = $2, twofa_mode = 'otp' WHERE username = $1`,
		username, secret,
	)
	if err != nil {
		return fmt.Errorf("update otp secret: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) FindPanelByUsername(ctx context.Context, username string) (PanelRecord, error) {
	var rec PanelRecord
	err := p.pool.QueryRow(ctx,
		`SELECT username, password, auth_level FROM panel_users WHERE username = $1`,
		username,
	).Scan(&rec.Username, &rec.PasswordHash, &rec.AuthLevel)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PanelRecord{}, ErrNotFound
		}
		return PanelRecord{}, fmt.Errorf("query panel account: %w", err)
	}

	return rec, nil
}

// CreateAccountInput provisions a new member account. Hashes are produced by
// the caller; the store never sees plaintext credentials.
type CreateAccountInput struct {
	Username     string
	PasswordHash string
	MnemonicHash string
	Currency     string
}

// CreateAccount inserts a member account with a fresh UUIDv7 id and returns
// the stored record. Duplicate usernames surface as a database error.
func (p *Postgres) CreateAccount(ctx context.Context, in CreateAccountInput) (AccountRecord, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return AccountRecord{}, fmt.Errorf("generate account id: %w", err)
	}

	currency := in.Currency
	if currency == "" {
		currency = "usd"
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO users (id, username, password, mnemonic, currency)
		VALUES ($1, $2, $3, $4, $5)`,
		id.String(), in.Username, in.PasswordHash, in.MnemonicHash, currency,
	)
	if err != nil {
		return AccountRecord{}, fmt.Errorf("insert account: %w", err)
	}

	return p.FindByUsername(ctx, in.Username)
}

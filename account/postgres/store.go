package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hackforge/hackauth/account"
	"github.com/hackforge/hackauth/autherr"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

const accountColumns = `id, email, username, name, password_hash, role, avatar_url,
       email_verified, two_factor_enabled, banned, disabled, created_at, updated_at`

// DefaultOpTimeout bounds each store call when no other timeout is set.
const DefaultOpTimeout = 5 * time.Second

// Store is an account.Store backed by PostgreSQL. Every call runs under the
// caller's context capped at the store's operation timeout.
type Store struct {
	db      *sql.DB
	timeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithOpTimeout sets the per-call deadline. Non-positive values keep the
// default.
func WithOpTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, timeout: DefaultOpTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) FindByID(ctx context.Context, id string) (*account.Account, error) {
	return s.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*account.Account, error) {
	return s.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
}

func (s *Store) FindByUsername(ctx context.Context, username string) (*account.Account, error) {
	return s.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username)
}

func (s *Store) FindByIdentity(ctx context.Context, provider, externalID string) (*account.Account, error) {
	return s.findOne(ctx, `SELECT `+accountColumns+` FROM accounts
       WHERE id = (SELECT account_id FROM account_identities WHERE provider = $1 AND external_id = $2)`,
		provider, externalID)
}

func (s *Store) findOne(ctx context.Context, query string, args ...any) (*account.Account, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	acct := &account.Account{}
	var role string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&acct.ID, &acct.Email, &acct.Username, &acct.Name, &acct.PasswordHash, &role, &acct.AvatarURL,
		&acct.EmailVerified, &acct.TwoFactorEnabled, &acct.Banned, &acct.Disabled, &acct.CreatedAt, &acct.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, autherr.ErrAccountNotFound
		}
		return nil, autherr.Unavailable("postgres find account", err)
	}
	acct.Role = account.Role(role)

	identities, err := s.identities(ctx, acct.ID)
	if err != nil {
		return nil, err
	}
	acct.Identities = identities
	return acct, nil
}

func (s *Store) identities(ctx context.Context, accountID string) ([]account.Identity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider, external_id, linked_at FROM account_identities WHERE account_id = $1 ORDER BY linked_at`,
		accountID)
	if err != nil {
		return nil, autherr.Unavailable("postgres list identities", err)
	}
	defer rows.Close()

	var out []account.Identity
	for rows.Next() {
		var id account.Identity
		if err := rows.Scan(&id.Provider, &id.ExternalID, &id.LinkedAt); err != nil {
			return nil, autherr.Unavailable("postgres scan identity", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, autherr.Unavailable("postgres list identities", err)
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM accounts`).Scan(&n); err != nil {
		return 0, autherr.Unavailable("postgres count accounts", err)
	}
	return n, nil
}

// Create inserts acct and its identities in one transaction.
func (s *Store) Create(ctx context.Context, acct *account.Account) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return autherr.Unavailable("postgres begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`)
       VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		acct.ID, acct.Email, acct.Username, acct.Name, acct.PasswordHash, string(acct.Role), acct.AvatarURL,
		acct.EmailVerified, acct.TwoFactorEnabled, acct.Banned, acct.Disabled, acct.CreatedAt, acct.UpdatedAt,
	)
	if err != nil {
		return mapWriteError("postgres insert account", err)
	}

	for _, id := range acct.Identities {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO account_identities (provider, external_id, account_id, linked_at) VALUES ($1, $2, $3, $4)`,
			id.Provider, id.ExternalID, acct.ID, id.LinkedAt)
		if err != nil {
			return mapWriteError("postgres insert identity", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return autherr.Unavailable("postgres commit", err)
	}
	return nil
}

// LinkIdentity attaches identity to accountID. Linking an identity the
// account already owns is a no-op.
func (s *Store) LinkIdentity(ctx context.Context, accountID string, identity account.Identity) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO account_identities (provider, external_id, account_id, linked_at)
       VALUES ($1, $2, $3, $4)
       ON CONFLICT (provider, external_id) DO NOTHING`,
		identity.Provider, identity.ExternalID, accountID, identity.LinkedAt)
	if err != nil {
		return mapWriteError("postgres link identity", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	var owner string
	err = s.db.QueryRowContext(ctx,
		`SELECT account_id FROM account_identities WHERE provider = $1 AND external_id = $2`,
		identity.Provider, identity.ExternalID).Scan(&owner)
	if err != nil {
		return autherr.Unavailable("postgres identity owner", err)
	}
	if owner != accountID {
		return autherr.ErrIdentityLinked
	}
	return nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, accountID, hash string) error {
	return s.update(ctx, "password_hash", accountID, hash)
}

func (s *Store) MarkEmailVerified(ctx context.Context, accountID string) error {
	return s.update(ctx, "email_verified", accountID, true)
}

func (s *Store) SetTwoFactor(ctx context.Context, accountID string, enabled bool) error {
	return s.update(ctx, "two_factor_enabled", accountID, enabled)
}

func (s *Store) SetDisabled(ctx context.Context, accountID string, disabled bool) error {
	return s.update(ctx, "disabled", accountID, disabled)
}

// SetBanned is the moderation hook; the auth flows only read the flag.
func (s *Store) SetBanned(ctx context.Context, accountID string, banned bool) error {
	return s.update(ctx, "banned", accountID, banned)
}

// update sets one column. column is always a constant from this file.
func (s *Store) update(ctx context.Context, column, accountID string, value any) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE accounts SET %s = $2, updated_at = now() WHERE id = $1`, column),
		accountID, value)
	if err != nil {
		return autherr.Unavailable("postgres update "+column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return autherr.Unavailable("postgres update "+column, err)
	}
	if n == 0 {
		return autherr.ErrAccountNotFound
	}
	return nil
}

func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			switch pgErr.ConstraintName {
			case "accounts_email_key":
				return autherr.ErrEmailExists
			case "accounts_username_key":
				return autherr.ErrUsernameExists
			case "account_identities_pkey":
				return autherr.ErrIdentityLinked
			}
			return autherr.New(autherr.ErrConflict, "duplicate record")
		case codeForeignKeyViolation:
			return autherr.ErrAccountNotFound
		}
	}
	return autherr.Unavailable(op, err)
}

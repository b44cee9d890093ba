// Package token issues access/refresh token pairs and rotates refresh tokens
// against the Redis session store.
package token

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hackforge/hackauth/account"
	"github.com/hackforge/hackauth/autherr"
	"github.com/hackforge/hackauth/fingerprint"
	"github.com/hackforge/hackauth/internal"
	"github.com/hackforge/hackauth/jwt"
	"github.com/hackforge/hackauth/session"
)

// DefaultRefreshTTL is the refresh token and session lifetime.
const DefaultRefreshTTL = 7 * 24 * time.Hour

// Issued is the value handed back on login and refresh. The caller turns it
// into cookies and a response body.
type Issued struct {
	AccessToken      string
	RefreshToken     string
	SessionID        string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Principal is the identity recovered from a valid access token.
type Principal struct {
	AccountID string
	Username  string
	Email     string
	Role      account.Role
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ReuseHook is called after a refresh presented a token that does not match
// its session. The session is already revoked; snapshot may be nil.
type ReuseHook func(ctx context.Context, snapshot *session.Session, replayed bool)

// Service owns session issuance, refresh rotation and access validation.
type Service struct {
	jwt        *jwt.Manager
	sessions   *session.Store
	accounts   account.Store
	refreshTTL time.Duration
	logger     logrus.FieldLogger
	onReuse    ReuseHook
	now        func() time.Time
}

// Option customizes a [Service].
type Option func(*Service)

// WithLogger sets the logger used for revocation warnings.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithReuseHook registers a callback for refresh token reuse.
func WithReuseHook(hook ReuseHook) Option {
	return func(s *Service) { s.onReuse = hook }
}

// NewService builds a [Service]. A non-positive refreshTTL selects
// [DefaultRefreshTTL].
func NewService(manager *jwt.Manager, sessions *session.Store, accounts account.Store, refreshTTL time.Duration, opts ...Option) *Service {
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	s := &Service{
		jwt:        manager,
		sessions:   sessions,
		accounts:   accounts,
		refreshTTL: refreshTTL,
		logger:     logrus.StandardLogger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RefreshTTL reports the refresh token lifetime.
func (s *Service) RefreshTTL() time.Duration {
	return s.refreshTTL
}

// IssueSession opens a new session for acct and returns its first token
// pair.
func (s *Service) IssueSession(ctx context.Context, acct *account.Account, fp fingerprint.Fingerprint) (*Issued, error) {
	if acct == nil || acct.ID == "" {
		return nil, autherr.ErrInvalidInput
	}
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}
	refresh, err := internal.NewRefreshToken()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sess := &session.Session{
		ID:          sid.String(),
		AccountID:   acct.ID,
		CreatedAt:   now,
		RenewedAt:   now,
		ExpiresAt:   now.Add(s.refreshTTL),
		RefreshHash: internal.HashToken(refresh),
		Fingerprint: fp,
	}
	if err := s.sessions.Save(ctx, sess, s.refreshTTL); err != nil {
		return nil, err
	}

	return s.issue(acct, sess, refresh)
}

// Refresh rotates refreshToken for sessionID and returns the new pair along
// with the owning account.
//
// An unknown or expired session, or one whose account is banned or disabled,
// fails with autherr.ErrInvalidSession. A token that does not match the
// session revokes it and fails with autherr.ErrInvalidRefreshToken.
func (s *Service) Refresh(ctx context.Context, refreshToken, sessionID string) (*Issued, *account.Account, error) {
	if sessionID == "" {
		return nil, nil, autherr.ErrInvalidSession
	}
	if refreshToken == "" {
		return nil, nil, autherr.ErrInvalidRefreshToken
	}

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, sessionError(err)
	}

	acct, err := s.accounts.FindByID(ctx, sess.AccountID)
	if err != nil {
		if errors.Is(err, autherr.ErrAccountNotFound) {
			s.revokeQuietly(ctx, sessionID)
			return nil, nil, autherr.ErrInvalidSession
		}
		return nil, nil, err
	}
	if !acct.Active() {
		s.revokeQuietly(ctx, sessionID)
		return nil, nil, autherr.ErrInvalidSession
	}

	next, err := internal.NewRefreshToken()
	if err != nil {
		return nil, nil, err
	}
	rotated, err := s.sessions.Rotate(ctx, sessionID, acct.ID, internal.HashToken(refreshToken), internal.HashToken(next), s.refreshTTL)
	if err != nil {
		var mismatch *session.MismatchError
		if errors.As(err, &mismatch) {
			s.reportReuse(ctx, sessionID, mismatch)
			return nil, nil, autherr.ErrInvalidRefreshToken
		}
		return nil, nil, sessionError(err)
	}

	issued, err := s.issue(acct, rotated, next)
	if err != nil {
		return nil, nil, err
	}
	return issued, acct, nil
}

func (s *Service) reportReuse(ctx context.Context, sessionID string, mismatch *session.MismatchError) {
	entry := s.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"replayed":   mismatch.Replayed,
	})
	if snap := mismatch.Session; snap != nil {
		entry = entry.WithFields(logrus.Fields{
			"account_id": snap.AccountID,
			"ip":         snap.Fingerprint.IPAddress,
			"user_agent": snap.Fingerprint.UserAgent,
			"device":     snap.Fingerprint.DeviceType,
			"browser":    snap.Fingerprint.Browser,
			"os":         snap.Fingerprint.OS,
		})
	}
	entry.Warn("refresh token mismatch, session revoked")
	if s.onReuse != nil {
		s.onReuse(ctx, mismatch.Session, mismatch.Replayed)
	}
}

func (s *Service) revokeQuietly(ctx context.Context, sessionID string) {
	if _, err := s.sessions.Delete(ctx, sessionID); err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Warn("session revoke failed")
	}
}

func (s *Service) issue(acct *account.Account, sess *session.Session, refresh string) (*Issued, error) {
	access, accessExp, err := s.jwt.CreateAccess(jwt.Subject{
		AccountID: acct.ID,
		Username:  acct.Username,
		Email:     acct.Email,
		Role:      string(acct.Role),
		SessionID: sess.ID,
	})
	if err != nil {
		return nil, err
	}
	return &Issued{
		AccessToken:      access,
		RefreshToken:     refresh,
		SessionID:        sess.ID,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: sess.ExpiresAt,
	}, nil
}

// ValidateAccessToken verifies tokenStr without touching the session store.
// Every failure is reported as autherr.ErrInvalidAccessToken.
func (s *Service) ValidateAccessToken(tokenStr string) (*Principal, error) {
	if tokenStr == "" {
		return nil, autherr.ErrInvalidAccessToken
	}
	claims, err := s.jwt.ParseAccess(tokenStr)
	if err != nil {
		s.logger.WithError(err).Debug("access token rejected")
		return nil, autherr.ErrInvalidAccessToken
	}
	p := &Principal{
		AccountID: claims.Subject,
		Username:  claims.Username,
		Email:     claims.Email,
		Role:      account.Role(claims.Role),
		SessionID: claims.SID,
	}
	if claims.IssuedAt != nil {
		p.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}

// ValidateSession is [Service.ValidateAccessToken] plus a check that the
// token's session is still live and owned by its subject, so logout and
// reuse revocation take effect before the token expires.
//
//	Performance: 1 Redis HGETALL.
func (s *Service) ValidateSession(ctx context.Context, tokenStr string) (*Principal, error) {
	p, err := s.ValidateAccessToken(tokenStr)
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.Get(ctx, p.SessionID)
	if err != nil {
		return nil, sessionError(err)
	}
	if sess.AccountID != p.AccountID {
		return nil, autherr.ErrInvalidSession
	}
	return p, nil
}

// Validate implements the request guard's validator contract.
func (s *Service) Validate(_ context.Context, credential string) (*Principal, error) {
	return s.ValidateAccessToken(credential)
}

// RevokeSession deletes sessionID. Revoking an unknown session succeeds.
func (s *Service) RevokeSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	_, err := s.sessions.Delete(ctx, sessionID)
	return err
}

// RevokeAccountSession deletes sessionID only when it belongs to accountID.
func (s *Service) RevokeAccountSession(ctx context.Context, accountID, sessionID string) error {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return autherr.ErrSessionNotFound
		}
		return err
	}
	if sess.AccountID != accountID {
		return autherr.ErrSessionNotFound
	}
	_, err = s.sessions.Delete(ctx, sessionID)
	return err
}

// RevokeAllForAccount deletes every session of accountID and returns how many
// were live.
func (s *Service) RevokeAllForAccount(ctx context.Context, accountID string) (int, error) {
	return s.sessions.DeleteAllForAccount(ctx, accountID)
}

// ListSessions returns the live sessions of accountID, newest first.
// currentSessionID, when set, marks the caller's own session.
func (s *Service) ListSessions(ctx context.Context, accountID, currentSessionID string) ([]session.Info, error) {
	list, err := s.sessions.ListForAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	out := make([]session.Info, 0, len(list))
	for _, sess := range list {
		out = append(out, sess.Info(sess.ID == currentSessionID))
	}
	return out, nil
}

func sessionError(err error) error {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrExpired), errors.Is(err, session.ErrCorrupt):
		return autherr.ErrInvalidSession
	default:
		return err
	}
}

package session

import (
	"strconv"
	"time"

	"github.com/hackforge/hackauth/fingerprint"
)

// Session is one refresh-token family. Only the SHA-256 digest of the current
// refresh token is stored; UsedHash remembers the digest it replaced so a
// replayed token can be told apart from a forged one.
type Session struct {
	ID          string
	AccountID   string
	CreatedAt   time.Time
	RenewedAt   time.Time
	ExpiresAt   time.Time
	RefreshHash string
	UsedHash    string
	Fingerprint fingerprint.Fingerprint
}

// Expired reports whether the session is past its absolute expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Info is the client-safe view returned by session listings.
type Info struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"createdAt"`
	RenewedAt  time.Time `json:"renewedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	IPAddress  string    `json:"ipAddress,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty"`
	DeviceType string    `json:"deviceType"`
	Browser    string    `json:"browser,omitempty"`
	OS         string    `json:"os,omitempty"`
	Current    bool      `json:"current"`
}

// Info converts s for listing. current marks the caller's own session.
func (s *Session) Info(current bool) Info {
	return Info{
		ID:         s.ID,
		CreatedAt:  s.CreatedAt,
		RenewedAt:  s.RenewedAt,
		ExpiresAt:  s.ExpiresAt,
		IPAddress:  s.Fingerprint.IPAddress,
		UserAgent:  s.Fingerprint.UserAgent,
		DeviceType: s.Fingerprint.DeviceType,
		Browser:    s.Fingerprint.Browser,
		OS:         s.Fingerprint.OS,
		Current:    current,
	}
}

const (
	fieldAccountID   = "account_id"
	fieldCreatedAt   = "created_at"
	fieldRenewedAt   = "renewed_at"
	fieldExpiresAt   = "expires_at"
	fieldRefreshHash = "refresh_hash"
	fieldUsedHash    = "used_hash"
	fieldIP          = "ip"
	fieldUserAgent   = "user_agent"
	fieldDevice      = "device"
	fieldBrowser     = "browser"
	fieldOS          = "os"
)

func (s *Session) fields() []interface{} {
	return []interface{}{
		fieldAccountID, s.AccountID,
		fieldCreatedAt, unixMilli(s.CreatedAt),
		fieldRenewedAt, unixMilli(s.RenewedAt),
		fieldExpiresAt, unixMilli(s.ExpiresAt),
		fieldRefreshHash, s.RefreshHash,
		fieldUsedHash, s.UsedHash,
		fieldIP, s.Fingerprint.IPAddress,
		fieldUserAgent, s.Fingerprint.UserAgent,
		fieldDevice, s.Fingerprint.DeviceType,
		fieldBrowser, s.Fingerprint.Browser,
		fieldOS, s.Fingerprint.OS,
	}
}

func decode(id string, m map[string]string) (*Session, error) {
	accountID := m[fieldAccountID]
	if accountID == "" {
		return nil, ErrCorrupt
	}
	created, err := parseMilli(m[fieldCreatedAt])
	if err != nil {
		return nil, ErrCorrupt
	}
	renewed, err := parseMilli(m[fieldRenewedAt])
	if err != nil {
		return nil, ErrCorrupt
	}
	expires, err := parseMilli(m[fieldExpiresAt])
	if err != nil {
		return nil, ErrCorrupt
	}
	return &Session{
		ID:          id,
		AccountID:   accountID,
		CreatedAt:   created,
		RenewedAt:   renewed,
		ExpiresAt:   expires,
		RefreshHash: m[fieldRefreshHash],
		UsedHash:    m[fieldUsedHash],
		Fingerprint: fingerprint.Fingerprint{
			IPAddress:  m[fieldIP],
			UserAgent:  m[fieldUserAgent],
			DeviceType: m[fieldDevice],
			Browser:    m[fieldBrowser],
			OS:         m[fieldOS],
		},
	}, nil
}

// decodePairs decodes the flat field/value list HGETALL returns from Lua.
func decodePairs(id string, raw []interface{}) (*Session, error) {
	m := make(map[string]string, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		k, _ := raw[i].(string)
		v, _ := raw[i+1].(string)
		m[k] = v
	}
	return decode(id, m)
}

func unixMilli(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMilli(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}

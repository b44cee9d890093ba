package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hackforge/hackauth/autherr"
	"github.com/hackforge/hackauth/internal"
)

// Purpose separates code namespaces. A code issued for one purpose can never
// be consumed for another.
type Purpose string

const (
	PurposeEmailVerification Purpose = "verify"
	PurposeTwoFactor         Purpose = "2fa"
	PurposeTwoFactorLogin    Purpose = "2fa-login"
	PurposeAccountDisable    Purpose = "disable"
	PurposePasswordReset     Purpose = "reset"
	PurposeOAuthState        Purpose = "oauth-state"
)

// DefaultTTL is the lifetime of a code issued for p.
func (p Purpose) DefaultTTL() time.Duration {
	switch p {
	case PurposePasswordReset:
		return 15 * time.Minute
	case PurposeOAuthState:
		return 10 * time.Minute
	default:
		return 5 * time.Minute
	}
}

// Prefix is the key prefix of p.
func (p Purpose) Prefix() string {
	return string(p) + ":"
}

const (
	fieldCodeHash = "code_hash"
	fieldPayload  = "payload"
)

const (
	consumeNotFound int64 = 0
	consumeMismatch int64 = 1
	consumeMatched  int64 = 2
)

// consumeCodeLua compares and deletes in one step so a code matches at most
// once. A mismatch leaves the entry and its TTL untouched.
// KEYS[1] = entry key
// ARGV[1] = hex digest of the supplied code
var consumeCodeLua = redis.NewScript(`
local stored = redis.call('HGET', KEYS[1], 'code_hash')
if not stored then
  return {0}
end
if stored ~= ARGV[1] then
  return {1}
end
local payload = redis.call('HGET', KEYS[1], 'payload') or ''
redis.call('DEL', KEYS[1])
return {2, payload}
`)

// CodeStore keeps short-lived verification codes in Redis. Only the SHA-256
// digest of a code is stored.
type CodeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewCodeStore(redisClient redis.UniversalClient, prefix string) *CodeStore {
	return &CodeStore{redis: redisClient, prefix: prefix}
}

func (s *CodeStore) key(purpose Purpose, subject string) string {
	return s.prefix + purpose.Prefix() + subject
}

// Put stores code for (purpose, subject), replacing any previous entry and
// starting a fresh TTL. A non-positive ttl selects the purpose default.
func (s *CodeStore) Put(ctx context.Context, purpose Purpose, subject, code, payload string, ttl time.Duration) error {
	if subject == "" || code == "" {
		return autherr.ErrInvalidInput
	}
	if ttl <= 0 {
		ttl = purpose.DefaultTTL()
	}

	key := s.key(purpose, subject)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fieldCodeHash, internal.HashToken(code), fieldPayload, payload)
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return autherr.Unavailable("code store put", err)
	}
	return nil
}

// Consume deletes the entry and returns its payload when code matches.
// It returns autherr.ErrCodeNotFound when nothing is stored and
// autherr.ErrCodeMismatch when the stored code differs.
func (s *CodeStore) Consume(ctx context.Context, purpose Purpose, subject, code string) (string, error) {
	if subject == "" {
		return "", autherr.ErrCodeNotFound
	}

	res, err := consumeCodeLua.Run(ctx, s.redis, []string{s.key(purpose, subject)}, internal.HashToken(code)).Slice()
	if err != nil {
		return "", autherr.Unavailable("code store consume", err)
	}
	if len(res) == 0 {
		return "", autherr.Unavailable("code store consume", errors.New("empty script reply"))
	}

	status, ok := res[0].(int64)
	if !ok {
		return "", autherr.Unavailable("code store consume", fmt.Errorf("unexpected status %T", res[0]))
	}

	switch status {
	case consumeNotFound:
		return "", autherr.ErrCodeNotFound
	case consumeMismatch:
		return "", autherr.ErrCodeMismatch
	case consumeMatched:
		payload := ""
		if len(res) > 1 {
			payload, _ = res[1].(string)
		}
		return payload, nil
	default:
		return "", autherr.Unavailable("code store consume", fmt.Errorf("unknown status %d", status))
	}
}

// Delete removes any entry for (purpose, subject).
func (s *CodeStore) Delete(ctx context.Context, purpose Purpose, subject string) error {
	if err := s.redis.Del(ctx, s.key(purpose, subject)).Err(); err != nil {
		return autherr.Unavailable("code store delete", err)
	}
	return nil
}

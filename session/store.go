package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hackforge/hackauth/autherr"
)

var (
	// ErrNotFound is returned when no live session has the requested id.
	ErrNotFound = errors.New("session not found")
	// ErrExpired is returned when rotation targets a session past its expiry.
	ErrExpired = errors.New("session expired")
	// ErrRefreshMismatch is returned when the presented refresh digest does
	// not match the stored one. The session has been deleted by then.
	ErrRefreshMismatch = errors.New("refresh token mismatch")
	// ErrCorrupt is returned when a stored session hash is missing fields.
	ErrCorrupt = errors.New("session record corrupt")
)

// MismatchError carries the state of a session that was revoked because a
// refresh presented the wrong token. Replayed is true when the presented
// token is the one that was rotated away, which indicates theft.
type MismatchError struct {
	Session  *Session
	Replayed bool
}

func (e *MismatchError) Error() string {
	if e.Replayed {
		return "refresh token reuse detected"
	}
	return ErrRefreshMismatch.Error()
}

func (e *MismatchError) Unwrap() error { return ErrRefreshMismatch }

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusMismatch int64 = 2
	rotateStatusRotated  int64 = 3
	rotateStatusReplayed int64 = 4
)

const deleteSessionScript = `
local owner = redis.call("HGET", KEYS[1], "account_id")
if not owner then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("SREM", ARGV[2] .. owner, ARGV[1])
return 1
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// KEYS[1] session hash, KEYS[2] account index.
// ARGV: id, presented digest, next digest, now ms, ttl ms, expires ms.
const rotateRefreshScript = `
local raw = redis.call("HGETALL", KEYS[1])
if #raw == 0 then
  return {0}
end
local s = {}
for i = 1, #raw, 2 do
  s[raw[i]] = raw[i + 1]
end

if tonumber(s["expires_at"] or "0") <= tonumber(ARGV[4]) then
  redis.call("DEL", KEYS[1])
  redis.call("SREM", KEYS[2], ARGV[1])
  return {1}
end

if s["refresh_hash"] ~= ARGV[2] then
  redis.call("DEL", KEYS[1])
  redis.call("SREM", KEYS[2], ARGV[1])
  if s["used_hash"] ~= nil and s["used_hash"] ~= "" and s["used_hash"] == ARGV[2] then
    return {4, raw}
  end
  return {2, raw}
end

redis.call("HSET", KEYS[1],
  "refresh_hash", ARGV[3],
  "used_hash", ARGV[2],
  "renewed_at", ARGV[4],
  "expires_at", ARGV[6])
redis.call("PEXPIRE", KEYS[1], ARGV[5])
redis.call("SADD", KEYS[2], ARGV[1])
if redis.call("PTTL", KEYS[2]) < tonumber(ARGV[5]) then
  redis.call("PEXPIRE", KEYS[2], ARGV[5])
end
return {3, redis.call("HGETALL", KEYS[1])}
`

var rotateRefreshLua = redis.NewScript(rotateRefreshScript)

// Store is a Redis-backed session store with atomic refresh rotation.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewStore creates a session [Store]. prefix namespaces every key.
func NewStore(redis redis.UniversalClient, prefix string) *Store {
	return &Store{redis: redis, prefix: prefix, now: time.Now}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + "sess:" + sessionID
}

func (s *Store) accountPrefix() string {
	return s.prefix + "acct:"
}

func (s *Store) accountKey(accountID string) string {
	return s.accountPrefix() + accountID
}

// Save persists sess with the given TTL and indexes it under its account.
// An existing session with the same id is replaced.
//
//	Performance: one MULTI/EXEC round trip.
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	if sess == nil || sess.ID == "" || sess.AccountID == "" {
		return ErrCorrupt
	}
	sessionKey := s.key(sess.ID)
	accountKey := s.accountKey(sess.AccountID)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey)
		pipe.HSet(ctx, sessionKey, sess.fields()...)
		pipe.PExpire(ctx, sessionKey, ttl)
		pipe.SAdd(ctx, accountKey, sess.ID)
		pipe.PExpire(ctx, accountKey, ttl)
		return nil
	})
	if err != nil {
		return autherr.Unavailable("session save", err)
	}
	return nil
}

// Get returns the live session with id sessionID. Sessions past their stored
// expiry are deleted and reported as [ErrNotFound].
//
//	Performance: 1 Redis HGETALL.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	m, err := s.redis.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, autherr.Unavailable("session get", err)
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	sess, err := decode(sessionID, m)
	if err != nil {
		return nil, err
	}
	if sess.Expired(s.now()) {
		if _, err := s.Delete(ctx, sessionID); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return sess, nil
}

// Rotate atomically replaces the refresh digest of sessionID. presentedHash
// must equal the stored digest; on success the session's expiry slides to
// now+ttl and the updated session is returned.
//
// A digest mismatch deletes the session and returns a [*MismatchError]
// holding the session as it was. Concurrent calls with the same presented
// digest resolve to exactly one success.
//
//	Performance: 1 EVALSHA.
func (s *Store) Rotate(ctx context.Context, sessionID, accountID, presentedHash, nextHash string, ttl time.Duration) (*Session, error) {
	now := s.now()
	expires := now.Add(ttl)
	res, err := rotateRefreshLua.Run(ctx, s.redis,
		[]string{s.key(sessionID), s.accountKey(accountID)},
		sessionID,
		presentedHash,
		nextHash,
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.FormatInt(ttl.Milliseconds(), 10),
		strconv.FormatInt(expires.UnixMilli(), 10),
	).Slice()
	if err != nil {
		return nil, autherr.Unavailable("session rotate", err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("%w: empty rotate reply", ErrCorrupt)
	}
	status, ok := res[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: rotate status %T", ErrCorrupt, res[0])
	}

	switch status {
	case rotateStatusNotFound:
		return nil, ErrNotFound
	case rotateStatusExpired:
		return nil, ErrExpired
	case rotateStatusMismatch, rotateStatusReplayed:
		snapshot, _ := s.decodeReply(sessionID, res)
		return nil, &MismatchError{Session: snapshot, Replayed: status == rotateStatusReplayed}
	case rotateStatusRotated:
		return s.decodeReply(sessionID, res)
	default:
		return nil, fmt.Errorf("%w: rotate status %d", ErrCorrupt, status)
	}
}

func (s *Store) decodeReply(sessionID string, res []interface{}) (*Session, error) {
	if len(res) < 2 {
		return nil, ErrCorrupt
	}
	raw, ok := res[1].([]interface{})
	if !ok {
		return nil, ErrCorrupt
	}
	return decodePairs(sessionID, raw)
}

// Delete removes sessionID and its index entry. It reports whether a
// session existed; deleting a missing session is not an error.
//
//	Performance: 1 EVALSHA.
func (s *Store) Delete(ctx context.Context, sessionID string) (bool, error) {
	n, err := deleteSessionLua.Run(ctx, s.redis, []string{s.key(sessionID)}, sessionID, s.accountPrefix()).Int64()
	if err != nil {
		return false, autherr.Unavailable("session delete", err)
	}
	return n == 1, nil
}

// DeleteAllForAccount removes every session indexed under accountID and
// returns how many existed.
//
// The index is read before the delete, so a session created concurrently
// with this call may survive it. Logout-all callers accept that window.
func (s *Store) DeleteAllForAccount(ctx context.Context, accountID string) (int, error) {
	accountKey := s.accountKey(accountID)
	ids, err := s.redis.SMembers(ctx, accountKey).Result()
	if err != nil {
		return 0, autherr.Unavailable("session list", err)
	}

	var deleted *redis.IntCmd
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(ids) > 0 {
			keys := make([]string, len(ids))
			for i, id := range ids {
				keys[i] = s.key(id)
			}
			deleted = pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, accountKey)
		return nil
	})
	if err != nil {
		return 0, autherr.Unavailable("session delete all", err)
	}
	if deleted == nil {
		return 0, nil
	}
	return int(deleted.Val()), nil
}

// ListForAccount returns the live sessions of accountID, newest first.
// Index entries whose session has expired are pruned.
//
//	Performance: 1 SMEMBERS plus one pipelined HGETALL per session.
func (s *Store) ListForAccount(ctx context.Context, accountID string) ([]*Session, error) {
	accountKey := s.accountKey(accountID)
	ids, err := s.redis.SMembers(ctx, accountKey).Result()
	if err != nil {
		return nil, autherr.Unavailable("session list", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, autherr.Unavailable("session list", err)
	}

	now := s.now()
	out := make([]*Session, 0, len(ids))
	var stale []interface{}
	for i, cmd := range cmds {
		m := cmd.Val()
		if len(m) == 0 {
			stale = append(stale, ids[i])
			continue
		}
		sess, err := decode(ids[i], m)
		if err != nil || sess.Expired(now) || sess.AccountID != accountID {
			stale = append(stale, ids[i])
			continue
		}
		out = append(out, sess)
	}
	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, accountKey, stale...).Err(); err != nil {
			return nil, autherr.Unavailable("session prune", err)
		}
	}

	sortNewestFirst(out)
	return out, nil
}

// Count returns the number of indexed sessions for accountID. Expired
// sessions not yet pruned are included.
func (s *Store) Count(ctx context.Context, accountID string) (int, error) {
	n, err := s.redis.SCard(ctx, s.accountKey(accountID)).Result()
	if err != nil {
		return 0, autherr.Unavailable("session count", err)
	}
	return int(n), nil
}

func sortNewestFirst(list []*Session) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].RenewedAt.Equal(list[j].RenewedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].RenewedAt.After(list[j].RenewedAt)
	})
}

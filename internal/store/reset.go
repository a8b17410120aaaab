package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeResetLua moves an authorization from active to used.
// KEYS[1] = authorization key
// ARGV[1] = request fingerprint
// Returns {userID, replay} where replay is 1 when the same request was
// already applied.
var consumeResetLua = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then
  return {err='not_found'}
end
local state, uid, fp = string.match(v, '^(%a+):(%d+):?(.*)$')
if state == 'active' then
  local ttl = redis.call('PTTL', KEYS[1])
  if ttl <= 0 then
    ttl = 1000
  end
  redis.call('SET', KEYS[1], 'used:' .. uid .. ':' .. ARGV[1], 'PX', ttl)
  return {tonumber(uid), 0}
end
if state == 'used' and fp == ARGV[1] then
  return {tonumber(uid), 1}
end
return {err='already_used'}
`)

// releaseResetLua puts a used authorization back to active, keeping its TTL.
var releaseResetLua = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then
  return 0
end
local uid = string.match(v, '^used:(%d+):')
if not uid then
  return 0
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl <= 0 then
  return 0
end
redis.call('SET', KEYS[1], 'active:' .. uid, 'PX', ttl)
return 1
`)

// ResetStore holds short-lived password reset authorizations keyed by the
// hash of the token handed to the client.
type ResetStore struct{ base }

// NewResetStore returns a ResetStore whose keys start with prefix.
func NewResetStore(rdb redis.UniversalClient, prefix string, timeout time.Duration) *ResetStore {
	return &ResetStore{base{rdb: rdb, prefix: prefix, timeout: timeout}}
}

// Grant stores an active authorization for userID.
func (s *ResetStore) Grant(ctx context.Context, tokenHash string, userID uint64, ttl time.Duration) error {
	const op = "store.ResetStore.Grant"

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	val := "active:" + strconv.FormatUint(userID, 10)
	if err := s.rdb.Set(ctx, s.key(tokenHash), val, time.Duration(millis(ttl))*time.Millisecond).Err(); err != nil {
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	return nil
}

// Consume marks the authorization used by the request identified by
// fingerprint. Repeating the same request reports replay=true; any other
// request against a used authorization gets ErrAlreadyUsed.
func (s *ResetStore) Consume(ctx context.Context, tokenHash, fingerprint string) (userID uint64, replay bool, err error) {
	const op = "store.ResetStore.Consume"

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := consumeResetLua.Run(ctx, s.rdb, []string{s.key(tokenHash)}, fingerprint).Int64Slice()
	if err != nil {
		switch err.Error() {
		case "not_found":
			return 0, false, fmt.Errorf("%s: %w", op, ErrNotFound)
		case "already_used":
			return 0, false, fmt.Errorf("%s: %w", op, ErrAlreadyUsed)
		}
		return 0, false, fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("%s: %w", op, errors.New("unexpected script reply"))
	}
	return uint64(res[0]), res[1] == 1, nil
}

// Release reverts a used authorization to active so the holder can retry
// after a failed password update.
func (s *ResetStore) Release(ctx context.Context, tokenHash string) error {
	const op = "store.ResetStore.Release"

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := releaseResetLua.Run(ctx, s.rdb, []string{s.key(tokenHash)}).Err(); err != nil {
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	return nil
}

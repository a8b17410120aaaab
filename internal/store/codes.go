package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/auth-session-service/internal/model"
)

// verifyCodeLua checks a code hash against the stored record.
// KEYS[1] = record key
// ARGV[1] = submitted code hash
// ARGV[2] = max attempts
// ARGV[3] = now (unix ms)
//
// A mismatch increments attempts. Once attempts reach the cap the record is
// kept until its TTL but every further check answers exceeded_attempts.
// Success and expiry delete the record.
var verifyCodeLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 'not_found'
end
local expires = tonumber(redis.call('HGET', KEYS[1], 'expires_at') or '0')
local attempts = tonumber(redis.call('HGET', KEYS[1], 'attempts') or '0')
local maxAttempts = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

if now > expires then
  redis.call('DEL', KEYS[1])
  return 'expired'
end
if attempts >= maxAttempts then
  return 'exceeded_attempts'
end
if redis.call('HGET', KEYS[1], 'code_hash') ~= ARGV[1] then
  redis.call('HINCRBY', KEYS[1], 'attempts', 1)
  return 'mismatch'
end
redis.call('DEL', KEYS[1])
return 'ok'
`)

// CodeStore keeps at most one verification code per (purpose, user).
type CodeStore struct{ base }

// NewCodeStore returns a CodeStore whose keys start with prefix.
func NewCodeStore(rdb redis.UniversalClient, prefix string, timeout time.Duration) *CodeStore {
	return &CodeStore{base{rdb: rdb, prefix: prefix, timeout: timeout}}
}

func (s *CodeStore) recordKey(purpose model.CodePurpose, userID uint64) string {
	return s.key(string(purpose), strconv.FormatUint(userID, 10))
}

// Save replaces any existing record for the same purpose and user. The
// record expires with rec.ExpiresAt.
func (s *CodeStore) Save(ctx context.Context, rec model.VerificationCode) error {
	const op = "store.CodeStore.Save"

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	key := s.recordKey(rec.Purpose, rec.UserID)
	ttl := rec.ExpiresAt.Sub(rec.CreatedAt)
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key,
			"code_hash", rec.CodeHash,
			"attempts", rec.AttemptCount,
			"created_at", rec.CreatedAt.UnixMilli(),
			"expires_at", rec.ExpiresAt.UnixMilli(),
			"last_sent_at", rec.LastSentAt.UnixMilli(),
		)
		p.PExpire(ctx, key, time.Duration(millis(ttl))*time.Millisecond)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	return nil
}

// Get loads the active record, or ErrNotFound.
func (s *CodeStore) Get(ctx context.Context, purpose model.CodePurpose, userID uint64) (*model.VerificationCode, error) {
	const op = "store.CodeStore.Get"

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	m, err := s.rdb.HGetAll(ctx, s.recordKey(purpose, userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	attempts, _ := strconv.Atoi(m["attempts"])
	return &model.VerificationCode{
		UserID:       userID,
		Purpose:      purpose,
		CodeHash:     m["code_hash"],
		CreatedAt:    parseMillis(m["created_at"]),
		ExpiresAt:    parseMillis(m["expires_at"]),
		LastSentAt:   parseMillis(m["last_sent_at"]),
		AttemptCount: attempts,
	}, nil
}

// Verify checks codeHash atomically and reports the outcome.
func (s *CodeStore) Verify(ctx context.Context, purpose model.CodePurpose, userID uint64, codeHash string, maxAttempts int, now time.Time) (model.VerifyOutcome, error) {
	const op = "store.CodeStore.Verify"

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := verifyCodeLua.Run(ctx, s.rdb,
		[]string{s.recordKey(purpose, userID)},
		codeHash, maxAttempts, now.UnixMilli(),
	).Text()
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}

	switch out := model.VerifyOutcome(res); out {
	case model.VerifyOK, model.VerifyExpired, model.VerifyMismatch,
		model.VerifyExceededAttempts, model.VerifyNotFound:
		return out, nil
	default:
		return "", fmt.Errorf("%s: %w", op, errors.New("unexpected script reply "+res))
	}
}

// Delete drops the record for purpose and user.
func (s *CodeStore) Delete(ctx context.Context, purpose model.CodePurpose, userID uint64) error {
	const op = "store.CodeStore.Delete"

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.rdb.Del(ctx, s.recordKey(purpose, userID)).Err(); err != nil {
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	return nil
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

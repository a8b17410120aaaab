package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/auth-session-service/internal/model"
)

const refreshColumns = `t.id, t.user_id, t.token_hash, t.replaces_id, t.issued_at, t.expires_at, t.revoked_at,
	EXISTS(SELECT 1 FROM refresh_tokens s WHERE s.replaces_id = t.id)`

// TokenRepo persists refresh token chains. Only SHA-256 hashes of raw
// tokens are stored.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// Create inserts the first record of a chain.
func (r *TokenRepo) Create(ctx context.Context, rec *model.RefreshToken) error {
	const op = "repository.TokenRepo.Create"

	if err := insertRefresh(ctx, r.DB, rec); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetByHash looks a record up by token hash, including revoked ones.
func (r *TokenRepo) GetByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	const op = "repository.TokenRepo.GetByHash"

	var (
		rec        model.RefreshToken
		replacesID sql.NullString
		revokedAt  sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+refreshColumns+" FROM refresh_tokens t WHERE t.token_hash=? LIMIT 1", tokenHash).
		Scan(&rec.ID, &rec.UserID, &rec.TokenHash, &replacesID, &rec.IssuedAt, &rec.ExpiresAt, &revokedAt, &rec.HasSuccessor)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if replacesID.Valid {
		rec.ReplacesID = &replacesID.String
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		rec.RevokedAt = &t
	}
	return &rec, nil
}

// Rotate revokes the active record oldID and inserts next as its successor
// in one transaction. The conditional UPDATE serialises concurrent rotations
// on the row lock: the loser matches no row and gets ErrNotActive.
func (r *TokenRepo) Rotate(ctx context.Context, oldID string, next *model.RefreshToken, now time.Time) error {
	const op = "repository.TokenRepo.Rotate"

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=? WHERE id=? AND revoked_at IS NULL", now, oldID)
	if err != nil {
		return fmt.Errorf("%s: revoke: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotActive)
	}

	next.ReplacesID = &oldID
	if err := insertRefresh(ctx, tx, next); err != nil {
		return fmt.Errorf("%s: insert: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

// Revoke marks one record revoked. It reports whether the record was active.
func (r *TokenRepo) Revoke(ctx context.Context, id string, now time.Time) (bool, error) {
	const op = "repository.TokenRepo.Revoke"

	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=? WHERE id=? AND revoked_at IS NULL", now, id)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n > 0, nil
}

// RevokeAllForUser revokes every active record of the user and returns how
// many were affected.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64, now time.Time) (int64, error) {
	const op = "repository.TokenRepo.RevokeAllForUser"

	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=? WHERE user_id=? AND revoked_at IS NULL", now, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// DeleteExpired removes records that expired before cutoff.
func (r *TokenRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	const op = "repository.TokenRepo.DeleteExpired"

	res, err := r.DB.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE expires_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRefresh(ctx context.Context, db execer, rec *model.RefreshToken) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO refresh_tokens (id, user_id, token_hash, replaces_id, issued_at, expires_at) VALUES (?,?,?,?,?,?)",
		rec.ID, rec.UserID, rec.TokenHash, rec.ReplacesID, rec.IssuedAt, rec.ExpiresAt)
	return err
}

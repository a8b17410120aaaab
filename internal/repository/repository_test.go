package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/auth-session-service/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

func TestUserCreate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (username, email, password_hash, role, is_verified)")).
		WithArgs("alice", "alice@example.com", "hash", "USER", false).
		WillReturnResult(sqlmock.NewResult(7, 1))

	id, err := repo.Create(context.Background(), &model.User{
		Username: "alice", Email: "  Alice@Example.com ", PasswordHash: "hash", Role: model.RoleUser,
	})
	require.NoError(t, err)
	require.EqualValues(t, 7, id)
}

func TestUserCreateDuplicate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	_, err := repo.Create(context.Background(), &model.User{Username: "a", Email: "a@b.c", Role: model.RoleUser})
	require.ErrorIs(t, err, ErrEmailExists)
}

func TestUserGetByEmail(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email=?")).
		WithArgs("bob@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "password_hash", "role", "is_verified", "created_at", "updated_at"}).
			AddRow(3, "bob", "bob@example.com", "h", "ADMIN", true, now, now))

	u, err := repo.GetByEmail(context.Background(), "BOB@example.com")
	require.NoError(t, err)
	require.EqualValues(t, 3, u.ID)
	require.Equal(t, model.RoleAdmin, u.Role)
	require.True(t, u.IsVerified)
}

func TestUserGetByIDNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	mock.ExpectQuery("FROM users WHERE id=").WithArgs(uint64(9)).WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 9)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUserMarkVerifiedMissing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	mock.ExpectExec("UPDATE users SET is_verified").WithArgs(uint64(5)).WillReturnResult(sqlmock.NewResult(0, 0))

	require.ErrorIs(t, repo.MarkVerified(context.Background(), 5), ErrNotFound)
}

func TestTokenGetByHash(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTokenRepo(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM refresh_tokens t WHERE t.token_hash=?")).
		WithArgs("hash").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token_hash", "replaces_id", "issued_at", "expires_at", "revoked_at", "has_successor"}).
			AddRow("b", 1, "hash", "a", now, now.Add(time.Hour), now, 1))

	rec, err := repo.GetByHash(context.Background(), "hash")
	require.NoError(t, err)
	require.Equal(t, "a", *rec.ReplacesID)
	require.NotNil(t, rec.RevokedAt)
	require.True(t, rec.HasSuccessor)
	require.Equal(t, model.RefreshRotated, rec.State())
}

func TestTokenGetByHashNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTokenRepo(db)

	mock.ExpectQuery("FROM refresh_tokens").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByHash(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTokenRotate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTokenRepo(db)
	now := time.Now().UTC()
	next := &model.RefreshToken{ID: "new", UserID: 1, TokenHash: "h2", IssuedAt: now, ExpiresAt: now.Add(time.Hour)}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked_at=? WHERE id=? AND revoked_at IS NULL")).
		WithArgs(now, "old").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO refresh_tokens").
		WithArgs("new", uint64(1), "h2", "old", now, next.ExpiresAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Rotate(context.Background(), "old", next, now))
	require.Equal(t, "old", *next.ReplacesID)
}

func TestTokenRotateLoser(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTokenRepo(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE refresh_tokens SET revoked_at").
		WithArgs(now, "old").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Rotate(context.Background(), "old", &model.RefreshToken{ID: "new"}, now)
	require.ErrorIs(t, err, ErrNotActive)
}

func TestTokenRevokeIdempotent(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTokenRepo(db)
	now := time.Now().UTC()

	mock.ExpectExec("UPDATE refresh_tokens SET revoked_at").WithArgs(now, "id").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE refresh_tokens SET revoked_at").WithArgs(now, "id").WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := repo.Revoke(context.Background(), "id", now)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = repo.Revoke(context.Background(), "id", now)
	require.NoError(t, err)
	require.False(t, changed)
}

func TestTokenRevokeAllForUser(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTokenRepo(db)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("WHERE user_id=? AND revoked_at IS NULL")).
		WithArgs(now, uint64(4)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.RevokeAllForUser(context.Background(), 4, now)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
}

package model

import "time"

// CodePurpose scopes a verification code to one flow.
type CodePurpose string

const (
	PurposeAccountVerify CodePurpose = "ACCOUNT_VERIFY"
	PurposePasswordReset CodePurpose = "PASSWORD_RESET"
)

// VerificationCode is the record kept in the counter store. The plain code
// is never stored; CodeHash holds its SHA-256 digest.
type VerificationCode struct {
	UserID       uint64
	Purpose      CodePurpose
	CodeHash     string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	LastSentAt   time.Time
	AttemptCount int
}

// VerifyOutcome enumerates the results of a code check.
type VerifyOutcome string

const (
	VerifyOK               VerifyOutcome = "ok"
	VerifyExpired          VerifyOutcome = "expired"
	VerifyMismatch         VerifyOutcome = "mismatch"
	VerifyExceededAttempts VerifyOutcome = "exceeded_attempts"
	VerifyNotFound         VerifyOutcome = "not_found"
)

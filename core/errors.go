package core

import "errors"

// ErrNotFound is returned when a requested object does not exist in storage.
var ErrNotFound = errors.New("not found")

// Authorization errors.
var (
	ErrNotOwner        = errors.New("caller is not the pool owner")
	ErrNotSessionOwner = errors.New("caller is not the session owner")
)

// State errors.
var (
	ErrNoSuchSession = errors.New("no such session")
	ErrNotActive     = errors.New("session is not active")
	ErrPoolPaused    = errors.New("pool is paused")
)

// Validation errors.
var (
	ErrWrongLevel   = errors.New("wrong level")
	ErrInvalidProof = errors.New("invalid completion proof")
	ErrExpired      = errors.New("level time window expired")
	ErrZeroAmount   = errors.New("amount must be > 0")
	ErrBadNonce     = errors.New("invalid nonce")
)

// Integrity errors.
var ErrReplayDetected = errors.New("completion fingerprint already used")

// Resource errors.
var (
	ErrNothingToClaim      = errors.New("nothing to claim")
	ErrInsufficientBalance = errors.New("insufficient pool balance")
	ErrPoolUnderfunded     = errors.New("pool underfunded for claim")
	ErrOverflow            = errors.New("amount overflows balance")
)

// ErrorKind buckets operation errors for clients that map them to messages.
type ErrorKind string

const (
	KindAuthorization ErrorKind = "authorization"
	KindState         ErrorKind = "state"
	KindValidation    ErrorKind = "validation"
	KindIntegrity     ErrorKind = "integrity"
	KindResource      ErrorKind = "resource"
	KindInternal      ErrorKind = "internal"
)

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrNotOwner, KindAuthorization},
	{ErrNotSessionOwner, KindAuthorization},
	{ErrNoSuchSession, KindState},
	{ErrNotActive, KindState},
	{ErrPoolPaused, KindState},
	{ErrWrongLevel, KindValidation},
	{ErrInvalidProof, KindValidation},
	{ErrExpired, KindValidation},
	{ErrZeroAmount, KindValidation},
	{ErrBadNonce, KindValidation},
	{ErrReplayDetected, KindIntegrity},
	{ErrNothingToClaim, KindResource},
	{ErrInsufficientBalance, KindResource},
	{ErrPoolUnderfunded, KindResource},
	{ErrOverflow, KindResource},
}

// Kind classifies err. Anything not in the taxonomy is KindInternal.
func Kind(err error) ErrorKind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// Retryable reports whether the caller may succeed by resubmitting later:
// a fresh attempt at an expired level, or a claim once the pool is refunded.
func Retryable(err error) bool {
	return errors.Is(err, ErrExpired) || errors.Is(err, ErrPoolUnderfunded)
}

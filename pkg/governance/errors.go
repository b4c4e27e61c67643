package governance

import (
	"errors"
	"fmt"
)

// Kind is a stable, machine-readable error category. Every precondition
// failure surfaces one of these alongside a human-readable reason.
type Kind string

const (
	KindPermissionDenied  Kind = "permission_denied"
	KindNotFound          Kind = "not_found"
	KindInvalidState      Kind = "invalid_state"
	KindConflict          Kind = "conflict"
	KindInvalidArgument   Kind = "invalid_argument"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindInternal          Kind = "internal"
)

// Error is a rejected operation carrying its kind and reason.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string {
	return e.Reason
}

// Is makes sentinel comparison work across errors carrying the same kind
// and reason, so wrapped store errors still match.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind && e.Reason == other.Reason
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// KindOf extracts the error kind, defaulting to KindInternal for
// unexpected (e.g. storage-layer) failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

var (
	// ErrProposalNotFound indicates the referenced proposal does not exist.
	ErrProposalNotFound = &Error{Kind: KindNotFound, Reason: "proposal not found"}

	// ErrUserNotFound indicates the referenced user is unknown to the
	// identity provider.
	ErrUserNotFound = &Error{Kind: KindNotFound, Reason: "user not found"}

	// ErrDelegationNotFound indicates the caller has no active delegation.
	ErrDelegationNotFound = &Error{Kind: KindNotFound, Reason: "no active delegation"}

	// ErrActiveDelegationExists indicates the user already holds an active
	// delegation and must revoke it before delegating again.
	ErrActiveDelegationExists = &Error{Kind: KindConflict, Reason: "active delegation exists, revoke it first"}

	// ErrAlreadyVoted indicates a duplicate vote on the same proposal.
	ErrAlreadyVoted = &Error{Kind: KindConflict, Reason: "already voted on this proposal"}

	// ErrVotingClosed indicates the voting window has ended.
	ErrVotingClosed = &Error{Kind: KindInvalidState, Reason: "voting period ended"}

	// ErrInsufficientBalance indicates the voter cannot afford the
	// quadratic vote cost.
	ErrInsufficientBalance = &Error{Kind: KindInsufficientFunds, Reason: "insufficient token balance"}

	// ErrInsufficientTreasury indicates an allocation would drive the
	// treasury's available balance negative.
	ErrInsufficientTreasury = &Error{Kind: KindInsufficientFunds, Reason: "insufficient treasury funds"}

	// ErrRevisionMismatch is returned by stores when an update loses a
	// revision check against a concurrent writer.
	ErrRevisionMismatch = &Error{Kind: KindConflict, Reason: "proposal was modified concurrently"}
)

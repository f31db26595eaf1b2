package apperror

import (
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
)

// Sentinel errors for the request workflow and integrity subsystems. Callers
// classify with errors.Is; repos and services wrap these with context via
// fmt.Errorf("%w: ...").
var (
	// ErrValidation covers malformed or untrusted photo URLs and missing
	// required evidence. Always surfaced, blocks the operation.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound covers a missing message, conversation or post. Surfaced
	// and blocking except where ErrAlreadyGone tolerance applies.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState covers operations attempted against a request that is
	// not in an eligible status.
	ErrInvalidState = errors.New("invalid state")

	// ErrAlreadyGone covers not-found/permission-denied hit while touching a
	// conversation that may have been concurrently deleted. Swallowed on
	// read-marking and cleanup paths: the absence already satisfies the
	// caller's intent.
	ErrAlreadyGone = errors.New("already gone")
)

// IsGone reports whether err indicates the target document no longer exists
// or is no longer reachable. Permission-denied is deliberately treated as a
// deletion signal here, mirroring how the rest of the system distinguishes a
// torn-down conversation from a live one; revisit if the access-control model
// ever grants partial visibility.
func IsGone(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAlreadyGone) || errors.Is(err, ErrNotFound) {
		return true
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return true
	}
	return isPermissionDenied(err)
}

func isPermissionDenied(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		// 13 = Unauthorized in the server's error code table
		if cmdErr.Code == 13 {
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "permission denied") ||
		strings.Contains(strings.ToLower(err.Error()), "unauthorized")
}

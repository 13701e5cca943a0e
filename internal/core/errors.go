// Package core holds the contracts between the presence components.
// Implementations live in app and adapters.
package core

import "errors"

var (
	// ErrPermissionDenied: the caller is not a participant of the
	// underlying document. Surfaced to the caller only, never broadcast.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrRoomNotFound: the room key is absent from the shared store.
	ErrRoomNotFound = errors.New("room not found")

	// ErrParticipantNotFound: the room exists but holds no record for the
	// user. Coordinators treat this as a benign race, not a failure.
	ErrParticipantNotFound = errors.New("participant not found")

	// ErrStoreUnavailable: transient transport failure talking to the
	// shared store. Retried a bounded number of times.
	ErrStoreUnavailable = errors.New("shared store unavailable")

	// ErrConflict: an optimistic mutation kept losing the race after all
	// retries. Callers may surface it as transient.
	ErrConflict = errors.New("room mutation conflict")
)

package engine

import (
	"errors"
	"fmt"
)

// ErrMalformed is the class of wire entities rejected before any store
// interaction. ApplyBatch logs and skips these; infrastructure failures
// abort the batch instead.
var ErrMalformed = errors.New("malformed wire entity")

var (
	// ErrMissingRemoteID rejects an entity without an identity.
	ErrMissingRemoteID = fmt.Errorf("%w: missing remote id", ErrMalformed)

	// ErrMissingDomain rejects a federated-source entity without an
	// instance domain; its remote id is only unique within an instance,
	// so the key cannot identify anything.
	ErrMissingDomain = fmt.Errorf("%w: missing instance domain", ErrMalformed)

	// ErrMissingAuthor rejects a post whose author could not be
	// resolved from the payload. The author edge is required.
	ErrMissingAuthor = fmt.Errorf("%w: post has no resolvable author", ErrMalformed)

	// ErrMissingActor rejects a notification whose actor could not be
	// resolved from the payload. The actor edge is required.
	ErrMissingActor = fmt.Errorf("%w: notification has no resolvable actor", ErrMalformed)

	// ErrMissingOwner rejects a list or saved search without a
	// resolvable owning account.
	ErrMissingOwner = fmt.Errorf("%w: missing owning account", ErrMalformed)
)

// ErrMissingFetchTime rejects a call without a fetch timestamp; the
// merge gate cannot run without one.
var ErrMissingFetchTime = errors.New("fetch timestamp is required")

// errDuplicatePositions signals that poll option reconciliation left
// duplicate positions behind. That is a logic bug, not network
// variance, so it surfaces loudly instead of being swallowed.
var errDuplicatePositions = errors.New("duplicate poll option positions after repair")

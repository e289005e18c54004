// Package session resolves opaque login-session tokens into authenticated
// identities for the join handshake. The relay consumes only the Validator
// interface; the concrete TokenValidator lives here too but could be swapped
// for any other session backend.
package session

import (
	"context"

	"chatrelay/internal/types"
)

// Validator is the session store as seen by the join handshake.
type Validator interface {
	// Resolve maps a session token to a verified identity. The boolean is
	// false when the token is absent, expired or malformed; the error is
	// reserved for faults in the backing store.
	Resolve(ctx context.Context, token string) (types.Identity, bool, error)

	// ResolveClaim re-verifies a client-supplied user id against the user
	// store. The claim is trusted only if the lookup succeeds and returns a
	// real identity.
	ResolveClaim(ctx context.Context, userID string) (types.Identity, bool, error)

	// Rebind persists a freshly verified identity back into the session so
	// later handshakes on the same session skip the claim lookup.
	Rebind(ctx context.Context, token string, identity types.Identity) error
}

// UserLookup is the slice of the user store the validator needs.
type UserLookup interface {
	LookupIdentity(ctx context.Context, userID string) (types.Identity, bool, error)
}

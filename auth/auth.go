// Package auth defines the credential-validation seam HELLO/LOGON call
// into (§6). It is deliberately thin: the protocol layer only needs a
// verdict (AuthContext or a FAILURE-worthy error), never the scheme's own
// bookkeeping, which auth/staticvalidator keeps to itself.
package auth

import (
	"context"

	"github.com/bolt-proto/boltd/backend"
)

// AuthContext is what a successful LOGON leaves behind: the identity the
// rest of the session (and the backend, via OpenSession) should attribute
// queries to.
type AuthContext struct {
	Principal string
	Scheme    string
	// SessionToken, when non-empty, is a bearer value the validator minted
	// for this login; present so a future "reauth" style flow could reuse
	// it without a fresh challenge, though no current message asks for it.
	SessionToken string
}

// Validator checks credentials presented by LOGON (5.1+, which splits auth
// into its own message per §4.3); HELLO's extra is not validated.
// Implementations must be safe for concurrent use across connections.
type Validator interface {
	Validate(ctx context.Context, creds backend.AuthCredentials) (AuthContext, error)
}

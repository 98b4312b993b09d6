// Package staticvalidator is the reference auth.Validator shipped with the
// module (§11): an in-memory username/password table for the "basic"
// scheme plus unconditional acceptance of "none", which is enough to
// exercise the whole HELLO/LOGON → AuthContext path without depending on
// any external identity provider. Grounded on the teacher's auth_tokens.go
// for the scheme-tagged credential shape and on the session-token idea in
// original_source/src/auth.rs, reworked here to mint a real opaque token
// via google/uuid rather than echoing the password back.
package staticvalidator

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/bolt-proto/boltd/auth"
	"github.com/bolt-proto/boltd/backend"
	"github.com/bolt-proto/boltd/bolterr"
)

// Validator holds a fixed table of principal → password. It is safe for
// concurrent use; the table itself is immutable after construction, the
// mutex only guards the session-token ledger (token → principal), which
// issue records and nothing in this package reads back.
type Validator struct {
	users map[string]string

	mu     sync.Mutex
	tokens map[string]string // token -> principal, for diagnostics only
}

// New builds a Validator from a principal→password table. An empty table
// still accepts the "none" auth scheme, matching Bolt's allowance for
// server deployments that disable authentication outright.
func New(users map[string]string) *Validator {
	u := make(map[string]string, len(users))
	for k, v := range users {
		u[k] = v
	}
	return &Validator{users: u, tokens: make(map[string]string)}
}

func (v *Validator) Validate(ctx context.Context, creds backend.AuthCredentials) (auth.AuthContext, error) {
	switch creds.Scheme {
	case "none":
		return v.issue("anonymous", "none")
	case "basic":
		want, ok := v.users[creds.Principal]
		if !ok || want != creds.Credentials {
			return auth.AuthContext{}, bolterr.ErrUnauthorized
		}
		return v.issue(creds.Principal, "basic")
	default:
		return auth.AuthContext{}, bolterr.New(bolterr.KindAuth,
			"Neo.ClientError.Security.Unauthorized", "unsupported auth scheme: "+creds.Scheme)
	}
}

func (v *Validator) issue(principal, scheme string) (auth.AuthContext, error) {
	token := uuid.NewString()
	v.mu.Lock()
	v.tokens[token] = principal
	v.mu.Unlock()
	return auth.AuthContext{Principal: principal, Scheme: scheme, SessionToken: token}, nil
}

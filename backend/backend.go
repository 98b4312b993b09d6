// Package backend defines the seam between the Bolt protocol machinery and
// whatever actually executes queries (§6 of the specification). A real
// deployment swaps in a graph engine; this module ships backend/sqlitegraph
// as a reference implementation, grounded on original_source/src/backend.rs
// but reshaped from that reference's fully-materialized result buffering
// into a true pull-based iterator, since §6 explicitly requires PULL/DISCARD
// quotas to bound server-side memory rather than a single eager fetch.
package backend

import (
	"context"
)

// AccessMode is BEGIN's requested transaction mode.
type AccessMode int

const (
	AccessModeWrite AccessMode = iota
	AccessModeRead
)

// AuthCredentials is the scheme-tagged payload carried by LOGON.
type AuthCredentials struct {
	Scheme      string
	Principal   string
	Credentials string
	Realm       string
	Extra       map[string]any
}

// SessionConfig carries the connection-scoped metadata HELLO supplies: the
// client's declared user agent and routing context. It is distinct from
// auth.AuthContext, which is the backend's verdict on AuthCredentials.
// The connection layer in server/ passes it empty: HELLO's extra is not
// copied into it.
type SessionConfig struct {
	UserAgent     string
	RoutingExtras map[string]any
}

// TransactionConfig carries the per-transaction metadata BEGIN (or an
// auto-commit RUN) supplies.
type TransactionConfig struct {
	Mode       AccessMode
	Database   string
	Bookmarks  []string
	Metadata   map[string]any
	TimeoutSec int64
}

// SessionHandle identifies a backend-side session created at LOGON and
// torn down at GOODBYE or connection close.
type SessionHandle interface {
	// Close releases any backend resources associated with the session.
	// Called at most once, from session.Teardown (the connection's shutdown
	// path or the idle reaper, whichever runs first).
	Close(ctx context.Context) error
}

// TransactionHandle identifies one explicit (BEGIN…COMMIT/ROLLBACK) or
// implicit (auto-commit RUN) transaction.
type TransactionHandle interface {
	Commit(ctx context.Context) (bookmark string, err error)
	Rollback(ctx context.Context) error
}

// ResultStream is a pull-based iterator over one query's rows, replacing
// original_source's eagerly-materialized Vec<Record> with the incremental
// contract §6 requires: a PULL/DISCARD with quota n calls Next at most n+1
// times. The extra call lets the connection report has_more exactly; its
// row is held back for the next PULL/DISCARD on that stream. So the
// backend produces at most one row beyond what the client has asked for.
type ResultStream interface {
	// Fields returns the result's column names, known as soon as the query
	// plan is ready — before the first row is produced.
	Fields() []string

	// Next produces the next row, or ok=false once the stream is exhausted.
	// It must not be called again after ok=false.
	Next(ctx context.Context) (row []any, ok bool, err error)

	// Discard drops all remaining rows without producing them, used for
	// abandoning a stream on RESET. A DISCARD message does not call it; it
	// drains its quota through Next without sending the rows.
	Discard(ctx context.Context) error

	// Summary returns the run summary (counters, timings, plan info). It is
	// called after every PULL/DISCARD batch, including batches that leave
	// rows behind (has_more=true).
	Summary() map[string]any
}

// BoltBackend is the interface a query engine implements to sit behind the
// Bolt protocol machinery. One BoltBackend instance is shared across all
// connections; it must be safe for concurrent use.
type BoltBackend interface {
	// OpenSession is called once LOGON's credentials pass the
	// auth.Validator and returns a handle scoped to the connection.
	OpenSession(ctx context.Context, creds AuthCredentials, cfg SessionConfig) (SessionHandle, error)

	// Begin starts an explicit transaction.
	Begin(ctx context.Context, sess SessionHandle, cfg TransactionConfig) (TransactionHandle, error)

	// Run executes a query, either inside tx (explicit transaction) or, when
	// tx is nil, as an auto-commit statement that the backend commits or
	// rolls back itself before Run returns.
	Run(ctx context.Context, sess SessionHandle, tx TransactionHandle, query string, params map[string]any) (ResultStream, error)
}

// RoutingBackend is a capability a BoltBackend may additionally implement
// to answer ROUTE. It is kept separate from BoltBackend itself, per §6
// ("route(...) (optional; absent ⇒ feature rejected)"), so a backend with
// no cluster topology to route across — such as sqlitegraph — is not
// forced to fabricate one; the connection layer type-asserts for this
// interface and answers ROUTE with FAILURE when it is absent.
type RoutingBackend interface {
	Route(ctx context.Context, sess SessionHandle, routingCtx map[string]any, bookmarks []string, database string) (routingTable map[string]any, err error)
}

// ElementIDFor is a convenience a backend may use when constructing
// boltvalue.Node/Relationship values: it is not part of the interface
// contract, just a shared formatting helper so multiple backends agree on
// one element-id shape if they want to.
func ElementIDFor(namespace, rowID string) string {
	return namespace + ":" + rowID
}

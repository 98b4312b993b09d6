// Package sqlitegraph is the reference backend.BoltBackend shipped with
// the module (§11): a small, fixed-vocabulary Cypher-lite engine over
// modernc.org/sqlite, enough to drive the whole protocol surface (HELLO
// through COMMIT, multi-statement transactions, PULL in batches) without
// requiring an external graph database. It understands exactly three
// statement shapes:
//
//	CREATE (n:Label {k: v, ...}) RETURN n
//	MATCH (n) RETURN n
//	RETURN <literal-or-parameter-expression> [AS alias]
//
// Anything else is a Neo.ClientError.Statement.SyntaxError. This is
// intentionally not a real Cypher planner; it exists to give every layer
// above it — session state machine, result streaming, transactions,
// bookmarks — something real to execute against, grounded on
// original_source/src/backend.rs's in-memory node store but persisted to
// disk via database/sql so restarts and bookmarks have somewhere to live.
package sqlitegraph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	_ "modernc.org/sqlite"

	"github.com/bolt-proto/boltd/backend"
	"github.com/bolt-proto/boltd/bolterr"
	"github.com/bolt-proto/boltd/boltvalue"
)

// Backend is a backend.BoltBackend over a single SQLite file (or
// "file::memory:?cache=shared" for tests). One Backend may serve many
// concurrent sessions; sqlite's own locking serializes writers.
type Backend struct {
	db              *sql.DB
	bookmarkCounter int64
}

// Open creates or attaches to a SQLite database at path and ensures the
// node table exists.
func Open(ctx context.Context, path string) (*Backend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitegraph: open: %w", err)
	}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS nodes (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			labels     TEXT NOT NULL,
			properties TEXT NOT NULL
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitegraph: migrate: %w", err)
	}
	return &Backend{db: db}, nil
}

func (b *Backend) Close() error { return b.db.Close() }

type sessionHandle struct {
	principal string
}

func (sessionHandle) Close(context.Context) error { return nil }

func (b *Backend) OpenSession(ctx context.Context, creds backend.AuthCredentials, cfg backend.SessionConfig) (backend.SessionHandle, error) {
	return &sessionHandle{principal: creds.Principal}, nil
}

type txHandle struct {
	b    *Backend
	tx   *sql.Tx
	mode backend.AccessMode
}

func (b *Backend) Begin(ctx context.Context, sess backend.SessionHandle, cfg backend.TransactionConfig) (backend.TransactionHandle, error) {
	sqlTx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, bolterr.Wrap(bolterr.KindBackend, "Neo.DatabaseError.General.UnknownError", "failed to begin transaction", err)
	}
	return &txHandle{b: b, tx: sqlTx, mode: cfg.Mode}, nil
}

func (t *txHandle) Commit(ctx context.Context) (string, error) {
	if err := t.tx.Commit(); err != nil {
		return "", bolterr.Wrap(bolterr.KindBackend, "Neo.DatabaseError.General.UnknownError", "commit failed", err)
	}
	n := atomic.AddInt64(&t.b.bookmarkCounter, 1)
	return "boltd:" + strconv.FormatInt(n, 10), nil
}

func (t *txHandle) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return bolterr.Wrap(bolterr.KindBackend, "Neo.DatabaseError.General.UnknownError", "rollback failed", err)
	}
	return nil
}

// Run parses and executes one of the three supported statement shapes.
// When tx is nil this is an auto-commit statement: it opens and commits
// (or rolls back) its own sqlite transaction before returning, same as
// an explicit BEGIN/RUN/COMMIT sequence collapsed into one round trip.
func (b *Backend) Run(ctx context.Context, sess backend.SessionHandle, tx backend.TransactionHandle, query string, params map[string]any) (backend.ResultStream, error) {
	q := strings.TrimSpace(query)
	var ex execer
	var autoTx *sql.Tx
	if t, ok := tx.(*txHandle); ok {
		ex = t.tx
	} else {
		sqlTx, err := b.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, bolterr.Wrap(bolterr.KindBackend, "Neo.DatabaseError.General.UnknownError", "failed to begin auto-commit transaction", err)
		}
		autoTx = sqlTx
		ex = sqlTx
	}

	rows, fields, err := b.execute(ctx, ex, q, params)
	if autoTx != nil {
		if err != nil {
			_ = autoTx.Rollback()
		} else if cerr := autoTx.Commit(); cerr != nil {
			return nil, bolterr.Wrap(bolterr.KindBackend, "Neo.DatabaseError.General.UnknownError", "auto-commit failed", cerr)
		}
	}
	if err != nil {
		return nil, err
	}
	return &resultStream{fields: fields, rows: rows}, nil
}

type execer interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}

var (
	createRe = regexpMustCompile(`^(?i)CREATE\s*\(\s*\w+\s*:\s*(\w+)\s*(\{(.*)\})?\s*\)\s*(?:RETURN\s+\w+)?\s*$`)
	matchRe  = regexpMustCompile(`^(?i)MATCH\s*\(\s*\w+\s*\)\s*RETURN\s+\w+\s*$`)
	returnRe = regexpMustCompile(`^(?i)RETURN\s+(.+)$`)
)

func (b *Backend) execute(ctx context.Context, e execer, q string, params map[string]any) ([][]any, []string, error) {
	switch {
	case createRe.MatchString(q):
		return b.execCreate(ctx, e, q)
	case matchRe.MatchString(q):
		return b.execMatch(ctx, e)
	case returnRe.MatchString(q):
		return b.execReturn(q, params)
	default:
		return nil, nil, bolterr.New(bolterr.KindBackend, "Neo.ClientError.Statement.SyntaxError",
			fmt.Sprintf("unsupported statement: %q", q))
	}
}

func (b *Backend) execCreate(ctx context.Context, e execer, q string) ([][]any, []string, error) {
	m := createRe.FindStringSubmatch(q)
	label, propsLiteral := m[1], m[3]
	props := map[string]any{}
	if propsLiteral != "" {
		v, err := parseValue("{" + propsLiteral + "}")
		if err != nil {
			return nil, nil, bolterr.Wrap(bolterr.KindBackend, "Neo.ClientError.Statement.SyntaxError", "invalid property map", err)
		}
		props, _ = v.(map[string]any)
	}
	propsJSON, err := json.Marshal(props)
	if err != nil {
		return nil, nil, bolterr.Wrap(bolterr.KindBackend, "Neo.DatabaseError.General.UnknownError", "marshal properties", err)
	}
	labelsJSON, _ := json.Marshal([]string{label})
	res, err := e.ExecContext(ctx, `INSERT INTO nodes (labels, properties) VALUES (?, ?)`, string(labelsJSON), string(propsJSON))
	if err != nil {
		return nil, nil, bolterr.Wrap(bolterr.KindBackend, "Neo.DatabaseError.General.UnknownError", "insert node", err)
	}
	id, _ := res.LastInsertId()
	node := boltvalue.Node{
		ID:         id,
		Labels:     []string{label},
		Properties: props,
		ElementID:  backend.ElementIDFor("sqlitegraph", strconv.FormatInt(id, 10)),
	}
	return [][]any{{node}}, []string{"n"}, nil
}

func (b *Backend) execMatch(ctx context.Context, e execer) ([][]any, []string, error) {
	rows, err := e.QueryContext(ctx, `SELECT id, labels, properties FROM nodes ORDER BY id`)
	if err != nil {
		return nil, nil, bolterr.Wrap(bolterr.KindBackend, "Neo.DatabaseError.General.UnknownError", "scan nodes", err)
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		var id int64
		var labelsJSON, propsJSON string
		if err := rows.Scan(&id, &labelsJSON, &propsJSON); err != nil {
			return nil, nil, bolterr.Wrap(bolterr.KindBackend, "Neo.DatabaseError.General.UnknownError", "scan row", err)
		}
		var labels []string
		var props map[string]any
		_ = json.Unmarshal([]byte(labelsJSON), &labels)
		_ = json.Unmarshal([]byte(propsJSON), &props)
		out = append(out, []any{boltvalue.Node{
			ID:         id,
			Labels:     labels,
			Properties: props,
			ElementID:  backend.ElementIDFor("sqlitegraph", strconv.FormatInt(id, 10)),
		}})
	}
	return out, []string{"n"}, rows.Err()
}

func (b *Backend) execReturn(q string, params map[string]any) ([][]any, []string, error) {
	m := returnRe.FindStringSubmatch(q)
	rest := m[1]
	items := splitTopLevel(rest, ',')
	values := make([]any, 0, len(items))
	fields := make([]string, 0, len(items))
	for _, item := range items {
		expr, alias := splitAlias(item)
		v, err := evalExpr(strings.TrimSpace(expr), params)
		if err != nil {
			return nil, nil, bolterr.Wrap(bolterr.KindBackend, "Neo.ClientError.Statement.SyntaxError", "invalid RETURN expression", err)
		}
		values = append(values, v)
		fields = append(fields, alias)
	}
	return [][]any{values}, fields, nil
}

func evalExpr(expr string, params map[string]any) (any, error) {
	if strings.HasPrefix(expr, "$") {
		name := strings.TrimPrefix(expr, "$")
		v, ok := params[name]
		if !ok {
			return nil, fmt.Errorf("unbound parameter $%s", name)
		}
		return v, nil
	}
	return parseValue(expr)
}

func splitAlias(item string) (expr, alias string) {
	item = strings.TrimSpace(item)
	upper := strings.ToUpper(item)
	if idx := strings.LastIndex(upper, " AS "); idx >= 0 {
		return item[:idx], strings.TrimSpace(item[idx+4:])
	}
	return item, item
}

// splitTopLevel splits s on sep, ignoring occurrences inside quotes,
// brackets, or braces — enough for the flat literal lists RETURN and
// property maps actually use.
func splitTopLevel(s string, sep byte) []string {
	var out []string
	depth := 0
	inQuote := byte(0)
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote != 0:
			if c == inQuote {
				inQuote = 0
			}
		case c == '\'' || c == '"':
			inQuote = c
		case c == '[' || c == '{':
			depth++
		case c == ']' || c == '}':
			depth--
		case c == sep && depth == 0:
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

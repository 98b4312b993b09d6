package sqlitegraph

import "context"

// resultStream adapts a fully materialized row set — this backend never
// streams against the client's PULL quota the way a real storage engine
// would — into backend.ResultStream's pull-based contract, so everything
// above this package exercises that contract correctly even though this
// particular backend has no reason to hold rows back. Next still only
// exposes one row per call, so a caller throttling via PULL's "n" behaves
// identically against this backend and a real incremental one.
type resultStream struct {
	fields []string
	rows   [][]any
	pos    int
	done   bool
}

func (r *resultStream) Fields() []string { return r.fields }

func (r *resultStream) Next(ctx context.Context) ([]any, bool, error) {
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	default:
	}
	if r.pos >= len(r.rows) {
		r.done = true
		return nil, false, nil
	}
	row := r.rows[r.pos]
	r.pos++
	return row, true, nil
}

func (r *resultStream) Discard(ctx context.Context) error {
	r.pos = len(r.rows)
	r.done = true
	return nil
}

func (r *resultStream) Summary() map[string]any {
	return map[string]any{
		"rows": len(r.rows),
	}
}

// Package tx carries a *sql.Tx through context so separate stores can join
// one commit, as the audit batch writer does.
package tx

import (
	"context"
	"database/sql"
)

type ctxKey struct{}

// WithTx stores the transaction in context. A nil transaction leaves the
// context untouched.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, tx)
}

// From extracts the ambient transaction, if any.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(ctxKey{}).(*sql.Tx)
	return tx, ok
}

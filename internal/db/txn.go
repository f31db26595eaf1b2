package db

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
)

// TxnFunc runs fn atomically where the deployment supports it. Services take
// one of these so tests can substitute a pass-through.
type TxnFunc func(ctx context.Context, fn func(ctx context.Context) error) error

// TxnFor binds WithTransaction to a database handle
func TxnFor(database *mongo.Database) TxnFunc {
	return func(ctx context.Context, fn func(ctx context.Context) error) error {
		return WithTransaction(ctx, database, fn)
	}
}

// NoTxn returns a pass-through TxnFunc for tests and standalone tooling
func NoTxn() TxnFunc {
	return func(ctx context.Context, fn func(ctx context.Context) error) error {
		return fn(ctx)
	}
}

// WithTransaction runs fn inside a multi-document transaction so that a
// message write and the conversation mutation depending on it commit as one
// batch. On a standalone topology (no replica set, transaction numbers
// unsupported) the writes are issued sequentially instead, which matches the
// store's best available guarantee.
func WithTransaction(ctx context.Context, database *mongo.Database, fn func(ctx context.Context) error) error {
	session, err := database.Client().StartSession()
	if err != nil {
		if isTransactionUnsupported(err) {
			return fn(ctx)
		}
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	if err != nil && isTransactionUnsupported(err) {
		return fn(ctx)
	}
	return err
}

func isTransactionUnsupported(err error) bool {
	if err == nil {
		return false
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == 20 { // IllegalOperation
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Transaction numbers are only allowed") ||
		strings.Contains(msg, "transactions are not supported")
}

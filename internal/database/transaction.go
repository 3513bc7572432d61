package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Transaction is an explicit GORM transaction. Commit and Rollback are
// idempotent: whichever lands first settles the transaction and later
// calls are no-ops, so a deferred Rollback is always safe.
type Transaction struct {
	tx      *gorm.DB
	settled bool
}

// NewTransaction begins a transaction on the database.
func NewTransaction(ctx context.Context, db Database) (Transaction, error) {
	tx := db.Session(ctx).Begin()
	if tx.Error != nil {
		return Transaction{}, fmt.Errorf("begin transaction: %w", tx.Error)
	}
	return Transaction{tx: tx}, nil
}

// Session returns the transaction-scoped session for executing queries.
func (t Transaction) Session() *gorm.DB {
	return t.tx
}

// Commit makes the transaction's writes durable.
func (t *Transaction) Commit() error {
	if t.settled {
		return nil
	}
	if err := t.tx.Commit().Error; err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	t.settled = true
	return nil
}

// Rollback discards the transaction's writes.
func (t *Transaction) Rollback() error {
	if t.settled {
		return nil
	}
	if err := t.tx.Rollback().Error; err != nil {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	t.settled = true
	return nil
}

// WithTransaction runs fn inside a transaction, committing when fn returns
// nil and rolling back otherwise. Multi-row mutations like the repository
// cascade delete go through here so partial writes never become visible.
func WithTransaction(ctx context.Context, db Database, fn func(tx *gorm.DB) error) error {
	txn, err := NewTransaction(ctx, db)
	if err != nil {
		return err
	}
	defer func() {
		if !txn.settled {
			_ = txn.Rollback()
		}
	}()

	if err := fn(txn.Session()); err != nil {
		return err
	}
	return txn.Commit()
}

// WithTransactionResult is WithTransaction for callbacks that produce a
// value alongside the error.
func WithTransactionResult[T any](ctx context.Context, db Database, fn func(tx *gorm.DB) (T, error)) (T, error) {
	var zero T

	txn, err := NewTransaction(ctx, db)
	if err != nil {
		return zero, err
	}
	defer func() {
		if !txn.settled {
			_ = txn.Rollback()
		}
	}()

	result, err := fn(txn.Session())
	if err != nil {
		return zero, err
	}
	if err := txn.Commit(); err != nil {
		return zero, err
	}
	return result, nil
}

// Package store persists ledger state: products, the product counter and
// recorded account balances.
package store

import (
	"context"
	"errors"

	"github.com/fairyhunter13/marketplace-ledger/internal/model"
)

var (
	// ErrNotFound is returned when a product id has no stored record.
	ErrNotFound = errors.New("store: not found")
	// ErrReadOnly is returned by mutating calls inside View.
	ErrReadOnly = errors.New("store: read-only transaction")
	// ErrNotContiguous is returned when an inserted id is not count+1.
	ErrNotContiguous = errors.New("store: product id is not next in sequence")
)

// Tx is a unit of work over ledger state. Changes made through a Tx become
// visible to other readers only when the enclosing Update returns nil.
type Tx interface {
	Count(ctx context.Context) (uint64, error)
	SoldCount(ctx context.Context) (uint64, error)
	Product(ctx context.Context, id uint64) (model.Product, error)
	// Products returns records ordered by id.
	Products(ctx context.Context, offset, limit int) ([]model.Product, error)
	InsertProduct(ctx context.Context, p model.Product) error
	UpdateProduct(ctx context.Context, p model.Product) error
	Balance(ctx context.Context, who model.Identity) (model.Amount, error)
	Credit(ctx context.Context, who model.Identity, amount model.Amount) error
}

// Store runs units of work. Update commits when fn returns nil and discards
// every change otherwise.
type Store interface {
	View(ctx context.Context, fn func(Tx) error) error
	Update(ctx context.Context, fn func(Tx) error) error
	Close() error
}

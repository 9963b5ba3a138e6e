// Package store defines the document store contract shared by every
// engine component, plus its error taxonomy and retry helper.
//
// Conventions:
// - All methods accept context.Context as the first parameter.
// - Documents are flat field maps; typed decoding happens at the domain
//   boundary, not here.
// - Transactions are scoped to the documents they touch and provide
//   read-your-write isolation within the transaction only.
package store

import "context"

// Filter operators supported by Query.
const (
	OpEqual = "=="
	OpIn    = "in"
)

// Document is a raw record returned by the store.
type Document struct {
	ID     string
	Fields map[string]any
}

// Filter narrows a Query to documents whose field matches the value.
// For OpIn, Value must be a []any or []string of accepted values.
type Filter struct {
	Field string
	Op    string
	Value any
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Op: OpEqual, Value: value}
}

// In builds a set-membership filter.
func In(field string, values ...any) Filter {
	return Filter{Field: field, Op: OpIn, Value: values}
}

// QueryOptions refine a Query. Zero value means no ordering and no limit.
type QueryOptions struct {
	OrderBy    string
	Descending bool
	Limit      int
}

// QueryOption applies a refinement to QueryOptions.
type QueryOption func(*QueryOptions)

// WithOrderBy sorts results by the given field.
func WithOrderBy(field string, descending bool) QueryOption {
	return func(o *QueryOptions) {
		o.OrderBy = field
		o.Descending = descending
	}
}

// WithLimit caps the number of returned documents.
func WithLimit(n int) QueryOption {
	return func(o *QueryOptions) {
		if n > 0 {
			o.Limit = n
		}
	}
}

// Write kinds for BatchWrite operations.
const (
	WriteSet    = "set"
	WriteUpdate = "update"
	WriteDelete = "delete"
)

// WriteOp is one independent write in a best-effort batch.
type WriteOp struct {
	Kind       string
	Collection string
	ID         string
	Fields     map[string]any
}

// Tx exposes read-then-write operations inside RunTransaction.
type Tx interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Set(ctx context.Context, collection, id string, fields map[string]any) error
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
}

// DocumentStore provides access to the shared backing store.
type DocumentStore interface {
	// Get returns the document or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Query returns all documents matching every filter.
	Query(ctx context.Context, collection string, filters []Filter, opts ...QueryOption) ([]Document, error)

	// Set creates or fully replaces a document.
	Set(ctx context.Context, collection, id string, fields map[string]any) error

	// Update merges fields into an existing document. Returns ErrNotFound
	// if the document does not exist.
	Update(ctx context.Context, collection, id string, fields map[string]any) error

	// Add creates a document with a generated id and returns the id.
	Add(ctx context.Context, collection string, fields map[string]any) (string, error)

	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error

	// RunTransaction executes fn with read-then-write semantics scoped to
	// the documents it touches. The store retries fn internally on conflict.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// BatchWrite applies independent writes best-effort: a failing op does
	// not stop the rest. The returned error joins individual failures.
	BatchWrite(ctx context.Context, ops []WriteOp) error
}

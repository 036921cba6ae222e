// Package store provides the persistence layer for challenge state: a
// backend-agnostic adapter contract over named collections of documents
// keyed by an "id" field, a schema layer that validates and defaults
// records on the way in, and adapters for in-memory, Redis, MongoDB and
// DynamoDB backends.
//
// The one hard guarantee every adapter must provide is atomic counter
// increments: concurrent FindOneAndIncrement calls against the same
// document must never lose an update. Each backend satisfies this with
// its own native primitive (HINCRBY, $inc, if_not_exists arithmetic).
package store

import (
	"context"
	"errors"
)

// Document is a single record as the adapter layer sees it. Field values
// are canonical Go types after schema normalization: string, int64, bool
// or time.Time.
type Document map[string]any

var (
	// ErrNotFound is returned when no document matches the given id.
	ErrNotFound = errors.New("store: document not found")
	// ErrUnavailable wraps connectivity or backend failures. Callers must
	// not assume a write happened when they see it.
	ErrUnavailable = errors.New("store: backend unavailable")
	// ErrUnsupported is returned by adapters that cannot express an
	// operation (Redis has no multi-document update).
	ErrUnsupported = errors.New("store: operation not supported by backend")
	// ErrValidation is returned when a record fails schema validation.
	ErrValidation = errors.New("store: validation failed")
)

// IncrementOptions controls FindOneAndIncrement behavior.
type IncrementOptions struct {
	// Upsert atomically creates the document from Baseline when it does
	// not exist, then applies the deltas. Baseline values for incremented
	// fields must be zero; the increment itself supplies the first value.
	Upsert   bool
	Baseline Document
}

// Adapter is the uniform CRUD/increment contract every backend
// implements. All operations are scoped to a named collection, and every
// document carries its primary key in the "id" field. Connectivity
// failures are reported wrapped in ErrUnavailable.
type Adapter interface {
	// Init prepares the backend before serving traffic: connectivity
	// check plus index/TTL provisioning where the backend supports it.
	// Entity definitions must be registered before Init runs.
	Init(ctx context.Context) error

	InsertOne(ctx context.Context, collection string, doc Document) (Document, error)
	InsertMany(ctx context.Context, collection string, docs []Document) ([]Document, error)

	FindOne(ctx context.Context, collection, id string) (Document, error)
	FindMany(ctx context.Context, collection string) ([]Document, error)

	FindOneAndUpdate(ctx context.Context, collection, id string, update Document) (Document, error)
	UpdateMany(ctx context.Context, collection string, filter, update Document) (int64, error)

	// FindOneAndIncrement atomically adds the given deltas to numeric
	// fields of the document and returns the updated document.
	FindOneAndIncrement(ctx context.Context, collection, id string, deltas map[string]int64, opts IncrementOptions) (Document, error)

	DeleteOne(ctx context.Context, collection, id string) (int64, error)
	DeleteMany(ctx context.Context, collection string) (int64, error)

	Close(ctx context.Context) error
}

package store

import (
	"context"
	"fmt"
	"time"
)

// Collection wraps an adapter with one entity's schema: it validates and
// defaults documents on insert, applies partial validation on update,
// derives deterministic primary keys, and enforces lazy expiry on every
// read that touches a TTL'd entity.
type Collection struct {
	adapter Adapter
	entity  Entity
	salt    string
}

// NewCollection builds a schema-aware view over one collection. The salt
// feeds primary-key derivation and must match across every process
// talking to the same backend.
func NewCollection(adapter Adapter, entity Entity, salt string) *Collection {
	return &Collection{adapter: adapter, entity: entity, salt: salt}
}

// Key returns the storage key derived for an identifier.
func (c *Collection) Key(id string) string {
	return DeriveKey(id, c.salt)
}

// InsertOne validates the document, applies defaults, normalizes the id
// and writes it.
func (c *Collection) InsertOne(ctx context.Context, doc Document) (Document, error) {
	validated, err := c.entity.Schema.Validate(doc, false)
	if err != nil {
		return nil, err
	}
	c.normalizeID(validated)
	return c.adapter.InsertOne(ctx, c.entity.Name, validated)
}

// FindOne loads a document by raw identifier. A document whose TTL field
// is in the past is deleted on the spot and reported as not found: the
// backend's native TTL may lag, the contract may not.
func (c *Collection) FindOne(ctx context.Context, id string) (Document, error) {
	doc, err := c.adapter.FindOne(ctx, c.entity.Name, c.Key(id))
	if err != nil {
		return nil, err
	}
	if c.expired(doc) {
		_, _ = c.adapter.DeleteOne(ctx, c.entity.Name, c.Key(id))
		return nil, ErrNotFound
	}
	return doc, nil
}

// Update applies a partial update. Missing fields are omitted, not
// defaulted.
func (c *Collection) Update(ctx context.Context, id string, update Document) (Document, error) {
	validated, err := c.entity.Schema.Validate(update, true)
	if err != nil {
		return nil, err
	}
	if len(validated) == 0 {
		return nil, fmt.Errorf("%w: empty update", ErrValidation)
	}
	return c.adapter.FindOneAndUpdate(ctx, c.entity.Name, c.Key(id), validated)
}

// Increment atomically adds deltas to numeric fields. With upsert, the
// baseline document is validated through the full schema first so thunk
// defaults are evaluated at write time.
func (c *Collection) Increment(ctx context.Context, id string, deltas map[string]int64, upsert bool, baseline Document) (Document, error) {
	opts := IncrementOptions{Upsert: upsert}
	if upsert {
		validated, err := c.entity.Schema.Validate(baseline, false)
		if err != nil {
			return nil, err
		}
		c.normalizeID(validated)
		for field := range deltas {
			if n, _ := toInt64(validated[field]); n != 0 {
				return nil, fmt.Errorf("%w: baseline for incremented field %q must be zero", ErrValidation, field)
			}
		}
		opts.Baseline = validated
	}
	return c.adapter.FindOneAndIncrement(ctx, c.entity.Name, c.Key(id), deltas, opts)
}

// Delete removes a document by raw identifier.
func (c *Collection) Delete(ctx context.Context, id string) (int64, error) {
	return c.adapter.DeleteOne(ctx, c.entity.Name, c.Key(id))
}

// DeleteAll removes every document in the collection.
func (c *Collection) DeleteAll(ctx context.Context) (int64, error) {
	return c.adapter.DeleteMany(ctx, c.entity.Name)
}

func (c *Collection) normalizeID(doc Document) {
	if raw, ok := doc["id"].(string); ok {
		doc["id"] = DeriveKey(raw, c.salt)
	}
}

func (c *Collection) expired(doc Document) bool {
	if c.entity.Schema.TTLField == "" {
		return false
	}
	exp, ok := doc[c.entity.Schema.TTLField].(time.Time)
	if !ok {
		return false
	}
	return !exp.After(time.Now())
}

// DB bundles the typed collections the engine works with.
type DB struct {
	adapter Adapter

	Users         *Collection
	Tokens        *Collection
	DisableTokens *Collection
	Resets        *Collection
	Logs          *Collection
}

// Open registers the entity definitions and returns schema-aware
// collections over the adapter. Call Init before serving traffic.
func Open(adapter Adapter, salt string) *DB {
	RegisterEntities()
	col := func(name string) *Collection {
		entity, _ := LookupEntity(name)
		return NewCollection(adapter, entity, salt)
	}
	return &DB{
		adapter:       adapter,
		Users:         col(CollectionUsers),
		Tokens:        col(CollectionTokens),
		DisableTokens: col(CollectionDisableTokens),
		Resets:        col(CollectionResets),
		Logs:          col(CollectionLogs),
	}
}

// Init runs the adapter's connectivity check and index/TTL provisioning.
func (db *DB) Init(ctx context.Context) error {
	return db.adapter.Init(ctx)
}

// Close releases the underlying adapter.
func (db *DB) Close(ctx context.Context) error {
	return db.adapter.Close(ctx)
}

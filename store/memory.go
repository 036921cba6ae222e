package store

import (
	"context"
	"fmt"
	"sync"
)

// MemoryAdapter is a process-local adapter used in tests and single-node
// development. It holds documents in nested maps under one mutex, which
// trivially satisfies the atomic-increment contract.
type MemoryAdapter struct {
	mu          sync.Mutex
	collections map[string]map[string]Document
}

// NewMemoryAdapter returns an empty in-memory adapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{collections: map[string]map[string]Document{}}
}

// Init is a no-op; there is nothing to provision in memory.
func (a *MemoryAdapter) Init(ctx context.Context) error { return nil }

// Close drops all data.
func (a *MemoryAdapter) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.collections = map[string]map[string]Document{}
	return nil
}

// InsertOne stores a copy of the document under its id.
func (a *MemoryAdapter) InsertOne(ctx context.Context, collection string, doc Document) (Document, error) {
	id, ok := doc["id"].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("%w: document has no id", ErrValidation)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.coll(collection)[id] = copyDoc(doc)
	return copyDoc(doc), nil
}

// InsertMany stores each document in turn.
func (a *MemoryAdapter) InsertMany(ctx context.Context, collection string, docs []Document) ([]Document, error) {
	out := make([]Document, 0, len(docs))
	for _, doc := range docs {
		inserted, err := a.InsertOne(ctx, collection, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, inserted)
	}
	return out, nil
}

// FindOne returns a copy of the document or ErrNotFound.
func (a *MemoryAdapter) FindOne(ctx context.Context, collection, id string) (Document, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	doc, ok := a.coll(collection)[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDoc(doc), nil
}

// FindMany returns copies of every document in the collection.
func (a *MemoryAdapter) FindMany(ctx context.Context, collection string) ([]Document, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	coll := a.coll(collection)
	out := make([]Document, 0, len(coll))
	for _, doc := range coll {
		out = append(out, copyDoc(doc))
	}
	return out, nil
}

// FindOneAndUpdate merges the update into the stored document and
// returns the result.
func (a *MemoryAdapter) FindOneAndUpdate(ctx context.Context, collection, id string, update Document) (Document, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	doc, ok := a.coll(collection)[id]
	if !ok {
		return nil, ErrNotFound
	}
	for field, val := range update {
		doc[field] = val
	}
	return copyDoc(doc), nil
}

// UpdateMany merges the update into every document matching the filter
// by field equality.
func (a *MemoryAdapter) UpdateMany(ctx context.Context, collection string, filter, update Document) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var n int64
	for _, doc := range a.coll(collection) {
		if !matches(doc, filter) {
			continue
		}
		for field, val := range update {
			doc[field] = val
		}
		n++
	}
	return n, nil
}

// FindOneAndIncrement adds deltas under the adapter lock. With upsert,
// a missing document is created from the baseline first.
func (a *MemoryAdapter) FindOneAndIncrement(ctx context.Context, collection, id string, deltas map[string]int64, opts IncrementOptions) (Document, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	coll := a.coll(collection)
	doc, ok := coll[id]
	if !ok {
		if !opts.Upsert {
			return nil, ErrNotFound
		}
		doc = copyDoc(opts.Baseline)
		doc["id"] = id
		coll[id] = doc
	}
	for field, delta := range deltas {
		current, _ := toInt64(doc[field])
		doc[field] = current + delta
	}
	return copyDoc(doc), nil
}

// DeleteOne removes a document, returning the number removed (0 or 1).
func (a *MemoryAdapter) DeleteOne(ctx context.Context, collection, id string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	coll := a.coll(collection)
	if _, ok := coll[id]; !ok {
		return 0, nil
	}
	delete(coll, id)
	return 1, nil
}

// DeleteMany removes every document in the collection.
func (a *MemoryAdapter) DeleteMany(ctx context.Context, collection string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := int64(len(a.coll(collection)))
	a.collections[collection] = map[string]Document{}
	return n, nil
}

func (a *MemoryAdapter) coll(name string) map[string]Document {
	coll, ok := a.collections[name]
	if !ok {
		coll = map[string]Document{}
		a.collections[name] = coll
	}
	return coll
}

func copyDoc(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

func matches(doc, filter Document) bool {
	for field, want := range filter {
		if doc[field] != want {
			return false
		}
	}
	return true
}

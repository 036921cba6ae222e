package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisUpdateRetries = 4

// redisIncrementScript guards HINCRBY with an existence check so a
// concurrent delete cannot turn an increment into a key creation. Runs
// atomically server-side, so concurrent increments never lose updates
// and never contend.
var redisIncrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
for i = 1, #ARGV, 2 do
  redis.call('HINCRBY', KEYS[1], ARGV[i], ARGV[i + 1])
end
return 1
`)

// RedisAdapter stores each document as a Redis hash under
// "{collection}:{id}". Field values are encoded per the entity schema
// (numbers as decimal, booleans as 0/1, times as epoch milliseconds), so
// counter increments map directly onto HINCRBY, which is atomic on its
// own. Expiry uses per-key PEXPIREAT; there are no secondary indexes.
//
// Upserting increments writes the baseline with HSETNX semantics and
// then applies the increment. A racing first creation is idempotent:
// the baseline write is conditional and the increment commutes.
type RedisAdapter struct {
	client *redis.Client
}

// NewRedisAdapter wraps an existing client. The client is a process-wide
// singleton owned by the caller.
func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

// Init verifies connectivity. TTLs are applied per key at write time, so
// no provisioning pass is needed.
func (a *RedisAdapter) Init(ctx context.Context) error {
	if err := a.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close closes the underlying client.
func (a *RedisAdapter) Close(ctx context.Context) error {
	return a.client.Close()
}

// InsertOne replaces any existing hash at the key with the encoded
// document and arms its TTL.
func (a *RedisAdapter) InsertOne(ctx context.Context, collection string, doc Document) (Document, error) {
	entity, ok := LookupEntity(collection)
	if !ok {
		return nil, fmt.Errorf("%w: unknown collection %q", ErrValidation, collection)
	}
	id, _ := doc["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("%w: document has no id", ErrValidation)
	}

	fields := encodeRedisDoc(entity.Schema, doc)
	key := redisKey(collection, id)

	_, err := a.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		if exp, ok := ttlOf(entity.Schema, doc); ok {
			pipe.PExpireAt(ctx, key, exp)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return copyDoc(doc), nil
}

// InsertMany writes all documents in one pipeline.
func (a *RedisAdapter) InsertMany(ctx context.Context, collection string, docs []Document) ([]Document, error) {
	entity, ok := LookupEntity(collection)
	if !ok {
		return nil, fmt.Errorf("%w: unknown collection %q", ErrValidation, collection)
	}
	_, err := a.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, doc := range docs {
			id, _ := doc["id"].(string)
			if id == "" {
				return fmt.Errorf("%w: document has no id", ErrValidation)
			}
			key := redisKey(collection, id)
			pipe.Del(ctx, key)
			pipe.HSet(ctx, key, encodeRedisDoc(entity.Schema, doc))
			if exp, ok := ttlOf(entity.Schema, doc); ok {
				pipe.PExpireAt(ctx, key, exp)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return docs, nil
}

// FindOne loads and decodes the hash at the key.
func (a *RedisAdapter) FindOne(ctx context.Context, collection, id string) (Document, error) {
	entity, ok := LookupEntity(collection)
	if !ok {
		return nil, fmt.Errorf("%w: unknown collection %q", ErrValidation, collection)
	}
	raw, err := a.client.HGetAll(ctx, redisKey(collection, id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(raw) == 0 {
		return nil, ErrNotFound
	}
	return decodeRedisDoc(entity.Schema, raw), nil
}

// FindMany scans the collection prefix and loads every hash.
func (a *RedisAdapter) FindMany(ctx context.Context, collection string) ([]Document, error) {
	entity, ok := LookupEntity(collection)
	if !ok {
		return nil, fmt.Errorf("%w: unknown collection %q", ErrValidation, collection)
	}
	keys, err := a.scanKeys(ctx, collection)
	if err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(keys))
	for _, key := range keys {
		raw, err := a.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if len(raw) > 0 {
			out = append(out, decodeRedisDoc(entity.Schema, raw))
		}
	}
	return out, nil
}

// FindOneAndUpdate merges encoded fields into an existing hash. The key
// must already exist; HSET alone would silently resurrect deleted
// documents.
func (a *RedisAdapter) FindOneAndUpdate(ctx context.Context, collection, id string, update Document) (Document, error) {
	entity, ok := LookupEntity(collection)
	if !ok {
		return nil, fmt.Errorf("%w: unknown collection %q", ErrValidation, collection)
	}
	key := redisKey(collection, id)

	for i := 0; i < redisUpdateRetries; i++ {
		err := a.client.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, key).Result()
			if err != nil {
				return err
			}
			if n == 0 {
				return ErrNotFound
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key, encodeRedisDoc(entity.Schema, update))
				if exp, ok := ttlOf(entity.Schema, update); ok {
					pipe.PExpireAt(ctx, key, exp)
				}
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return a.FindOne(ctx, collection, id)
	}
	return nil, fmt.Errorf("%w: update contention on %s", ErrUnavailable, key)
}

// UpdateMany is not expressible without secondary indexes.
func (a *RedisAdapter) UpdateMany(ctx context.Context, collection string, filter, update Document) (int64, error) {
	return 0, ErrUnsupported
}

// FindOneAndIncrement applies HINCRBY deltas. Without upsert the key
// must exist and the check happens inside a Lua script, atomically with
// the increments. With upsert the baseline is written field-by-field
// with HSETNX before the increments in one transaction.
func (a *RedisAdapter) FindOneAndIncrement(ctx context.Context, collection, id string, deltas map[string]int64, opts IncrementOptions) (Document, error) {
	entity, ok := LookupEntity(collection)
	if !ok {
		return nil, fmt.Errorf("%w: unknown collection %q", ErrValidation, collection)
	}
	key := redisKey(collection, id)

	if opts.Upsert {
		baseline := encodeRedisDoc(entity.Schema, opts.Baseline)
		_, err := a.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for field, val := range baseline {
				pipe.HSetNX(ctx, key, field, val)
			}
			if exp, ok := ttlOf(entity.Schema, opts.Baseline); ok {
				pipe.PExpireAt(ctx, key, exp)
			}
			for field, delta := range deltas {
				pipe.HIncrBy(ctx, key, field, delta)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return a.FindOne(ctx, collection, id)
	}

	args := make([]interface{}, 0, len(deltas)*2)
	for field, delta := range deltas {
		args = append(args, field, delta)
	}
	hit, err := redisIncrementScript.Run(ctx, a.client, []string{key}, args...).Int()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if hit == 0 {
		return nil, ErrNotFound
	}
	return a.FindOne(ctx, collection, id)
}

// DeleteOne removes the hash.
func (a *RedisAdapter) DeleteOne(ctx context.Context, collection, id string) (int64, error) {
	n, err := a.client.Del(ctx, redisKey(collection, id)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

// DeleteMany removes every key under the collection prefix.
func (a *RedisAdapter) DeleteMany(ctx context.Context, collection string) (int64, error) {
	keys, err := a.scanKeys(ctx, collection)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := a.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

func (a *RedisAdapter) scanKeys(ctx context.Context, collection string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := a.client.Scan(ctx, cursor, collection+":*", 1000).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

func redisKey(collection, id string) string {
	return collection + ":" + id
}

func encodeRedisDoc(schema Schema, doc Document) map[string]string {
	out := make(map[string]string, len(doc))
	for name, val := range doc {
		spec, ok := schema.Fields[name]
		if !ok || val == nil {
			continue
		}
		switch spec.Type {
		case FieldString:
			if s, ok := val.(string); ok {
				out[name] = s
			}
		case FieldNumber:
			if n, ok := toInt64(val); ok {
				out[name] = strconv.FormatInt(n, 10)
			}
		case FieldBool:
			if b, ok := val.(bool); ok {
				if b {
					out[name] = "1"
				} else {
					out[name] = "0"
				}
			}
		case FieldTime:
			if t, ok := val.(time.Time); ok {
				out[name] = strconv.FormatInt(t.UnixMilli(), 10)
			}
		}
	}
	return out
}

func decodeRedisDoc(schema Schema, raw map[string]string) Document {
	out := make(Document, len(raw))
	for name, val := range raw {
		spec, ok := schema.Fields[name]
		if !ok {
			continue
		}
		switch spec.Type {
		case FieldString:
			out[name] = val
		case FieldNumber:
			if n, err := strconv.ParseInt(val, 10, 64); err == nil {
				out[name] = n
			}
		case FieldBool:
			out[name] = val == "1"
		case FieldTime:
			if ms, err := strconv.ParseInt(val, 10, 64); err == nil {
				out[name] = time.UnixMilli(ms).UTC()
			}
		}
	}
	return out
}

func ttlOf(schema Schema, doc Document) (time.Time, bool) {
	if schema.TTLField == "" {
		return time.Time{}, false
	}
	exp, ok := doc[schema.TTLField].(time.Time)
	if !ok || !exp.After(time.Now()) {
		return time.Time{}, false
	}
	return exp, true
}

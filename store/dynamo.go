package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDBAPI is the slice of the DynamoDB client this adapter needs.
// Narrowing the dependency keeps tests on a hand-rolled mock instead of
// a live table.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoAdapter stores every collection in one table under a composite
// partition key "{collection}#{id}" (attribute PK). Counter increments
// use UpdateItem with if_not_exists arithmetic, which DynamoDB applies
// atomically per item, so upsert-with-increment needs no transaction.
// Documents with a TTL field carry an "expiry" attribute in epoch
// seconds for the table's native TTL; times inside the document itself
// are stored as epoch milliseconds.
type DynamoAdapter struct {
	client    DynamoDBAPI
	tableName string
}

// NewDynamoAdapter wraps a DynamoDB client and table. The table must
// have a string partition key named "PK" and TTL enabled on "expiry".
func NewDynamoAdapter(client DynamoDBAPI, tableName string) *DynamoAdapter {
	return &DynamoAdapter{client: client, tableName: tableName}
}

// Init verifies the table exists. Table and TTL provisioning is an
// operator concern; the adapter only refuses to start against a missing
// table.
func (a *DynamoAdapter) Init(ctx context.Context) error {
	_, err := a.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(a.tableName),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close is a no-op; the HTTP client is owned by the caller.
func (a *DynamoAdapter) Close(ctx context.Context) error { return nil }

// InsertOne marshals the document and puts it unconditionally.
func (a *DynamoAdapter) InsertOne(ctx context.Context, collection string, doc Document) (Document, error) {
	item, err := a.encodeItem(collection, doc)
	if err != nil {
		return nil, err
	}
	_, err = a.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(a.tableName),
		Item:      item,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return copyDoc(doc), nil
}

// InsertMany puts each document in turn.
func (a *DynamoAdapter) InsertMany(ctx context.Context, collection string, docs []Document) ([]Document, error) {
	for _, doc := range docs {
		if _, err := a.InsertOne(ctx, collection, doc); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

// FindOne loads an item with a consistent read so a counter written by
// another caller a moment ago is visible.
func (a *DynamoAdapter) FindOne(ctx context.Context, collection, id string) (Document, error) {
	entity, ok := LookupEntity(collection)
	if !ok {
		return nil, fmt.Errorf("%w: unknown collection %q", ErrValidation, collection)
	}
	out, err := a.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(a.tableName),
		Key:            a.keyAttr(collection, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	return decodeDynamoItem(entity.Schema, out.Item)
}

// FindMany scans the table for the collection's partition key prefix.
func (a *DynamoAdapter) FindMany(ctx context.Context, collection string) ([]Document, error) {
	entity, ok := LookupEntity(collection)
	if !ok {
		return nil, fmt.Errorf("%w: unknown collection %q", ErrValidation, collection)
	}
	var out []Document
	var startKey map[string]types.AttributeValue
	for {
		res, err := a.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                aws.String(a.tableName),
			FilterExpression:         aws.String("begins_with(PK, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":prefix": &types.AttributeValueMemberS{Value: collection + "#"},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		for _, item := range res.Items {
			doc, err := decodeDynamoItem(entity.Schema, item)
			if err != nil {
				return nil, err
			}
			out = append(out, doc)
		}
		if len(res.LastEvaluatedKey) == 0 {
			return out, nil
		}
		startKey = res.LastEvaluatedKey
	}
}

// FindOneAndUpdate sets the given fields on an existing item. The
// condition on PK keeps the update from creating a phantom item.
func (a *DynamoAdapter) FindOneAndUpdate(ctx context.Context, collection, id string, update Document) (Document, error) {
	entity, ok := LookupEntity(collection)
	if !ok {
		return nil, fmt.Errorf("%w: unknown collection %q", ErrValidation, collection)
	}

	expr := newDynamoExpr()
	for name, val := range dynamoEncodeFields(entity.Schema, update) {
		expr.set(name, val)
	}
	if exp, ok := ttlOf(entity.Schema, update); ok {
		expr.set("expiry", &types.AttributeValueMemberN{Value: strconv.FormatInt(exp.Unix(), 10)})
	}

	out, err := a.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(a.tableName),
		Key:                       a.keyAttr(collection, id),
		UpdateExpression:          expr.updateExpression(),
		ConditionExpression:       aws.String("attribute_exists(PK)"),
		ExpressionAttributeNames:  expr.names,
		ExpressionAttributeValues: expr.values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return decodeDynamoItem(entity.Schema, out.Attributes)
}

// UpdateMany scans for matches and updates them one by one. DynamoDB
// has no multi-item update primitive.
func (a *DynamoAdapter) UpdateMany(ctx context.Context, collection string, filter, update Document) (int64, error) {
	docs, err := a.FindMany(ctx, collection)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, doc := range docs {
		if !matches(doc, filter) {
			continue
		}
		id, _ := doc["id"].(string)
		if _, err := a.FindOneAndUpdate(ctx, collection, id, update); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// FindOneAndIncrement leans on UpdateItem's atomicity: the whole
// expression — baseline if_not_exists fields plus counter arithmetic —
// applies as one unit, so concurrent increments never lose updates and
// a racing first creation resolves server-side.
func (a *DynamoAdapter) FindOneAndIncrement(ctx context.Context, collection, id string, deltas map[string]int64, opts IncrementOptions) (Document, error) {
	entity, ok := LookupEntity(collection)
	if !ok {
		return nil, fmt.Errorf("%w: unknown collection %q", ErrValidation, collection)
	}

	expr := newDynamoExpr()
	for field, delta := range deltas {
		expr.increment(field, delta)
	}

	input := &dynamodb.UpdateItemInput{
		TableName:    aws.String(a.tableName),
		Key:          a.keyAttr(collection, id),
		ReturnValues: types.ReturnValueAllNew,
	}

	if opts.Upsert {
		for name, val := range dynamoEncodeFields(entity.Schema, opts.Baseline) {
			if _, incremented := deltas[name]; incremented {
				continue
			}
			expr.setIfNotExists(name, val)
		}
		if exp, ok := ttlOf(entity.Schema, opts.Baseline); ok {
			expr.setIfNotExists("expiry", &types.AttributeValueMemberN{Value: strconv.FormatInt(exp.Unix(), 10)})
		}
	} else {
		input.ConditionExpression = aws.String("attribute_exists(PK)")
	}

	input.UpdateExpression = expr.updateExpression()
	input.ExpressionAttributeNames = expr.names
	input.ExpressionAttributeValues = expr.values

	out, err := a.client.UpdateItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return decodeDynamoItem(entity.Schema, out.Attributes)
}

// DeleteOne removes an item, reporting whether anything was there.
func (a *DynamoAdapter) DeleteOne(ctx context.Context, collection, id string) (int64, error) {
	out, err := a.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(a.tableName),
		Key:          a.keyAttr(collection, id),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(out.Attributes) == 0 {
		return 0, nil
	}
	return 1, nil
}

// DeleteMany scans and deletes every item in the collection.
func (a *DynamoAdapter) DeleteMany(ctx context.Context, collection string) (int64, error) {
	docs, err := a.FindMany(ctx, collection)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, doc := range docs {
		id, _ := doc["id"].(string)
		deleted, err := a.DeleteOne(ctx, collection, id)
		if err != nil {
			return n, err
		}
		n += deleted
	}
	return n, nil
}

func (a *DynamoAdapter) keyAttr(collection, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: collection + "#" + id},
	}
}

func (a *DynamoAdapter) encodeItem(collection string, doc Document) (map[string]types.AttributeValue, error) {
	entity, ok := LookupEntity(collection)
	if !ok {
		return nil, fmt.Errorf("%w: unknown collection %q", ErrValidation, collection)
	}
	id, _ := doc["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("%w: document has no id", ErrValidation)
	}
	item := dynamoEncodeFields(entity.Schema, doc)
	item["PK"] = &types.AttributeValueMemberS{Value: collection + "#" + id}
	if exp, ok := ttlOf(entity.Schema, doc); ok {
		item["expiry"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(exp.Unix(), 10)}
	}
	return item, nil
}

func dynamoEncodeFields(schema Schema, doc Document) map[string]types.AttributeValue {
	flat := make(map[string]any, len(doc))
	for name, val := range doc {
		spec, ok := schema.Fields[name]
		if !ok || val == nil {
			continue
		}
		if spec.Type == FieldTime {
			if t, ok := val.(time.Time); ok {
				flat[name] = t.UnixMilli()
			}
			continue
		}
		flat[name] = val
	}
	item, err := attributevalue.MarshalMap(flat)
	if err != nil {
		return map[string]types.AttributeValue{}
	}
	return item
}

func decodeDynamoItem(schema Schema, item map[string]types.AttributeValue) (Document, error) {
	var flat map[string]any
	if err := attributevalue.UnmarshalMap(item, &flat); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	delete(flat, "PK")
	delete(flat, "expiry")
	return schema.Normalize(flat), nil
}

// dynamoExpr accumulates SET clauses with attribute name/value
// placeholders.
type dynamoExpr struct {
	clauses []string
	names   map[string]string
	values  map[string]types.AttributeValue
	n       int
}

func newDynamoExpr() *dynamoExpr {
	return &dynamoExpr{
		names:  map[string]string{},
		values: map[string]types.AttributeValue{},
	}
}

func (e *dynamoExpr) placeholder(field string) (string, string) {
	e.n++
	nameKey := "#f" + strconv.Itoa(e.n)
	valKey := ":v" + strconv.Itoa(e.n)
	e.names[nameKey] = field
	return nameKey, valKey
}

func (e *dynamoExpr) set(field string, val types.AttributeValue) {
	nameKey, valKey := e.placeholder(field)
	e.values[valKey] = val
	e.clauses = append(e.clauses, nameKey+" = "+valKey)
}

func (e *dynamoExpr) setIfNotExists(field string, val types.AttributeValue) {
	nameKey, valKey := e.placeholder(field)
	e.values[valKey] = val
	e.clauses = append(e.clauses, nameKey+" = if_not_exists("+nameKey+", "+valKey+")")
}

func (e *dynamoExpr) increment(field string, delta int64) {
	nameKey, valKey := e.placeholder(field)
	e.values[valKey] = &types.AttributeValueMemberN{Value: strconv.FormatInt(delta, 10)}
	zeroKey := valKey + "z"
	e.values[zeroKey] = &types.AttributeValueMemberN{Value: "0"}
	e.clauses = append(e.clauses, nameKey+" = if_not_exists("+nameKey+", "+zeroKey+") + "+valKey)
}

func (e *dynamoExpr) updateExpression() *string {
	expr := "SET "
	for i, clause := range e.clauses {
		if i > 0 {
			expr += ", "
		}
		expr += clause
	}
	return aws.String(expr)
}

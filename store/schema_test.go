package store

import (
	"errors"
	"testing"
	"time"
)

func testSchema() Schema {
	return Schema{
		Fields: map[string]FieldSpec{
			"id":        {Type: FieldString, Required: true},
			"name":      {Type: FieldString},
			"count":     {Type: FieldNumber, Default: func() any { return int64(0) }},
			"active":    {Type: FieldBool, Default: func() any { return true }},
			"expiresAt": {Type: FieldTime},
		},
		TTLField: "expiresAt",
	}
}

func TestSchemaValidate_AppliesDefaults(t *testing.T) {
	doc, err := testSchema().Validate(Document{"id": "a1"}, false)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if doc["count"] != int64(0) {
		t.Fatalf("expected default count 0, got %v", doc["count"])
	}
	if doc["active"] != true {
		t.Fatalf("expected default active true, got %v", doc["active"])
	}
	if _, ok := doc["name"]; ok {
		t.Fatal("optional field without default should be omitted")
	}
}

func TestSchemaValidate_MissingRequired(t *testing.T) {
	_, err := testSchema().Validate(Document{"name": "x"}, false)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestSchemaValidate_PartialSkipsDefaultsAndRequired(t *testing.T) {
	doc, err := testSchema().Validate(Document{"name": "x"}, true)
	if err != nil {
		t.Fatalf("partial validate failed: %v", err)
	}
	if len(doc) != 1 || doc["name"] != "x" {
		t.Fatalf("partial update should carry only provided fields, got %v", doc)
	}
}

func TestSchemaValidate_TypeChecks(t *testing.T) {
	schema := testSchema()

	if _, err := schema.Validate(Document{"id": 42}, false); !errors.Is(err, ErrValidation) {
		t.Fatalf("number for string field: expected ErrValidation, got %v", err)
	}
	if _, err := schema.Validate(Document{"id": "a", "count": "five"}, false); !errors.Is(err, ErrValidation) {
		t.Fatalf("string for number field: expected ErrValidation, got %v", err)
	}
	if _, err := schema.Validate(Document{"id": "a", "expiresAt": "not a time"}, false); !errors.Is(err, ErrValidation) {
		t.Fatalf("junk for time field: expected ErrValidation, got %v", err)
	}
}

func TestSchemaValidate_TimeCoercion(t *testing.T) {
	schema := testSchema()
	ms := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).UnixMilli()

	doc, err := schema.Validate(Document{"id": "a", "expiresAt": ms}, false)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	got, ok := doc["expiresAt"].(time.Time)
	if !ok || got.UnixMilli() != ms {
		t.Fatalf("expected epoch-ms coercion to time.Time, got %v", doc["expiresAt"])
	}
}

func TestSchemaValidate_ThunkDefaultEvaluatedAtWriteTime(t *testing.T) {
	schema := Schema{
		Fields: map[string]FieldSpec{
			"id":        {Type: FieldString, Required: true},
			"expiresAt": {Type: FieldTime, Default: func() any { return time.Now().Add(time.Minute) }},
		},
	}

	before := time.Now()
	doc, err := schema.Validate(Document{"id": "a"}, false)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	exp := doc["expiresAt"].(time.Time)
	if exp.Before(before.Add(30 * time.Second)) {
		t.Fatalf("thunk default evaluated too early: %v", exp)
	}
}

func TestDeriveKey_DeterministicAndSaltScoped(t *testing.T) {
	a := DeriveKey("user-1", "salt")
	b := DeriveKey("user-1", "salt")
	c := DeriveKey("user-1", "other-salt")

	if a != b {
		t.Fatalf("key derivation not deterministic: %q vs %q", a, b)
	}
	if a == c {
		t.Fatal("different salts must derive different keys")
	}
	if len(a) != 24 {
		t.Fatalf("expected 24 hex chars, got %d", len(a))
	}
}

package store

import "time"

// Collection names. These double as Redis key prefixes, Mongo collection
// names and DynamoDB partition key prefixes.
const (
	CollectionUsers         = "users"
	CollectionTokens        = "tokens"
	CollectionDisableTokens = "disable_tokens"
	CollectionResets        = "resets"
	CollectionLogs          = "logs"
)

// Record TTLs. Logs keep a month of history; everything else is
// short-lived challenge state.
const (
	TokenTTL        = 15 * time.Minute
	DisableTokenTTL = 10 * time.Minute
	LogTTL          = 30 * 24 * time.Hour
)

func now() any { return time.Now().UTC() }

func userEntity() Entity {
	return Entity{
		Name: CollectionUsers,
		Schema: Schema{
			Fields: map[string]FieldSpec{
				"id":                {Type: FieldString, Required: true, Unique: true},
				"userId":            {Type: FieldString, Required: true, Unique: true},
				"textId":            {Type: FieldNumber},
				"textToType":        {Type: FieldString},
				"enroll":            {Type: FieldBool, Default: func() any { return false }},
				"attempts":          {Type: FieldNumber, Default: func() any { return int64(0) }},
				"invalidTpAttempts": {Type: FieldNumber, Default: func() any { return int64(0) }},
				"lockoutUntil":      {Type: FieldNumber, Default: func() any { return int64(0) }},
				"createdAt":         {Type: FieldTime, Default: now},
				"updatedAt":         {Type: FieldTime},
			},
		},
	}
}

func tokenEntity() Entity {
	return Entity{
		Name: CollectionTokens,
		Schema: Schema{
			Fields: map[string]FieldSpec{
				"id":              {Type: FieldString, Required: true, Unique: true},
				"cid":             {Type: FieldString, Required: true, Unique: true},
				"userId":          {Type: FieldString, Required: true},
				"bridgeId":        {Type: FieldString},
				"token":           {Type: FieldString},
				"originalMessage": {Type: FieldString},
				"failedAttempts":  {Type: FieldNumber, Default: func() any { return int64(0) }},
				"expiresAt":       {Type: FieldTime, Default: func() any { return time.Now().UTC().Add(TokenTTL) }},
				"createdAt":       {Type: FieldTime, Default: now},
			},
			TTLField: "expiresAt",
		},
	}
}

func disableTokenEntity() Entity {
	return Entity{
		Name: CollectionDisableTokens,
		Schema: Schema{
			Fields: map[string]FieldSpec{
				"id":         {Type: FieldString, Required: true, Unique: true},
				"disableTid": {Type: FieldString, Required: true, Unique: true},
				"userId":     {Type: FieldString, Required: true},
				"type":       {Type: FieldString},
				"expiresAt":  {Type: FieldTime, Default: func() any { return time.Now().UTC().Add(DisableTokenTTL) }},
				"createdAt":  {Type: FieldTime, Default: now},
			},
			TTLField: "expiresAt",
		},
	}
}

func resetEntity() Entity {
	return Entity{
		Name: CollectionResets,
		Schema: Schema{
			Fields: map[string]FieldSpec{
				// id == userId: the primary key enforces at most one
				// pending reset per user. A second schedule overwrites.
				"id":          {Type: FieldString, Required: true, Unique: true},
				"userId":      {Type: FieldString, Required: true},
				"deleteAfter": {Type: FieldTime, Required: true},
				"createdAt":   {Type: FieldTime, Default: now},
			},
		},
	}
}

func logEntity() Entity {
	return Entity{
		Name: CollectionLogs,
		Schema: Schema{
			Fields: map[string]FieldSpec{
				"id":         {Type: FieldString, Required: true, Unique: true},
				"type":       {Type: FieldString},
				"action":     {Type: FieldString},
				"url":        {Type: FieldString},
				"method":     {Type: FieldString},
				"userId":     {Type: FieldString},
				"message":    {Type: FieldString},
				"error":      {Type: FieldString},
				"httpStatus": {Type: FieldNumber},
				"expiresAt":  {Type: FieldTime, Default: func() any { return time.Now().UTC().Add(LogTTL) }},
				"createdAt":  {Type: FieldTime, Default: now},
			},
			TTLField: "expiresAt",
		},
	}
}

// RegisterEntities registers every entity definition the service uses.
// Adapters consult the registry during Init for index and TTL
// provisioning, so this must run before Adapter.Init.
func RegisterEntities() {
	RegisterEntity(userEntity())
	RegisterEntity(tokenEntity())
	RegisterEntity(disableTokenEntity())
	RegisterEntity(resetEntity())
	RegisterEntity(logEntity())
}

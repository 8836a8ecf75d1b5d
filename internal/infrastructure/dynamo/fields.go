package dynamo

// DynamoDB attribute names for the revoked_tokens table.
const (
	keyTokenID     = "token_id"
	fieldUserID    = "user_id"
	fieldExpiresAt = "expires_at" // TTL attribute (Unix seconds)
)

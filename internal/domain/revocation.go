package domain

// RevokedToken marks a token id as unusable until ExpiresAt (Unix seconds),
// after which the token would fail signature-time expiry checks anyway.
type RevokedToken struct {
	TokenID   string `json:"token_id" dynamodbav:"token_id"`
	UserID    int64  `json:"user_id" dynamodbav:"user_id"`
	ExpiresAt int64  `json:"expires_at" dynamodbav:"expires_at"`
}

package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-shop-api/internal/domain"
)

// itemAPI is the subset of *dynamodb.Client used by RevocationRepo.
type itemAPI interface {
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// RevocationRepo stores revoked token ids in a table whose expires_at
// attribute drives DynamoDB TTL cleanup.
type RevocationRepo struct {
	client    itemAPI
	tableName string
	now       func() time.Time
}

func NewRevocationRepo(client itemAPI, tableName string) *RevocationRepo {
	return &RevocationRepo{client: client, tableName: tableName, now: time.Now}
}

func (r *RevocationRepo) Revoke(ctx context.Context, tokenID string, userID int64, expiresAt time.Time) error {
	if !expiresAt.After(r.now()) {
		return nil
	}
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldUserID:    userID,
		fieldExpiresAt: expiresAt.Unix(),
	})
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(keyTokenID, tokenID),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsRevoked ignores items past expires_at; DynamoDB deletes expired items lazily.
func (r *RevocationRepo) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(keyTokenID, tokenID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, fmt.Errorf("lookup revoked token: %w", err)
	}
	if out.Item == nil {
		return false, nil
	}
	var rec domain.RevokedToken
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return false, fmt.Errorf("unmarshal revoked token: %w", err)
	}
	return rec.ExpiresAt > r.now().Unix(), nil
}

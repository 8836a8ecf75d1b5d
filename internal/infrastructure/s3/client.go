package s3infra

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-shop-api/internal/config"
	"github.com/go-shop-api/internal/domain"
)

// objectAPI is the subset of *s3.Client used by Store.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Store keeps account images in one bucket and hands back public URLs.
type Store struct {
	client  objectAPI
	bucket  string
	baseURL string
}

// NewClient creates an S3 client. When cfg.AWSEndpointURL is set (LocalStack),
// it overrides the endpoint and enables path-style addressing.
func NewClient(awsCfg aws.Config, cfg *config.Config) *s3.Client {
	clientOpts := []func(*s3.Options){}
	if cfg.AWSEndpointURL != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, clientOpts...)
}

// NewStore creates a Store. An empty publicBaseURL falls back to the
// virtual-hosted bucket URL for region.
func NewStore(client objectAPI, bucket, region, publicBaseURL string) *Store {
	if publicBaseURL == "" {
		publicBaseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	}
	return &Store{client: client, bucket: bucket, baseURL: strings.TrimRight(publicBaseURL, "/")}
}

// Upload streams an object to S3 under key. The returned content id is the
// object key and is what Delete expects.
func (s *Store) Upload(ctx context.Context, key string, r io.Reader, contentType string) (domain.Image, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return domain.Image{}, fmt.Errorf("s3 put object: %w", err)
	}
	return domain.Image{URL: s.baseURL + "/" + key, ContentID: key}, nil
}

// Delete removes an object by content id.
func (s *Store) Delete(ctx context.Context, contentID string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(contentID),
	})
	if err != nil {
		return fmt.Errorf("s3 delete object: %w", err)
	}
	return nil
}

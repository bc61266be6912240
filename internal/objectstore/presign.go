package objectstore

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// downloadURLTTL bounds how long a signed download link stays valid.
const downloadURLTTL = 10 * time.Minute

// URLSigner produces time-limited download URLs for stored objects.
type URLSigner interface {
	SignDownload(ctx context.Context, key string) (string, error)
}

// Presigner signs GET URLs for objects in a fixed bucket. Signing is a
// local operation; no request reaches the store.
type Presigner struct {
	bucket  string
	presign *s3.PresignClient
}

// NewPresigner returns a Presigner for bucket backed by client.
func NewPresigner(client *s3.Client, bucket string) *Presigner {
	return &Presigner{
		bucket:  bucket,
		presign: s3.NewPresignClient(client),
	}
}

// SignDownload returns a GET URL for key that expires after ten minutes.
func (p *Presigner) SignDownload(ctx context.Context, key string) (string, error) {
	req, err := p.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(downloadURLTTL))
	if err != nil {
		return "", fmt.Errorf("failed to presign download for %q: %w", key, err)
	}
	return req.URL, nil
}

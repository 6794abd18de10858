package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const snapshotContentType = "application/x-ndjson"

// keyStampLayout names snapshot objects so they sort chronologically in a
// bucket listing.
const keyStampLayout = "20060102T150405Z"

// S3Destination keeps a history of roster snapshots under a key prefix.
// Each export is written twice: once under a timestamped key, so consecutive
// snapshots never overwrite each other, and once as a stable "latest" alias
// that resyncing tooling can fetch without listing the bucket.
type S3Destination struct {
	client *s3.Client
	bucket string
	prefix string

	now func() time.Time // replaced in tests
}

// NewS3Destination creates a destination rooted at prefix inside bucket. If
// endpoint is non-empty, path-style addressing is enabled (for MinIO and
// similar).
func NewS3Destination(ctx context.Context, bucket, prefix, region, endpoint string) (*S3Destination, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Destination{
		client: s3.NewFromConfig(cfg, s3opts...),
		bucket: bucket,
		prefix: prefix,
		now:    time.Now,
	}, nil
}

// objectKey is the immutable per-snapshot key, e.g.
// "opssync/snapshots/roster-20260829T120000Z.jsonl".
func (d *S3Destination) objectKey(at time.Time) string {
	return path.Join(d.prefix, "roster-"+at.UTC().Format(keyStampLayout)+".jsonl")
}

// latestKey is the alias overwritten on every export.
func (d *S3Destination) latestKey() string {
	return path.Join(d.prefix, "roster-latest.jsonl")
}

// Write uploads the snapshot under both its timestamped key and the latest
// alias. The timestamped object is written first so that history is never
// missing an export the alias already points at.
func (d *S3Destination) Write(ctx context.Context, data []byte) error {
	for _, key := range []string{d.objectKey(d.now()), d.latestKey()} {
		_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(d.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(snapshotContentType),
		})
		if err != nil {
			return fmt.Errorf("s3 put %s: %w", key, err)
		}
	}
	return nil
}

package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Client is the subset of *s3.Client the store uses.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// expiresMetadata is the object metadata key holding the expiry in Unix milliseconds.
const expiresMetadata = "liveview-expires-at"

// S3Store keeps session state as S3 objects, one per session.
//
// S3 has no per-object TTL, so the expiry is stored in object metadata and
// checked on Load; expired objects are deleted lazily. Pair the bucket with a
// lifecycle rule on the prefix to reclaim objects that are never loaded again.
//
// Example usage:
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	store := session.NewS3Store(s3.NewFromConfig(cfg), "my-bucket", "sessions/")
type S3Store struct {
	client S3Client
	bucket string
	prefix string
	now    func() time.Time
	closed atomic.Bool
}

// NewS3Store creates a new S3-backed store.
//
// Parameters:
//   - client: S3 client from aws-sdk-go-v2
//   - bucket: S3 bucket name
//   - prefix: key prefix for session objects (e.g., "sessions/")
func NewS3Store(client S3Client, bucket, prefix string) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: prefix,
		now:    time.Now,
	}
}

// WithClock sets the time source used for expiry.
func (s *S3Store) WithClock(now func() time.Time) *S3Store {
	s.now = now
	return s
}

func (s *S3Store) key(id string) *string {
	return aws.String(s.prefix + id)
}

// Save uploads data with its expiry in the object metadata.
func (s *S3Store) Save(ctx context.Context, id string, data []byte, ttl time.Duration) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if ttl <= 0 {
		return s.Delete(ctx, id)
	}

	expiresAt := s.now().Add(ttl)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         s.key(id),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/cbor"),
		Metadata: map[string]string{
			expiresMetadata: strconv.FormatInt(expiresAt.UnixMilli(), 10),
		},
	})
	if err != nil {
		return fmt.Errorf("session: s3 put %s: %w", id, err)
	}
	return nil
}

// Load downloads data if the object exists and hasn't expired.
func (s *S3Store) Load(ctx context.Context, id string) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    s.key(id),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, nil
		}
		return nil, fmt.Errorf("session: s3 get %s: %w", id, err)
	}
	defer out.Body.Close()

	if raw, ok := out.Metadata[expiresMetadata]; ok {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || !s.now().Before(time.UnixMilli(ms)) {
			if err := s.Delete(ctx, id); err != nil {
				return nil, err
			}
			return nil, nil
		}
	}

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("session: s3 read %s: %w", id, err)
	}
	return data, nil
}

// Delete removes the object. Deleting a missing key is not an error in S3.
func (s *S3Store) Delete(ctx context.Context, id string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    s.key(id),
	})
	if err != nil {
		return fmt.Errorf("session: s3 delete %s: %w", id, err)
	}
	return nil
}

// Close marks the store as closed.
func (s *S3Store) Close() error {
	s.closed.Store(true)
	return nil
}

package state

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// metaExpiresAt is the S3 object metadata key holding the snapshot
// expiration time as RFC 3339. S3 lowercases metadata keys, so the
// constant is already lowercase.
const metaExpiresAt = "expires-at"

// S3Client is the subset of the AWS S3 API used by S3Store. It is
// satisfied by *s3.Client.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store persists snapshots as S3 objects, one object per session,
// keyed as prefix+sessionID. The expiration time rides along as object
// metadata; expired objects are filtered on Load and removed by Cleanup.
//
// Example usage:
//
//	cfg, _ := config.LoadDefaultConfig(context.Background())
//	store := state.NewS3Store(s3.NewFromConfig(cfg), "recce-snapshots")
type S3Store struct {
	client S3Client
	bucket string
	prefix string
	closed bool
}

// S3StoreOption configures S3Store behavior.
type S3StoreOption func(*S3Store)

// WithS3Prefix sets the key prefix for snapshot objects.
// Default: "snapshots/".
func WithS3Prefix(prefix string) S3StoreOption {
	return func(s *S3Store) {
		s.prefix = prefix
	}
}

// NewS3Store creates a new S3-backed snapshot store.
func NewS3Store(client S3Client, bucket string, opts ...S3StoreOption) *S3Store {
	store := &S3Store{
		client: client,
		bucket: bucket,
		prefix: "snapshots/",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *S3Store) key(sessionID string) string {
	return s.prefix + sessionID
}

// Save uploads snapshot data with the expiration time in object metadata.
func (s *S3Store) Save(ctx context.Context, sessionID string, data []byte, expiresAt time.Time) error {
	if s.closed {
		return ErrStoreClosed{}
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(sessionID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			metaExpiresAt: expiresAt.UTC().Format(time.RFC3339),
		},
	})
	return err
}

// Load retrieves snapshot data if the object exists and hasn't expired.
// Expired objects are deleted in the background and reported as missing.
func (s *S3Store) Load(ctx context.Context, sessionID string) ([]byte, error) {
	if s.closed {
		return nil, ErrStoreClosed{}
	}

	key := s.key(sessionID)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	defer out.Body.Close()

	if s3Expired(out.Metadata) {
		go s.deleteKey(key)
		return nil, nil
	}

	return io.ReadAll(out.Body)
}

// Delete removes a snapshot object.
func (s *S3Store) Delete(ctx context.Context, sessionID string) error {
	if s.closed {
		return ErrStoreClosed{}
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(sessionID)),
	})
	return err
}

// Touch rewrites the expiration metadata via a same-key copy, leaving
// the object body untouched. Missing snapshots are a no-op, matching
// the other store implementations.
func (s *S3Store) Touch(ctx context.Context, sessionID string, expiresAt time.Time) error {
	if s.closed {
		return ErrStoreClosed{}
	}

	key := s.key(sessionID)
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(s.bucket),
		CopySource:        aws.String(s.bucket + "/" + key),
		Key:               aws.String(key),
		ContentType:       aws.String("application/json"),
		MetadataDirective: types.MetadataDirectiveReplace,
		Metadata: map[string]string{
			metaExpiresAt: expiresAt.UTC().Format(time.RFC3339),
		},
	})
	if err != nil && isS3NotFound(err) {
		return nil
	}
	return err
}

// SaveAll uploads multiple snapshots. S3 has no batch put, so this is a
// sequential loop that stops at the first failure.
func (s *S3Store) SaveAll(ctx context.Context, snapshots map[string]SnapshotData) error {
	if s.closed {
		return ErrStoreClosed{}
	}

	for id, sd := range snapshots {
		if err := s.Save(ctx, id, sd.Data, sd.ExpiresAt); err != nil {
			return err
		}
	}
	return nil
}

// Close marks the store as closed. The S3 client is not owned by the
// store and stays open.
func (s *S3Store) Close() error {
	s.closed = true
	return nil
}

// Cleanup scans the prefix and removes expired snapshot objects. Unlike
// the SQL and memory stores there is no background loop; call this from
// a scheduled job.
func (s *S3Store) Cleanup(ctx context.Context) error {
	if s.closed {
		return ErrStoreClosed{}
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	var toDelete []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}

		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    obj.Key,
			})
			if err != nil {
				continue
			}
			if s3Expired(head.Metadata) {
				toDelete = append(toDelete, *obj.Key)
			}
		}
	}

	for _, key := range toDelete {
		s.deleteKey(key)
	}
	return nil
}

func (s *S3Store) deleteKey(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
}

// s3Expired reports whether the object metadata carries an expiration
// time in the past. Objects without parseable expiry metadata are kept.
func s3Expired(metadata map[string]string) bool {
	raw, ok := metadata[metaExpiresAt]
	if !ok {
		return false
	}
	expiresAt, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return false
	}
	return time.Now().After(expiresAt)
}

// isS3NotFound reports whether err is any of the S3 missing-object errors.
func isS3NotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	return errors.As(err, &notFound)
}

package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/pitchtrack/internal/config"
)

const frameContentType = "image/jpeg"

// MinIOStore keeps extracted match frames in one bucket, one prefix per match.
type MinIOStore struct {
	client *minio.Client
	bucket string
}

func NewMinIOStore(cfg config.MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinIOStore{client: client, bucket: cfg.Bucket}, nil
}

// FrameKey is the object key of one extracted frame. Indices are zero-padded
// so lexical key order is frame order.
func FrameKey(matchID string, frameIndex int) string {
	return fmt.Sprintf("%s%08d.jpg", FramePrefix(matchID), frameIndex)
}

// FramePrefix is the key prefix of every frame of a match.
func FramePrefix(matchID string) string {
	return "frames/" + matchID + "/"
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// PutFrame uploads one encoded frame.
func (s *MinIOStore) PutFrame(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: frameContentType,
	})
	if err != nil {
		return fmt.Errorf("put frame %s: %w", key, err)
	}
	return nil
}

// GetFrame downloads one encoded frame.
func (s *MinIOStore) GetFrame(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get frame %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read frame %s: %w", key, err)
	}
	return data, nil
}

// PruneFrames keeps the newest keep frames of a match and deletes the rest.
// It returns the number of deleted objects.
func (s *MinIOStore) PruneFrames(ctx context.Context, matchID string, keep int) (int, error) {
	keys, err := s.listKeys(ctx, FramePrefix(matchID))
	if err != nil {
		return 0, err
	}
	return s.removeKeys(ctx, StaleKeys(keys, keep))
}

// DeleteFrames removes every stored frame of a match.
func (s *MinIOStore) DeleteFrames(ctx context.Context, matchID string) (int, error) {
	keys, err := s.listKeys(ctx, FramePrefix(matchID))
	if err != nil {
		return 0, err
	}
	return s.removeKeys(ctx, keys)
}

// StaleKeys returns every key except the keep lexically greatest ones.
func StaleKeys(keys []string, keep int) []string {
	if keep < 0 || len(keys) <= keep {
		return nil
	}
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	return sorted[:len(sorted)-keep]
}

// Ping checks MinIO connectivity.
func (s *MinIOStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

func (s *MinIOStore) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// removeKeys deletes keys in one batch request.
func (s *MinIOStore) removeKeys(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	objects := make(chan minio.ObjectInfo, len(keys))
	for _, key := range keys {
		objects <- minio.ObjectInfo{Key: key}
	}
	close(objects)

	for res := range s.client.RemoveObjects(ctx, s.bucket, objects, minio.RemoveObjectsOptions{}) {
		if res.Err != nil {
			return 0, fmt.Errorf("delete %s: %w", res.ObjectName, res.Err)
		}
	}
	return len(keys), nil
}

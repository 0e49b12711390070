package snapshot

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"
)

const digestSize = 32

var ErrCorrupt = errors.New("snapshot archive corrupt")

// ArchiveConfig locates the object storage bucket used for archived snapshots.
type ArchiveConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// ArchiveStore keeps xz-compressed snapshots in an S3-compatible bucket. Every
// object body starts with the BLAKE3 digest of the snapshot, checked on load.
type ArchiveStore struct {
	client *minio.Client
	bucket string
}

func NewArchiveStore(ctx context.Context, cfg ArchiveConfig) (*ArchiveStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &ArchiveStore{client: client, bucket: cfg.Bucket}, nil
}

func objectKey(documentID string) string {
	return "snapshots/" + documentID + ".json.xz"
}

func (s *ArchiveStore) Save(ctx context.Context, documentID string, data []byte) error {
	body, digest, err := pack(data)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucket, objectKey(documentID), bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType:  "application/x-xz",
		UserMetadata: map[string]string{"blake3": digest},
	})
	if err != nil {
		return fmt.Errorf("put snapshot object: %w", err)
	}
	return nil
}

func (s *ArchiveStore) Load(ctx context.Context, documentID string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectKey(documentID), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get snapshot object: %w", err)
	}
	defer obj.Close()

	body, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read snapshot object: %w", err)
	}
	return unpack(body)
}

func (s *ArchiveStore) Delete(ctx context.Context, documentID string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, objectKey(documentID), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove snapshot object: %w", err)
	}
	return nil
}

// pack compresses digest||data and returns the body with the hex digest.
func pack(data []byte) ([]byte, string, error) {
	sum := blake3.Sum256(data)

	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, "", fmt.Errorf("create xz writer: %w", err)
	}
	if _, err := w.Write(sum[:]); err != nil {
		return nil, "", fmt.Errorf("compress snapshot: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, "", fmt.Errorf("compress snapshot: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("finish xz stream: %w", err)
	}
	return buf.Bytes(), hex.EncodeToString(sum[:]), nil
}

func unpack(body []byte) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if len(raw) < digestSize {
		return nil, fmt.Errorf("%w: missing digest", ErrCorrupt)
	}
	data := raw[digestSize:]
	sum := blake3.Sum256(data)
	if !bytes.Equal(sum[:], raw[:digestSize]) {
		return nil, fmt.Errorf("%w: digest mismatch", ErrCorrupt)
	}
	return data, nil
}

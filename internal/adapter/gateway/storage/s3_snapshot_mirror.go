package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/scottlz0310/ci-helper/internal/application/port/output"
)

// S3SnapshotMirror implements output.SnapshotMirror against AWS S3.
// Bucket layout: s3://<bucket>/<prefix>/snapshots/<snapshotID>/
//   - manifest.json: the snapshot manifest, verbatim
//   - files/<storedPath>: raw bytes of each recorded file
type S3SnapshotMirror struct {
	client S3API
	bucket string
	prefix string
}

// S3Config holds S3 snapshot mirror configuration.
type S3Config struct {
	BucketName string
	Prefix     string
	Region     string // optional, uses the SDK default chain if empty
}

// NewS3SnapshotMirror creates a mirror backed by the default AWS
// credential chain.
func NewS3SnapshotMirror(cfg S3Config) (*S3SnapshotMirror, error) {
	awsCfg, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	if cfg.Region != "" {
		awsCfg.Region = cfg.Region
	}
	return &S3SnapshotMirror{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.BucketName,
		prefix: cfg.Prefix,
	}, nil
}

// NewS3SnapshotMirrorWithClient creates a mirror with a custom S3 client.
// This is primarily used for testing with MockS3Client.
func NewS3SnapshotMirrorWithClient(client S3API, bucket, prefix string) *S3SnapshotMirror {
	return &S3SnapshotMirror{client: client, bucket: bucket, prefix: prefix}
}

// SaveSnapshot uploads the manifest plus every file payload.
func (m *S3SnapshotMirror) SaveSnapshot(ctx context.Context, req output.SaveSnapshotRequest) (*output.MirrorEntry, error) {
	if req.SnapshotID == "" {
		return nil, fmt.Errorf("snapshot id is empty")
	}

	manifestKey := m.buildKey(req.SnapshotID, "manifest.json")
	if _, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(manifestKey),
		Body:        bytes.NewReader(req.Manifest),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return nil, fmt.Errorf("upload manifest: %w", err)
	}

	// Deterministic upload order so retries after a partial failure
	// overwrite the same keys first.
	paths := make([]string, 0, len(req.Files))
	for p := range req.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var total int64 = int64(len(req.Manifest))
	for _, p := range paths {
		data := req.Files[p]
		key := m.buildKey(req.SnapshotID, "files/"+p)
		if _, err := m.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(m.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/octet-stream"),
		}); err != nil {
			return nil, fmt.Errorf("upload file %s: %w", p, err)
		}
		total += int64(len(data))
	}

	sum := sha256.Sum256(req.Manifest)
	return &output.MirrorEntry{
		SnapshotID:  req.SnapshotID,
		StoragePath: fmt.Sprintf("s3://%s/%s", m.bucket, m.buildKey(req.SnapshotID, "")),
		Size:        total,
		MirroredAt:  time.Now().UTC(),
		SHA256:      hex.EncodeToString(sum[:]),
	}, nil
}

// LoadSnapshot fetches a mirrored snapshot back.
func (m *S3SnapshotMirror) LoadSnapshot(ctx context.Context, snapshotID string) (*output.MirroredSnapshot, error) {
	manifest, err := m.getObject(ctx, m.buildKey(snapshotID, "manifest.json"))
	if err != nil {
		return nil, fmt.Errorf("fetch manifest for %s: %w", snapshotID, err)
	}

	filesPrefix := m.buildKey(snapshotID, "files/")
	keys, err := m.listKeys(ctx, filesPrefix)
	if err != nil {
		return nil, fmt.Errorf("list files for %s: %w", snapshotID, err)
	}

	files := make(map[string][]byte, len(keys))
	var total int64 = int64(len(manifest))
	for _, key := range keys {
		data, err := m.getObject(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", key, err)
		}
		files[strings.TrimPrefix(key, filesPrefix)] = data
		total += int64(len(data))
	}

	sum := sha256.Sum256(manifest)
	return &output.MirroredSnapshot{
		Entry: output.MirrorEntry{
			SnapshotID:  snapshotID,
			StoragePath: fmt.Sprintf("s3://%s/%s", m.bucket, m.buildKey(snapshotID, "")),
			Size:        total,
			SHA256:      hex.EncodeToString(sum[:]),
		},
		Manifest: manifest,
		Files:    files,
	}, nil
}

// ListSnapshots enumerates mirrored snapshots by their manifest objects.
func (m *S3SnapshotMirror) ListSnapshots(ctx context.Context) ([]output.MirrorEntry, error) {
	base := m.basePrefix()
	keys, err := m.listKeys(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	var entries []output.MirrorEntry
	for _, key := range keys {
		if !strings.HasSuffix(key, "/manifest.json") {
			continue
		}
		rest := strings.TrimPrefix(key, base)
		id := strings.TrimSuffix(rest, "/manifest.json")
		entries = append(entries, output.MirrorEntry{
			SnapshotID:  id,
			StoragePath: fmt.Sprintf("s3://%s/%s", m.bucket, m.buildKey(id, "")),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].SnapshotID < entries[j].SnapshotID })
	return entries, nil
}

// DeleteSnapshot removes every object under the snapshot's prefix.
func (m *S3SnapshotMirror) DeleteSnapshot(ctx context.Context, snapshotID string) error {
	keys, err := m.listKeys(ctx, m.buildKey(snapshotID, ""))
	if err != nil {
		return fmt.Errorf("list objects for %s: %w", snapshotID, err)
	}
	for _, key := range keys {
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.bucket),
			Key:    aws.String(key),
		}); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return nil
}

func (m *S3SnapshotMirror) getObject(ctx context.Context, key string) ([]byte, error) {
	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (m *S3SnapshotMirror) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var token *string
	for {
		out, err := m.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(m.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, err
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}
	return keys, nil
}

func (m *S3SnapshotMirror) basePrefix() string {
	if m.prefix == "" {
		return "snapshots/"
	}
	return strings.TrimSuffix(m.prefix, "/") + "/snapshots/"
}

func (m *S3SnapshotMirror) buildKey(snapshotID, rest string) string {
	key := m.basePrefix() + snapshotID
	if rest == "" {
		return key + "/"
	}
	return key + "/" + rest
}

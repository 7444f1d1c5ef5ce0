package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ellavondegurechaff/slotkeeper/internal/domain/slots"
)

const latestName = "latest.json"

// ObjectStore is the part of the S3 client the backups use.
type ObjectStore interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// SnapshotSource produces the snapshot to back up; slots.Controller implements it.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*slots.Snapshot, error)
}

// SpacesBackup keeps timestamped snapshot copies in a DigitalOcean Spaces bucket.
type SpacesBackup struct {
	client ObjectStore
	bucket string
	prefix string
	now    func() time.Time
}

func NewSpacesBackup(ctx context.Context, key, secret, region, bucket, prefix string) (*SpacesBackup, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: fmt.Sprintf("https://%s.digitaloceanspaces.com", region),
		}, nil
	})

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithEndpointResolverWithOptions(resolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(key, secret, "")),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load Spaces config: %w", err)
	}
	return NewSpacesBackupWithClient(s3.NewFromConfig(cfg), bucket, prefix), nil
}

func NewSpacesBackupWithClient(client ObjectStore, bucket, prefix string) *SpacesBackup {
	return &SpacesBackup{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		now:    time.Now,
	}
}

func (b *SpacesBackup) key(name string) string {
	if b.prefix == "" {
		return name
	}
	return path.Join(b.prefix, name)
}

// Upload stores the snapshot under a timestamped key and as latest.json.
func (b *SpacesBackup) Upload(ctx context.Context, snap *slots.Snapshot) (string, error) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	key := b.key(fmt.Sprintf("slots-%s.json", b.now().UTC().Format("20060102T150405Z")))
	for _, k := range []string{key, b.key(latestName)} {
		_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(b.bucket),
			Key:         aws.String(k),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			return "", fmt.Errorf("upload %s: %w", k, err)
		}
	}

	slog.Info("Snapshot backed up",
		slog.String("type", "sys"),
		slog.String("bucket", b.bucket),
		slog.String("key", key),
		slog.Int("active", len(snap.Active)),
		slog.Int("revoked", len(snap.Revoked)),
	)
	return key, nil
}

// Download fetches a snapshot. An empty key fetches latest.json.
func (b *SpacesBackup) Download(ctx context.Context, key string) (*slots.Snapshot, error) {
	if key == "" {
		key = b.key(latestName)
	}
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	var snap slots.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", key, err)
	}
	return &snap, nil
}

// List returns the timestamped backup keys, newest first.
func (b *SpacesBackup) List(ctx context.Context) ([]string, error) {
	prefix := b.key("slots-")
	var keys []string
	var token *string
	for {
		out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(b.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list backups: %w", err)
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	return keys, nil
}

// Job returns a scheduler task that backs up src.
func (b *SpacesBackup) Job(src SnapshotSource) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		snap, err := src.Snapshot(ctx)
		if err != nil {
			return err
		}
		_, err = b.Upload(ctx, snap)
		return err
	}
}

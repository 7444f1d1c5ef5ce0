package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"reflect"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/ellavondegurechaff/slotkeeper/internal/domain/slots"
)

type fakeObjectStore struct {
	objects map[string][]byte
	putErr  error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (f *fakeObjectStore) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjectStore) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeObjectStore) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

type snapshotFunc func(ctx context.Context) (*slots.Snapshot, error)

func (f snapshotFunc) Snapshot(ctx context.Context) (*slots.Snapshot, error) { return f(ctx) }

func testSnapshot() *slots.Snapshot {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return slots.NewSnapshot([]*slots.Slot{
		{
			OwnerID:        "100",
			Status:         slots.StatusActive,
			ChannelRef:     "900",
			Plan:           slots.PlanElite,
			StartTime:      start,
			EndTime:        start.Add(30 * 24 * time.Hour),
			RecoverySecret: "ABCDEFGHJKLMNPQR",
			UpdatedAt:      start,
		},
		{
			OwnerID:      "200",
			Status:       slots.StatusRevoked,
			ChannelRef:   "901",
			Plan:         slots.PlanStandard,
			StartTime:    start,
			EndTime:      start.Add(24 * time.Hour),
			RevokedAt:    start.Add(24 * time.Hour),
			RevokeReason: slots.ReasonExpired,
			UpdatedAt:    start,
		},
	}, start)
}

func TestSpacesBackup_UploadAndDownload(t *testing.T) {
	store := newFakeObjectStore()
	b := NewSpacesBackupWithClient(store, "bucket", "/slotkeeper/backups/")
	b.now = func() time.Time { return time.Date(2024, 3, 2, 6, 30, 0, 0, time.UTC) }

	snap := testSnapshot()
	key, err := b.Upload(context.Background(), snap)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if want := "slotkeeper/backups/slots-20240302T063000Z.json"; key != want {
		t.Errorf("Upload() got = %v, want %v", key, want)
	}
	if _, ok := store.objects["slotkeeper/backups/latest.json"]; !ok {
		t.Errorf("Upload() did not write latest.json")
	}

	tests := []struct {
		name string
		key  string
	}{
		{name: "latest", key: ""},
		{name: "timestamped", key: key},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.Download(context.Background(), tt.key)
			if err != nil {
				t.Fatalf("Download() error = %v", err)
			}
			if !reflect.DeepEqual(got.Active, snap.Active) {
				t.Errorf("Download() active got = %v, want %v", got.Active, snap.Active)
			}
			if !reflect.DeepEqual(got.Revoked, snap.Revoked) {
				t.Errorf("Download() revoked got = %v, want %v", got.Revoked, snap.Revoked)
			}
		})
	}
}

func TestSpacesBackup_DownloadMissing(t *testing.T) {
	b := NewSpacesBackupWithClient(newFakeObjectStore(), "bucket", "backups")
	if _, err := b.Download(context.Background(), ""); err == nil {
		t.Errorf("Download() error = nil, want error")
	}
}

func TestSpacesBackup_List(t *testing.T) {
	store := newFakeObjectStore()
	store.objects["backups/slots-20240101T000000Z.json"] = []byte("{}")
	store.objects["backups/slots-20240301T000000Z.json"] = []byte("{}")
	store.objects["backups/latest.json"] = []byte("{}")
	store.objects["other/slots-20240401T000000Z.json"] = []byte("{}")

	b := NewSpacesBackupWithClient(store, "bucket", "backups")
	got, err := b.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"backups/slots-20240301T000000Z.json", "backups/slots-20240101T000000Z.json"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("List() got = %v, want %v", got, want)
	}
}

func TestSpacesBackup_Job(t *testing.T) {
	tests := []struct {
		name    string
		src     snapshotFunc
		putErr  error
		wantErr bool
		objects int
	}{
		{
			name:    "uploads snapshot",
			src:     func(context.Context) (*slots.Snapshot, error) { return testSnapshot(), nil },
			objects: 2,
		},
		{
			name:    "snapshot failure",
			src:     func(context.Context) (*slots.Snapshot, error) { return nil, slots.ErrStoreIO },
			wantErr: true,
		},
		{
			name:    "upload failure",
			src:     func(context.Context) (*slots.Snapshot, error) { return testSnapshot(), nil },
			putErr:  errors.New("503"),
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeObjectStore()
			store.putErr = tt.putErr
			b := NewSpacesBackupWithClient(store, "bucket", "backups")

			err := b.Job(tt.src)(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Job() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(store.objects) != tt.objects {
				t.Errorf("Job() objects got = %v, want %v", len(store.objects), tt.objects)
			}
		})
	}
}

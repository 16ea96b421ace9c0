package storage

import (
	"context"
	"io"
	"testing"

	"github.com/mategroup/sso/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	bucket string
	puts   []string
}

func (s *stubBackend) EnsureBucket(context.Context) error { return nil }

func (s *stubBackend) Put(_ context.Context, key string, _ io.Reader, _ int64, _ string) error {
	s.puts = append(s.puts, key)
	return nil
}

func (s *stubBackend) Delete(context.Context, string) error { return nil }

func (s *stubBackend) PublicURL(key string) string { return "backend://" + key }

func (s *stubBackend) Bucket() string { return s.bucket }

func TestStoragePublicURL(t *testing.T) {
	backend := &stubBackend{bucket: "mategroup_profiles"}

	plain := NewStorage(backend, "")
	assert.Equal(t, "backend://users/u1/1.png", plain.PublicURL("users/u1/1.png"))

	based := NewStorage(backend, "https://proj.supabase.co/storage/v1/object/public/")
	assert.Equal(t,
		"https://proj.supabase.co/storage/v1/object/public/mategroup_profiles/users/u1/1.png",
		based.PublicURL("users/u1/1.png"),
	)
}

func TestMinioPublicURL(t *testing.T) {
	client, err := NewMinioClient(config.MinioConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	}, "profiles")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/profiles/users/u1/1.png", client.PublicURL("users/u1/1.png"))
}

func TestNewMinioClientValidation(t *testing.T) {
	_, err := NewMinioClient(config.MinioConfig{Endpoint: "localhost:9000"}, "profiles")
	require.Error(t, err)

	_, err = NewMinioClient(config.MinioConfig{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b"}, "")
	require.Error(t, err)
}

func TestNewS3Client(t *testing.T) {
	client, err := NewS3Client(context.Background(), config.S3Config{
		Endpoint:  "https://proj.supabase.co/storage/v1/s3",
		Region:    "us-east-1",
		AccessKey: "key",
		SecretKey: "secret",
	}, "profiles")
	require.NoError(t, err)
	assert.Equal(t, "profiles", client.Bucket())
	assert.Equal(t, "https://proj.supabase.co/storage/v1/s3/profiles/a.png", client.PublicURL("a.png"))

	_, err = NewS3Client(context.Background(), config.S3Config{}, "profiles")
	require.Error(t, err)
}

func TestNewUnknownBackend(t *testing.T) {
	_, err := New(context.Background(), config.StorageConfig{Backend: "ftp", Bucket: "b"})
	require.Error(t, err)
}

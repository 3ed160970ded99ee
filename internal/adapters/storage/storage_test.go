package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/intake-pipeline/config"
	apperrors "github.com/target/intake-pipeline/internal/errors"
)

type fakePut struct {
	key         string
	contentType string
	body        []byte
	err         error
}

func (f *fakePut) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.key = aws.ToString(in.Key)
	f.contentType = aws.ToString(in.ContentType)
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

type fakePresigner struct {
	expires time.Duration
}

func (f *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	f.expires = opts.Expires
	return &v4.PresignedHTTPRequest{URL: "https://signed.example.com/" + aws.ToString(in.Key) + "?X-Amz-Signature=abc"}, nil
}

func TestS3Store_PresignsByDefault(t *testing.T) {
	put, presigner := &fakePut{}, &fakePresigner{}
	store, err := NewS3Store(context.Background(), S3StoreOptions{
		Config:    config.StorageConfig{Bucket: "reports", Prefix: "assessments", PresignTTL: time.Hour},
		Client:    put,
		Presigner: presigner,
	})
	require.NoError(t, err)

	url, err := store.Store(context.Background(), "reports/a1.html", []byte("<html/>"), "text/html")
	require.NoError(t, err)

	assert.Equal(t, "assessments/reports/a1.html", put.key)
	assert.Equal(t, "text/html", put.contentType)
	assert.Equal(t, []byte("<html/>"), put.body)
	assert.Equal(t, time.Hour, presigner.expires)
	assert.Equal(t, "https://signed.example.com/assessments/reports/a1.html?X-Amz-Signature=abc", url)
}

func TestS3Store_PublicBaseURL(t *testing.T) {
	store, err := NewS3Store(context.Background(), S3StoreOptions{
		Config: config.StorageConfig{Bucket: "reports", PublicBaseURL: "https://cdn.example.com/"},
		Client: &fakePut{},
	})
	require.NoError(t, err)

	url, err := store.Store(context.Background(), "reports/a b.html", []byte("x"), "text/html")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/reports/a%20b.html", url)
}

func TestS3Store_UploadErrorIsTransient(t *testing.T) {
	store, err := NewS3Store(context.Background(), S3StoreOptions{
		Config:    config.StorageConfig{Bucket: "reports"},
		Client:    &fakePut{err: errors.New("slow down")},
		Presigner: &fakePresigner{},
	})
	require.NoError(t, err)

	_, err = store.Store(context.Background(), "reports/a1.html", []byte("x"), "text/html")
	assert.True(t, apperrors.IsTransient(err))
}

func TestS3Store_RejectsBadKeys(t *testing.T) {
	store, err := NewS3Store(context.Background(), S3StoreOptions{
		Config:    config.StorageConfig{Bucket: "reports"},
		Client:    &fakePut{},
		Presigner: &fakePresigner{},
	})
	require.NoError(t, err)

	for _, key := range []string{"", "  ", "../etc/passwd"} {
		_, err := store.Store(context.Background(), key, nil, "text/plain")
		assert.True(t, apperrors.IsTerminal(err), key)
	}
}

func TestNewS3Store_Validation(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3StoreOptions{Client: &fakePut{}})
	require.Error(t, err)

	_, err = NewS3Store(context.Background(), S3StoreOptions{
		Config: config.StorageConfig{Bucket: "reports"},
		Client: &fakePut{},
	})
	require.Error(t, err)
}

func TestLocalStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "http://localhost:8080/reports/")
	require.NoError(t, err)

	url, err := store.Store(context.Background(), "reports/a1.html", []byte("<p>hi</p>"), "text/html")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/reports/reports/a1.html", url)

	got, err := os.ReadFile(filepath.Join(dir, "reports", "a1.html"))
	require.NoError(t, err)
	assert.Equal(t, "<p>hi</p>", string(got))

	// Overwrites are allowed so regenerated reports replace earlier ones.
	_, err = store.Store(context.Background(), "reports/a1.html", []byte("v2"), "text/html")
	require.NoError(t, err)
	got, _ = os.ReadFile(filepath.Join(dir, "reports", "a1.html"))
	assert.Equal(t, "v2", string(got))
}

func TestLocalStore_RejectsEscapes(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "file://reports")
	require.NoError(t, err)

	for _, key := range []string{"", "../x", "a/../../x"} {
		_, err := store.Store(context.Background(), key, []byte("x"), "text/plain")
		assert.True(t, apperrors.IsTerminal(err), key)
	}
}

func TestNewLocalStore_RequiresDir(t *testing.T) {
	_, err := NewLocalStore(" ", "")
	require.Error(t, err)
}

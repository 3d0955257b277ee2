package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powerhouse-manager/internal/config"
)

// fakeS3 是只实现 Head/Get/Put/Delete/ListObjectsV2 的内存 S3 传输层
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
}

type fakeObject struct {
	body        []byte
	contentType string
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	empty := func(status int) *http.Response {
		return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}
	}

	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		prefix := req.URL.Query().Get("prefix")
		var keys []string
		for k := range f.objects {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString(`<?xml version="1.0"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
		for _, k := range keys {
			fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>", k, len(f.objects[k].body))
		}
		b.WriteString("</ListBucketResult>")
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(b.String())),
			Header: http.Header{"Content-Type": {"application/xml"}}}, nil
	}

	switch req.Method {
	case http.MethodHead:
		obj, ok := f.objects[key]
		if !ok {
			return empty(http.StatusNotFound), nil
		}
		resp := empty(http.StatusOK)
		resp.Header.Set("Content-Length", fmt.Sprint(len(obj.body)))
		resp.Header.Set("Content-Type", obj.contentType)
		return resp, nil
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		f.objects[key] = fakeObject{body: body, contentType: req.Header.Get("Content-Type")}
		resp := empty(http.StatusOK)
		resp.Header.Set("ETag", `"etag"`)
		return resp, nil
	case http.MethodGet:
		obj, ok := f.objects[key]
		if !ok {
			return &http.Response{StatusCode: http.StatusNotFound,
				Body:   io.NopCloser(strings.NewReader(`<Error><Code>NoSuchKey</Code></Error>`)),
				Header: http.Header{"Content-Type": {"application/xml"}}}, nil
		}
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(obj.body)), Header: http.Header{
			"Content-Length": {fmt.Sprint(len(obj.body))},
			"Content-Type":   {obj.contentType},
			"Last-Modified":  {time.Now().UTC().Format(http.TimeFormat)},
		}}, nil
	case http.MethodDelete:
		delete(f.objects, key)
		return empty(http.StatusNoContent), nil
	}
	return empty(http.StatusNotImplemented), nil
}

func newFakeS3Store(t *testing.T) *S3Store {
	t.Helper()
	s, err := newS3Store(context.Background(), config.S3Config{
		Bucket:          "phm-test",
		Region:          "us-east-1",
		Endpoint:        "https://mock.s3.local",
		PathStyle:       true,
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
	}, &http.Client{Transport: &fakeS3{objects: make(map[string]fakeObject)}})
	require.NoError(t, err)
	return s
}

func stores(t *testing.T) map[string]Store {
	fsStore, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"fs":     fsStore,
		"s3":     newFakeS3Store(t),
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			info, err := s.Put(ctx, "backups/0001.json", strings.NewReader(`{"users":[]}`), PutOptions{ContentType: "application/json"})
			require.NoError(t, err)
			assert.Equal(t, int64(12), info.Size)

			_, err = s.Put(ctx, "backups/0001.json", strings.NewReader("again"), PutOptions{})
			assert.ErrorIs(t, err, ErrExists)

			_, err = s.Put(ctx, "backups/0002.json", strings.NewReader(`{}`), PutOptions{})
			require.NoError(t, err)
			_, err = s.Put(ctx, "exports/a.csv", strings.NewReader("x"), PutOptions{ContentType: "text/csv"})
			require.NoError(t, err)

			list, err := s.List(ctx, "backups/")
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "backups/0001.json", list[0].Key)
			assert.Equal(t, "backups/0002.json", list[1].Key)

			got, rc, err := s.Get(ctx, "backups/0001.json")
			require.NoError(t, err)
			body, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			assert.Equal(t, `{"users":[]}`, string(body))
			assert.Equal(t, "application/json", got.ContentType)

			require.NoError(t, s.Delete(ctx, "backups/0001.json"))
			_, _, err = s.Get(ctx, "backups/0001.json")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestFSStoreRejectsTraversal(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	_, err = s.Put(context.Background(), "../escape", strings.NewReader("x"), PutOptions{})
	assert.Error(t, err)
	_, err = s.Put(context.Background(), "/abs", strings.NewReader("x"), PutOptions{})
	assert.Error(t, err)
}

func TestPresign(t *testing.T) {
	ctx := context.Background()
	url, err := newFakeS3Store(t).PresignURL(ctx, "exports/a.csv", time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "exports/a.csv")
	assert.Contains(t, url, "X-Amz-Signature")

	_, err = NewMemoryStore().PresignURL(ctx, "x", time.Minute)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, config.BlobConfig{Driver: "none"})
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = Open(ctx, config.BlobConfig{Driver: "fs", FSRoot: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, s.Driver())

	_, err = Open(ctx, config.BlobConfig{Driver: "gcs"})
	assert.Error(t, err)
}

package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memBucket is an in-memory bucket.
type memBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	headers map[string]nats.Header
	putErr  error
}

func newMemBucket() *memBucket {
	return &memBucket{objects: map[string][]byte{}, headers: map[string]nats.Header{}}
}

func (b *memBucket) Put(_ context.Context, meta jetstream.ObjectMeta, r io.Reader) (*jetstream.ObjectInfo, error) {
	if b.putErr != nil {
		return nil, b.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[meta.Name] = data
	b.headers[meta.Name] = meta.Headers
	return &jetstream.ObjectInfo{ObjectMeta: meta, Size: uint64(len(data))}, nil
}

func (b *memBucket) Get(_ context.Context, name string, _ ...jetstream.GetObjectOpt) (jetstream.ObjectResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[name]
	if !ok {
		return nil, jetstream.ErrObjectNotFound
	}
	return &memResult{
		Reader: bytes.NewReader(data),
		info:   &jetstream.ObjectInfo{ObjectMeta: jetstream.ObjectMeta{Name: name, Headers: b.headers[name]}},
	}, nil
}

func (b *memBucket) GetInfo(_ context.Context, name string, _ ...jetstream.GetObjectInfoOpt) (*jetstream.ObjectInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.objects[name]; !ok {
		return nil, jetstream.ErrObjectNotFound
	}
	return &jetstream.ObjectInfo{ObjectMeta: jetstream.ObjectMeta{Name: name}}, nil
}

func (b *memBucket) Delete(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, name)
	return nil
}

type memResult struct {
	*bytes.Reader
	info *jetstream.ObjectInfo
}

func (r *memResult) Info() (*jetstream.ObjectInfo, error) { return r.info, nil }
func (r *memResult) Close() error                         { return nil }
func (r *memResult) Error() error                         { return nil }

func newTestStore() (*Store, *memBucket, *memBucket) {
	temp, public := newMemBucket(), newMemBucket()
	s := newStore(nil, temp, public, Config{
		TempURLPrefix:   "https://cdn.test/tmp/",
		PublicURLPrefix: "https://cdn.test/public/",
	})
	return s, temp, public
}

func TestStore_Upload(t *testing.T) {
	s, temp, _ := newTestStore()

	res, err := s.Upload(context.Background(), "Cat.JPG", "image/jpeg", strings.NewReader("meow"))

	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(res.Key, ".jpg"))
	assert.Equal(t, "https://cdn.test/tmp/"+res.Key, res.URL)
	assert.Equal(t, []byte("meow"), temp.objects[res.Key])
	assert.Equal(t, "image/jpeg", temp.headers[res.Key].Get("Content-Type"))
}

func TestStore_Upload_Failure(t *testing.T) {
	s, temp, _ := newTestStore()
	temp.putErr = errors.New("bucket full")

	_, err := s.Upload(context.Background(), "a.png", "image/png", strings.NewReader("x"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket full")
}

func TestStore_Move(t *testing.T) {
	s, temp, public := newTestStore()
	ctx := context.Background()
	res, err := s.Upload(ctx, "a.png", "image/png", strings.NewReader("png-bytes"))
	require.NoError(t, err)

	require.NoError(t, s.Move(ctx, res.Key))

	assert.NotContains(t, temp.objects, res.Key)
	assert.Equal(t, []byte("png-bytes"), public.objects[res.Key])
	assert.Equal(t, "image/png", public.headers[res.Key].Get("Content-Type"))

	// Moving again is a no-op because the object is already public.
	require.NoError(t, s.Move(ctx, res.Key))
}

func TestStore_Move_Missing(t *testing.T) {
	s, _, _ := newTestStore()

	err := s.Move(context.Background(), "nope.png")

	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStore_Open(t *testing.T) {
	s, _, public := newTestStore()
	ctx := context.Background()
	_, err := public.Put(ctx, jetstream.ObjectMeta{Name: "k.webp", Headers: nats.Header{"Content-Type": []string{"image/webp"}}}, strings.NewReader("w"))
	require.NoError(t, err)

	rc, ct, err := s.Open(ctx, "k.webp")
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "w", string(data))
	assert.Equal(t, "image/webp", ct)

	_, _, err = s.Open(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

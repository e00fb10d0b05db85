// Package objectstore keeps product photos in NATS JetStream object store
// buckets: uploads land in a temporary bucket and are moved to a public one
// once a product references them.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"marketplace-service/internal/fields"
)

// ErrNotFound is returned when a key exists in neither bucket.
var ErrNotFound = errors.New("objectstore: object not found")

// bucket is the subset of jetstream.ObjectStore used here.
type bucket interface {
	Put(ctx context.Context, meta jetstream.ObjectMeta, r io.Reader) (*jetstream.ObjectInfo, error)
	Get(ctx context.Context, name string, opts ...jetstream.GetObjectOpt) (jetstream.ObjectResult, error)
	GetInfo(ctx context.Context, name string, opts ...jetstream.GetObjectInfoOpt) (*jetstream.ObjectInfo, error)
	Delete(ctx context.Context, name string) error
}

// Config names the buckets and the URL prefixes clients see.
type Config struct {
	URL             string
	TempBucket      string
	PublicBucket    string
	TempURLPrefix   string
	PublicURLPrefix string
}

// Store implements fields.ObjectStorage.
type Store struct {
	conn   *nats.Conn
	temp   bucket
	public bucket
	cfg    Config
}

var _ fields.ObjectStorage = (*Store)(nil)

// Connect dials NATS and opens (creating when missing) both buckets.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	conn, err := nats.Connect(cfg.URL, nats.Name("marketplace-service"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	temp, err := openBucket(ctx, js, cfg.TempBucket, "Uploaded photos not yet attached to a product")
	if err != nil {
		conn.Close()
		return nil, err
	}
	public, err := openBucket(ctx, js, cfg.PublicBucket, "Photos attached to products")
	if err != nil {
		conn.Close()
		return nil, err
	}
	slog.Info("Object store ready", "temp_bucket", cfg.TempBucket, "public_bucket", cfg.PublicBucket)
	return newStore(conn, temp, public, cfg), nil
}

func newStore(conn *nats.Conn, temp, public bucket, cfg Config) *Store {
	return &Store{conn: conn, temp: temp, public: public, cfg: cfg}
}

func openBucket(ctx context.Context, js jetstream.JetStream, name, description string) (jetstream.ObjectStore, error) {
	store, err := js.ObjectStore(ctx, name)
	if err == nil {
		return store, nil
	}
	store, err = js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      name,
		Description: description,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store bucket %s: %w", name, err)
	}
	return store, nil
}

// Upload stores r in the temporary bucket under a fresh key.
func (s *Store) Upload(ctx context.Context, filename, contentType string, r io.Reader) (fields.UploadResult, error) {
	key := uuid.NewString() + strings.ToLower(path.Ext(filename))
	meta := jetstream.ObjectMeta{
		Name:    key,
		Headers: nats.Header{"Content-Type": []string{contentType}},
	}
	if _, err := s.temp.Put(ctx, meta, r); err != nil {
		return fields.UploadResult{}, fmt.Errorf("failed to store object: %w", err)
	}
	return fields.UploadResult{Key: key, URL: s.cfg.TempURLPrefix + key}, nil
}

// Move copies key from the temporary bucket to the public one and deletes the
// temporary copy. A key that is already public is left alone.
func (s *Store) Move(ctx context.Context, key string) error {
	result, err := s.temp.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			if _, infoErr := s.public.GetInfo(ctx, key); infoErr == nil {
				return nil
			}
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("failed to get object: %w", err)
	}
	defer result.Close()

	info, err := result.Info()
	if err != nil {
		return fmt.Errorf("failed to get object info: %w", err)
	}
	meta := jetstream.ObjectMeta{Name: key, Headers: info.Headers}
	if _, err := s.public.Put(ctx, meta, result); err != nil {
		return fmt.Errorf("failed to publish object: %w", err)
	}
	if err := s.temp.Delete(ctx, key); err != nil {
		// The public copy exists; a stale temporary object is harmless.
		slog.WarnContext(ctx, "failed to delete temporary object", "key", key, "err", err)
	}
	return nil
}

// Open streams a public object.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	result, err := s.public.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to get object: %w", err)
	}
	contentType := "application/octet-stream"
	if info, err := result.Info(); err == nil && info.Headers != nil {
		if ct := info.Headers.Get("Content-Type"); ct != "" {
			contentType = ct
		}
	}
	return result, contentType, nil
}

// Close drains the NATS connection.
func (s *Store) Close() {
	if s.conn != nil {
		if err := s.conn.Drain(); err != nil {
			slog.Error("Failed to drain NATS connection", "err", err)
		}
	}
}

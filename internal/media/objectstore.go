package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// ErrObjectNotFound is returned when a key has no stored object.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore is the raw byte storage behind the blob store.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, string, error)
	Delete(ctx context.Context, key string) error
}

// JetStreamObjectStore implements ObjectStore using a NATS JetStream object
// store bucket.
type JetStreamObjectStore struct {
	conn  *nats.Conn
	store jetstream.ObjectStore
}

// NewJetStreamObjectStore connects to natsURL and opens (or creates) bucket.
func NewJetStreamObjectStore(ctx context.Context, natsURL, bucket string) (*JetStreamObjectStore, error) {
	conn, err := nats.Connect(natsURL, nats.Name("chatter-media"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	store, err := js.ObjectStore(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		store, err = js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
			Bucket:      bucket,
			Description: "Chat media: profile, group and message images",
		})
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open object store bucket: %w", err)
	}

	return &JetStreamObjectStore{conn: conn, store: store}, nil
}

func (s *JetStreamObjectStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	meta := jetstream.ObjectMeta{
		Name: key,
		Headers: nats.Header{
			"Content-Type": []string{contentType},
		},
	}
	if _, err := s.store.Put(ctx, meta, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to store object: %w", err)
	}
	return nil
}

func (s *JetStreamObjectStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	result, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			return nil, "", ErrObjectNotFound
		}
		return nil, "", fmt.Errorf("failed to get object: %w", err)
	}
	defer result.Close()

	data, err := io.ReadAll(result)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read object data: %w", err)
	}

	info, err := result.Info()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get object info: %w", err)
	}

	contentType := "application/octet-stream"
	if ct := info.Headers.Get("Content-Type"); ct != "" {
		contentType = ct
	}
	return data, contentType, nil
}

func (s *JetStreamObjectStore) Delete(ctx context.Context, key string) error {
	if err := s.store.Delete(ctx, key); err != nil {
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			return ErrObjectNotFound
		}
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Close closes the NATS connection.
func (s *JetStreamObjectStore) Close() {
	if s.conn != nil {
		s.conn.Close()
	}
}

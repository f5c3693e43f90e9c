// Package media is the blob store for profile, group and message images.
// Objects live in a JetStream object store; clients read them through
// time-limited signed URLs served by Handler.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

const routePrefix = "/media/"

// MaxImageSize is the largest accepted upload.
const MaxImageSize = 5 * 1024 * 1024

var (
	ErrUnsupportedType = errors.New("invalid file type, only JPEG, PNG and GIF images are allowed")
	ErrTooLarge        = errors.New("file too large, maximum size allowed is 5MB")
	ErrEmptyUpload     = errors.New("image file is required")
)

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// ValidateImage checks an upload's declared content type and size.
func ValidateImage(contentType string, size int) error {
	if size == 0 {
		return ErrEmptyUpload
	}
	if !allowedTypes[contentType] {
		return ErrUnsupportedType
	}
	if size > MaxImageSize {
		return ErrTooLarge
	}
	return nil
}

// Blobs stores objects and hands out URLs for them. The URL returned by
// Upload is the stable, unsigned reference kept in the database.
type Blobs struct {
	objects ObjectStore
	signer  *Signer
	baseURL string
}

func NewBlobs(objects ObjectStore, signer *Signer, baseURL string) *Blobs {
	return &Blobs{
		objects: objects,
		signer:  signer,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// Upload stores data under key and returns its unsigned URL.
func (b *Blobs) Upload(ctx context.Context, data []byte, contentType, key string) (string, error) {
	if err := b.objects.Put(ctx, key, data, contentType); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	slog.Debug("[MEDIA] Object stored", "key", key, "size", len(data))
	return b.baseURL + routePrefix + escapeKey(key), nil
}

// Delete removes the object a URL (or bare key) refers to.
func (b *Blobs) Delete(ctx context.Context, ref string) error {
	key := b.KeyFromURL(ref)
	if key == "" {
		key = ref
	}
	if err := b.objects.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Sign returns a signed URL for rawURL valid for the signer's TTL. Empty input
// yields empty output and URLs this store did not issue are returned as-is.
func (b *Blobs) Sign(_ context.Context, rawURL string) (string, error) {
	if rawURL == "" {
		return "", nil
	}
	key := b.KeyFromURL(rawURL)
	if key == "" {
		return rawURL, nil
	}
	return b.baseURL + routePrefix + escapeKey(key) + "?" + b.signer.Query(key).Encode(), nil
}

// KeyFromURL extracts the object key from a URL issued by Upload, or returns
// "" when rawURL does not belong to this store.
func (b *Blobs) KeyFromURL(rawURL string) string {
	prefix := b.baseURL + routePrefix
	if !strings.HasPrefix(rawURL, prefix) {
		return ""
	}
	escaped := strings.TrimPrefix(rawURL, prefix)
	if i := strings.IndexByte(escaped, '?'); i >= 0 {
		escaped = escaped[:i]
	}
	key, err := url.PathUnescape(escaped)
	if err != nil {
		return ""
	}
	return key
}

// KeySegment makes user-supplied text safe to embed as one segment of an
// object key. Slashes and dot segments can no longer split or climb the path.
func KeySegment(s string) string {
	return url.PathEscape(s)
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

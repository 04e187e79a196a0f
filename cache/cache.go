// Package cache stores serialized ortholog tables so repeated runs against the
// same species pair skip the annotation service. Keys are slash-separated
// relative names; backends map them to files or objects.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/carbocation/orthoexpr"
)

// ErrNotFound is returned by Get when no entry exists under the key.
var ErrNotFound = errors.New("cache entry not found")

// Store is a minimal blob store. Put overwrites existing entries.
type Store interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, r io.Reader) error
}

// Open picks a backend from uri: gs://bucket[/prefix] for Google Cloud
// Storage, s3://bucket[/prefix] for S3, and anything else as a local
// directory. An empty uri yields a nil Store and no error.
func Open(ctx context.Context, uri string) (Store, error) {
	const op = "cache.Open"

	switch {
	case uri == "":
		return nil, nil
	case strings.HasPrefix(uri, "gs://"):
		bucket, prefix := splitBucket(strings.TrimPrefix(uri, "gs://"))
		if bucket == "" {
			return nil, orthoexpr.Configf(op, "%s: no bucket named", uri)
		}
		s, err := NewGCS(ctx, bucket, prefix)
		if err != nil {
			return nil, orthoexpr.Wrap(orthoexpr.KindExternalService, op, err)
		}
		return s, nil
	case strings.HasPrefix(uri, "s3://"):
		bucket, prefix := splitBucket(strings.TrimPrefix(uri, "s3://"))
		if bucket == "" {
			return nil, orthoexpr.Configf(op, "%s: no bucket named", uri)
		}
		s, err := NewS3(ctx, S3Config{Bucket: bucket, Prefix: prefix})
		if err != nil {
			return nil, orthoexpr.Wrap(orthoexpr.KindExternalService, op, err)
		}
		return s, nil
	}

	s, err := NewDir(uri)
	if err != nil {
		return nil, orthoexpr.Wrap(orthoexpr.KindIO, op, err)
	}
	return s, nil
}

func splitBucket(rest string) (bucket, prefix string) {
	parts := strings.SplitN(rest, "/", 2)
	bucket = parts[0]
	if len(parts) == 2 {
		prefix = strings.Trim(parts[1], "/")
	}
	return bucket, prefix
}

// cleanKey rejects keys that are empty, absolute or that would escape the
// store root.
func cleanKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid absolute key %q", key)
	}
	clean := path.Clean(key)
	if clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return clean, nil
}

func objectName(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

package cache

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
)

// GCS stores entries as objects in a Google Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCS uses application default credentials.
func NewGCS(ctx context.Context, bucket, prefix string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, pfx.Err(err)
	}

	return NewGCSWithClient(client, bucket, prefix), nil
}

func NewGCSWithClient(client *storage.Client, bucket, prefix string) *GCS {
	return &GCS{client: client, bucket: bucket, prefix: prefix}
}

func (g *GCS) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	k, err := cleanKey(key)
	if err != nil {
		return nil, err
	}

	r, err := g.client.Bucket(g.bucket).Object(objectName(g.prefix, k)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, pfx.Err(err)
	}

	return r, nil
}

func (g *GCS) Put(ctx context.Context, key string, r io.Reader) error {
	k, err := cleanKey(key)
	if err != nil {
		return err
	}

	w := g.client.Bucket(g.bucket).Object(objectName(g.prefix, k)).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return pfx.Err(err)
	}

	if err := w.Close(); err != nil {
		return pfx.Err(err)
	}

	return nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}

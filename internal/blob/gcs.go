package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCS stores objects in a Google Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket string
	public bool
}

func NewGCS(ctx context.Context, bucket string, opts Options) (*GCS, error) {
	var copts []option.ClientOption
	if opts.CredentialsFile != "" {
		copts = append(copts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, copts...)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}
	return &GCS{
		client: client,
		bucket: bucket,
		public: opts.Public,
	}, nil
}

func (g *GCS) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	// Objects are gzip-encoded; skip decompressive transcoding so that
	// callers always see the stored bytes.
	obj := g.client.Bucket(g.bucket).Object(key).ReadCompressed(true)
	r, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("gs://%s/%s: %w", g.bucket, key, err)
	}
	return r, nil
}

func (g *GCS) Put(ctx context.Context, key string, fn func(io.Writer) error) error {
	// Canceling the context before Close discards a partial upload.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/json"
	w.ContentEncoding = "gzip"
	w.CacheControl = "no-cache"
	if g.public {
		w.PredefinedACL = "publicRead"
	}
	if err := fn(w); err != nil {
		cancel()
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("uploading gs://%s/%s: %w", g.bucket, key, err)
	}
	return nil
}

func (g *GCS) Close() error { return g.client.Close() }

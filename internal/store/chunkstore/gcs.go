package chunkstore

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/arx-os/datakernel-cube/pkg/cubeerr"
)

// GCSConfig mirrors internal/storage/gcs.go's GCSConfig: bucket name plus
// an optional explicit credential source, falling back to Application
// Default Credentials when neither is set.
type GCSConfig struct {
	Bucket          string
	CredentialsJSON string
	CredentialsFile string
}

// GCSChunkStore stores chunk blobs as objects in a Google Cloud Storage
// bucket, grounded on internal/storage/gcs.go's GCSBackend.
type GCSChunkStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
}

// NewGCSChunkStore builds a GCS client from cfg and verifies the bucket is
// reachable before returning, the same eager-verification the teacher's
// NewGCSBackend performs.
func NewGCSChunkStore(ctx context.Context, cfg GCSConfig) (*GCSChunkStore, error) {
	var opts []option.ClientOption
	switch {
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, cubeerr.Wrap(cubeerr.KindStore, "creating GCS client", err)
	}
	bucket := client.Bucket(cfg.Bucket)
	if _, err := bucket.Attrs(ctx); err != nil {
		return nil, cubeerr.Wrap(cubeerr.KindStore, "accessing GCS bucket "+cfg.Bucket, err)
	}
	return &GCSChunkStore{client: client, bucket: bucket}, nil
}

func (g *GCSChunkStore) Put(ctx context.Context, key string, data []byte) error {
	w := g.bucket.Object(key).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return cubeerr.Wrap(cubeerr.KindStore, "writing GCS object "+key, err)
	}
	if err := w.Close(); err != nil {
		return cubeerr.Wrap(cubeerr.KindStore, "closing GCS object writer for "+key, err)
	}
	return nil
}

func (g *GCSChunkStore) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := g.bucket.Object(key).NewReader(ctx)
	if err != nil {
		return nil, cubeerr.Wrap(cubeerr.KindStore, "reading GCS object "+key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, cubeerr.Wrap(cubeerr.KindStore, "draining GCS object body for "+key, err)
	}
	return data, nil
}

func (g *GCSChunkStore) Delete(ctx context.Context, key string) error {
	if err := g.bucket.Object(key).Delete(ctx); err != nil {
		if err == storage.ErrObjectNotExist {
			return nil
		}
		return cubeerr.Wrap(cubeerr.KindStore, "deleting GCS object "+key, err)
	}
	return nil
}

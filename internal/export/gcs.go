package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/align/internal/dashboard"
)

// objectStore opens writers for objects. The storage client satisfies it
// through gcsStore; tests swap in an in-memory fake.
type objectStore interface {
	NewWriter(ctx context.Context, bucket, object string) io.WriteCloser
}

type gcsStore struct {
	client *storage.Client
}

func (s gcsStore) NewWriter(ctx context.Context, bucket, object string) io.WriteCloser {
	w := s.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = "application/json"
	return w
}

// GCSSink uploads the dashboard view, ledger included, as a JSON object.
type GCSSink struct {
	store  objectStore
	closer io.Closer
	bucket string
	prefix string
	newID  func() string
	log    zerolog.Logger
}

// NewGCSSink creates a sink backed by Cloud Storage. It assumes Application
// Default Credentials are configured.
func NewGCSSink(ctx context.Context, bucket, prefix string, log zerolog.Logger) (*GCSSink, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	s := newGCSSink(gcsStore{client: client}, bucket, prefix, log)
	s.closer = client
	return s, nil
}

func newGCSSink(store objectStore, bucket, prefix string, log zerolog.Logger) *GCSSink {
	return &GCSSink{
		store:  store,
		bucket: bucket,
		prefix: prefix,
		newID:  uuid.NewString,
		log:    log,
	}
}

// Name implements Sink.
func (s *GCSSink) Name() string { return "gcs" }

// ObjectName returns the object path for a snapshot taken at t:
// {prefix}/YYYY/MM/DD/{id}.json.
func ObjectName(prefix string, t time.Time, id string) string {
	return path.Join(prefix, t.Format("2006/01/02"), id+".json")
}

// Export implements Sink.
func (s *GCSSink) Export(ctx context.Context, snap Snapshot) error {
	payload := struct {
		ExportedAt time.Time      `json:"exported_at"`
		Dashboard  dashboard.View `json:"dashboard"`
	}{
		ExportedAt: snap.ExportedAt,
		Dashboard:  dashboard.BuildView(snap.State, true),
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	object := ObjectName(s.prefix, snap.ExportedAt, s.newID())
	w := s.store.NewWriter(ctx, s.bucket, object)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write gs://%s/%s: %w", s.bucket, object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload gs://%s/%s: %w", s.bucket, object, err)
	}

	s.log.Info().Str("bucket", s.bucket).Str("object", object).Int("bytes", len(data)).Msg("Uploaded dashboard snapshot")
	return nil
}

// Close releases the storage client.
func (s *GCSSink) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

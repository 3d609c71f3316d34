package source

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/expjudge/expjudge/internal/event"
)

// GCSSource reads the raw event table from a CSV object in a Google
// Cloud Storage bucket. With a credentials file it authenticates from
// a service-account key (local runs); otherwise it uses ambient
// credentials.
type GCSSource struct {
	client *storage.Client
	bucket string
	object string
}

func NewGCSSource(ctx context.Context, bucket, object, credentialsFile string) (*GCSSource, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSSource{client: client, bucket: bucket, object: object}, nil
}

func (s *GCSSource) Events(ctx context.Context) ([]event.Event, error) {
	r, err := s.client.Bucket(s.bucket).Object(s.object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", s.bucket, s.object, err)
	}
	defer r.Close()

	events, err := DecodeCSV(r)
	if err != nil {
		return nil, fmt.Errorf("gs://%s/%s: %w", s.bucket, s.object, err)
	}
	return events, nil
}

func (s *GCSSource) Close() error {
	return s.client.Close()
}

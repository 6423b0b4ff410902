package blob

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GCSStore keeps blobs in a Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
}

// NewGCSStore opens bucket with application default credentials.
func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: client.Bucket(bucket)}, nil
}

// Close releases the client.
func (s *GCSStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Get downloads the object at ref.
func (s *GCSStore) Get(ctx context.Context, ref string) ([]byte, error) {
	clean, err := checkRef(ref)
	if err != nil {
		return nil, err
	}
	reader, err := s.bucket.Object(clean).NewReader(ctx)
	if stderrors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open object %s: %w", clean, err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", clean, err)
	}
	return data, nil
}

// Put uploads data only if the object does not already exist.
func (s *GCSStore) Put(ctx context.Context, name string, mimeType string, data []byte) (string, error) {
	ref, err := Ref(name, data)
	if err != nil {
		return "", err
	}
	writer := s.bucket.Object(ref).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = mimeType
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		if isPreconditionFailed(err) {
			return ref, nil
		}
		return "", fmt.Errorf("write object %s: %w", ref, err)
	}
	if err := writer.Close(); err != nil {
		if isPreconditionFailed(err) {
			log.Printf("blob: object %s already exists", ref)
			return ref, nil
		}
		return "", fmt.Errorf("finalize object %s: %w", ref, err)
	}
	return ref, nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return stderrors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

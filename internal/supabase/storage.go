package supabase

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	storage "github.com/supabase-community/storage-go"

	"dealer-studio-backend/internal/models"
)

type StorageClient struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

func NewStorageClient(supabaseURL, serviceRoleKey, bucket string) (*StorageClient, error) {
	if bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}
	baseURL := strings.TrimRight(supabaseURL, "/")
	client := storage.NewClient(baseURL+"/storage/v1", serviceRoleKey, nil)

	return &StorageClient{
		client:  client,
		bucket:  bucket,
		baseURL: baseURL,
	}, nil
}

// ProcessedImagePath is where a job's output is archived:
// orders/{order_id}/{job_id}{ext}.
func ProcessedImagePath(orderID, jobID, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("orders/%s/%s%s", orderID, jobID, ext)
}

func OrderPrefix(orderID string) string {
	return fmt.Sprintf("orders/%s/", orderID)
}

// UploadImage stores img at storagePath, overwriting any previous object.
func (s *StorageClient) UploadImage(storagePath string, img models.Image) (string, error) {
	contentType := img.MimeType
	if contentType == "" {
		contentType = "image/png"
	}
	upsert := true
	_, err := s.client.UploadFile(s.bucket, storagePath, bytes.NewReader(img.Data), storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	return s.GetPublicURL(storagePath), nil
}

func (s *StorageClient) GetPublicURL(storagePath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s",
		s.baseURL, s.bucket, storagePath)
}

func (s *StorageClient) DeleteFile(storagePath string) error {
	_, err := s.client.RemoveFile(s.bucket, []string{storagePath})
	return err
}

// DeleteOrderFiles removes every archived image of an order.
func (s *StorageClient) DeleteOrderFiles(orderID string) error {
	prefix := OrderPrefix(orderID)

	files, err := s.client.ListFiles(s.bucket, prefix, storage.FileSearchOptions{
		Limit: 1000,
	})
	if err != nil {
		return fmt.Errorf("failed to list files: %w", err)
	}

	if len(files) > 0 {
		filePaths := make([]string, len(files))
		for i, file := range files {
			filePaths[i] = prefix + file.Name
		}
		if _, err := s.client.RemoveFile(s.bucket, filePaths); err != nil {
			return fmt.Errorf("failed to delete files: %w", err)
		}
	}

	return nil
}

func (s *StorageClient) DownloadFile(storagePath string) ([]byte, error) {
	data, err := s.client.DownloadFile(s.bucket, storagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	return data, nil
}

// Load reads a studio plate from the bucket. The storage client has no
// context support, so ctx is only checked before the request.
func (s *StorageClient) Load(ctx context.Context, object string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.DownloadFile(object)
}

// RetryWithBackoff calls fn up to maxRetries times, doubling the wait after
// each failure starting at base.
func RetryWithBackoff(ctx context.Context, fn func() error, maxRetries int, base time.Duration) error {
	var lastErr error
	wait := base
	for i := 0; i < maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if i == maxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-time.After(wait):
		}
		wait *= 2
	}

	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}

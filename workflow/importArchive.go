package workflow

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/daaty/dashboard-mobilidade-urbana-main/models"
	"github.com/google/uuid"
)

// ImportArchiver keeps a copy of every imported file.
type ImportArchiver interface {
	Archive(ctx context.Context, path string, importType models.ImportType, filename string) (string, error)
}

// GCSArchiver stores imported files under imports/<type>/ in a bucket.
type GCSArchiver struct {
	client *storage.Client
	bucket string
}

// NewGCSArchiver returns nil when no bucket is configured.
func NewGCSArchiver(client *storage.Client, bucket string) *GCSArchiver {
	if client == nil || strings.TrimSpace(bucket) == "" {
		return nil
	}
	return &GCSArchiver{client: client, bucket: bucket}
}

func archiveObjectName(importType models.ImportType, filename string) string {
	return fmt.Sprintf("imports/%s/%s-%s", importType, uuid.NewString(), filepath.Base(filename))
}

// Archive returns the gs:// URL of the stored copy.
func (a *GCSArchiver) Archive(ctx context.Context, path string, importType models.ImportType, filename string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	object := archiveObjectName(importType, filename)
	w := a.client.Bucket(a.bucket).Object(object).NewWriter(ctx)
	w.ContentType = mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if w.ContentType == "" {
		w.ContentType = "application/octet-stream"
	}
	w.Metadata = map[string]string{"import_type": string(importType)}

	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("upload %s: %w", object, err)
	}
	return fmt.Sprintf("gs://%s/%s", a.bucket, object), nil
}

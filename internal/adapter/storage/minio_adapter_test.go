package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"

	"github.com/rl1809/digital-inventory/internal/config"
)

func TestMinIOAdapter_PublicURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.MinIOConfig
		want string
	}{
		{
			name: "derived from endpoint",
			cfg:  config.MinIOConfig{Endpoint: "localhost:9000", Bucket: "inventory"},
			want: "http://localhost:9000/inventory/uploads/s/a.png",
		},
		{
			name: "tls endpoint",
			cfg:  config.MinIOConfig{Endpoint: "s3.example.com", Bucket: "inv", UseSSL: true},
			want: "https://s3.example.com/inv/uploads/s/a.png",
		},
		{
			name: "explicit public url",
			cfg:  config.MinIOConfig{Endpoint: "minio:9000", Bucket: "inventory", PublicURL: "https://cdn.example.com/"},
			want: "https://cdn.example.com/inventory/uploads/s/a.png",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, err := NewMinIOAdapter(tt.cfg, zap.NewNop())
			if err != nil {
				t.Fatalf("NewMinIOAdapter failed: %v", err)
			}
			if got := adapter.PublicURL("/uploads/s/a.png"); got != tt.want {
				t.Errorf("PublicURL = %q, want %q", got, tt.want)
			}
		})
	}
}

func getMinIOAdapter(t *testing.T) (*MinIOAdapter, config.MinIOConfig) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("MINIO_ENDPOINT not set")
	}

	cfg := config.MinIOConfig{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("MINIO_SECRET_KEY"),
		Bucket:    "inventory-test",
	}
	adapter, err := NewMinIOAdapter(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("NewMinIOAdapter failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := adapter.EnsureBucket(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}
	return adapter, cfg
}

func TestMinIOAdapter_UploadPublicRead(t *testing.T) {
	adapter, cfg := getMinIOAdapter(t)
	ctx := context.Background()

	data := []byte("\x89PNG\r\n\x1a\nnot really a png")
	name := "uploads/test/" + uuid.NewString() + ".png"
	if err := adapter.Upload(ctx, name, bytes.NewReader(data), int64(len(data)), "image/png"); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	defer adapter.client.RemoveObject(ctx, cfg.Bucket, name, minio.RemoveObjectOptions{})

	resp, err := http.Get(adapter.PublicURL(name))
	if err != nil {
		t.Fatalf("GET public url failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected anonymous read to succeed, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected content type image/png, got %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(body, data) {
		t.Errorf("downloaded object differs from upload")
	}
}

func TestMinIOAdapter_EnsureBucketIdempotent(t *testing.T) {
	adapter, _ := getMinIOAdapter(t)
	if err := adapter.EnsureBucket(context.Background()); err != nil {
		t.Fatalf("second EnsureBucket failed: %v", err)
	}
}

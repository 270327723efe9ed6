package gcp

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/option"

	"github.com/yungbote/docscan-backend/internal/clients/redis"
	"github.com/yungbote/docscan-backend/internal/pkg/ctxutil"
	"github.com/yungbote/docscan-backend/internal/pkg/logger"
)

// BucketClient stores uploaded document images and hands out short-lived
// signed links for reading them back.
type BucketClient interface {
	UploadFile(ctx context.Context, key string, body io.Reader, contentType string) error
	// SignedURL returns a V4 signed GET link for key. Links are cached in
	// Redis for slightly less than their signing TTL.
	SignedURL(ctx context.Context, key string) (string, error)
	DeleteFile(ctx context.Context, key string) error
	Close() error
}

type bucketClient struct {
	log        *logger.Logger
	client     *storage.Client
	bucketName string
	linkTTL    time.Duration
	links      redis.LinkCache
	signGroup  singleflight.Group
}

func NewBucketClient(ctx context.Context, log *logger.Logger, links redis.LinkCache) (BucketClient, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	bucketName := strings.TrimSpace(os.Getenv("GCS_BUCKET_NAME"))
	if bucketName == "" {
		return nil, fmt.Errorf("missing GCS_BUCKET_NAME")
	}

	var opts []option.ClientOption
	if creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")); creds != "" {
		opts = append(opts, option.WithCredentialsFile(creds))
	}

	client, err := storage.NewClient(ctxutil.Default(ctx), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcs client: %w", err)
	}

	linkTTL := 15 * time.Minute
	if v := strings.TrimSpace(os.Getenv("GCS_LINK_TTL_MINUTES")); v != "" {
		var mins int
		if _, err := fmt.Sscanf(v, "%d", &mins); err == nil && mins > 0 {
			linkTTL = time.Duration(mins) * time.Minute
		}
	}

	return &bucketClient{
		log:        log.With("client", "BucketClient", "bucket", bucketName),
		client:     client,
		bucketName: bucketName,
		linkTTL:    linkTTL,
		links:      links,
	}, nil
}

func (b *bucketClient) UploadFile(ctx context.Context, key string, body io.Reader, contentType string) error {
	if key == "" {
		return fmt.Errorf("object key required")
	}

	w := b.client.Bucket(b.bucketName).Object(key).NewWriter(ctxutil.Default(ctx))
	if contentType == "" {
		contentType = contentTypeForKey(key)
	}
	w.ContentType = contentType

	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write object %q: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize object %q: %w", key, err)
	}

	b.log.Info("Uploaded object", "key", key, "content_type", contentType)
	return nil
}

func (b *bucketClient) SignedURL(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("object key required")
	}
	ctx = ctxutil.Default(ctx)

	if b.links != nil {
		if url, ok, err := b.links.Get(ctx, key); err != nil {
			b.log.Warn("Link cache read failed", "key", key, "error", err.Error())
		} else if ok {
			return url, nil
		}
	}

	// Concurrent requests for the same key share one signing round trip.
	val, err, _ := b.signGroup.Do(key, func() (any, error) {
		url, err := b.client.Bucket(b.bucketName).SignedURL(key, &storage.SignedURLOptions{
			Scheme:  storage.SigningSchemeV4,
			Method:  "GET",
			Expires: time.Now().Add(b.linkTTL),
		})
		if err != nil {
			return "", fmt.Errorf("failed to sign url for %q: %w", key, err)
		}

		if b.links != nil {
			// Cached for less than the signing TTL so a hit is always usable.
			cacheTTL := b.linkTTL - 1*time.Minute
			if cacheTTL <= 0 {
				cacheTTL = b.linkTTL / 2
			}
			if err := b.links.Set(ctx, key, url, cacheTTL); err != nil {
				b.log.Warn("Link cache write failed", "key", key, "error", err.Error())
			}
		}
		return url, nil
	})
	if err != nil {
		return "", err
	}
	return val.(string), nil
}

func (b *bucketClient) DeleteFile(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("object key required")
	}
	if err := b.client.Bucket(b.bucketName).Object(key).Delete(ctxutil.Default(ctx)); err != nil {
		return fmt.Errorf("failed to delete object %q: %w", key, err)
	}
	return nil
}

func (b *bucketClient) Close() error {
	return b.client.Close()
}

func contentTypeForKey(key string) string {
	lower := strings.ToLower(key)
	switch {
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(lower, ".webp"):
		return "image/webp"
	case strings.HasSuffix(lower, ".gif"):
		return "image/gif"
	case strings.HasSuffix(lower, ".pdf"):
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dshills/llmdiag/pkg/types"
)

// S3Scheme prefixes documents stored in an S3-compatible object store
const S3Scheme = "s3://"

// Environment variables read by S3ConfigFromEnv
const (
	EnvS3Endpoint  = "LLMDIAG_S3_ENDPOINT"
	EnvS3Region    = "LLMDIAG_S3_REGION"
	EnvS3AccessKey = "LLMDIAG_S3_ACCESS_KEY"
	EnvS3SecretKey = "LLMDIAG_S3_SECRET_KEY"
	EnvS3UseSSL    = "LLMDIAG_S3_USE_SSL"
)

// S3Config describes how to reach the object store
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// S3ConfigFromEnv reads S3Config from the environment. ok is false when no
// endpoint is configured.
func S3ConfigFromEnv() (cfg S3Config, ok bool) {
	cfg = S3Config{
		Endpoint:  strings.TrimSpace(os.Getenv(EnvS3Endpoint)),
		Region:    strings.TrimSpace(os.Getenv(EnvS3Region)),
		AccessKey: strings.TrimSpace(os.Getenv(EnvS3AccessKey)),
		SecretKey: strings.TrimSpace(os.Getenv(EnvS3SecretKey)),
		UseSSL:    true,
	}
	if v := os.Getenv(EnvS3UseSSL); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.UseSSL = b
		}
	}
	return cfg, cfg.Endpoint != ""
}

// S3Source reads documents named s3://bucket/key
type S3Source struct {
	client *minio.Client
}

// NewS3Source creates a source for the given object store
func NewS3Source(cfg S3Config) (*S3Source, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Source{client: client}, nil
}

// parseS3ID splits s3://bucket/key
func parseS3ID(id types.DocumentID) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(string(id), S3Scheme)
	if !ok {
		return "", "", fmt.Errorf("not an s3 document: %s", id)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 document must be s3://bucket/key: %s", id)
	}
	return bucket, key, nil
}

// Read implements Source
func (s *S3Source) Read(ctx context.Context, id types.DocumentID) (string, error) {
	bucket, key, err := parseS3ID(id)
	if err != nil {
		return "", err
	}

	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", id, err)
	}
	defer func() { _ = obj.Close() }()

	data, err := io.ReadAll(obj)
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NoSuchBucket" {
			return "", fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return "", fmt.Errorf("failed to read %s: %w", id, err)
	}
	return string(data), nil
}

// Router dispatches reads by URL scheme
type Router struct {
	fallback Source

	mu     sync.RWMutex
	routes map[string]Source
}

// NewRouter creates a router that sends unmatched documents to fallback
func NewRouter(fallback Source) *Router {
	return &Router{fallback: fallback, routes: make(map[string]Source)}
}

// Handle routes documents starting with prefix (e.g. "s3://") to src
func (r *Router) Handle(prefix string, src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[prefix] = src
}

// Read implements Source. The longest matching prefix wins.
func (r *Router) Read(ctx context.Context, id types.DocumentID) (string, error) {
	r.mu.RLock()
	var (
		best    string
		matched Source
	)
	for prefix, src := range r.routes {
		if strings.HasPrefix(string(id), prefix) && len(prefix) > len(best) {
			best, matched = prefix, src
		}
	}
	r.mu.RUnlock()

	if matched != nil {
		return matched.Read(ctx, id)
	}
	if r.fallback == nil {
		return "", fmt.Errorf("%w: no source for %s", ErrNotFound, id)
	}
	return r.fallback.Read(ctx, id)
}

// NewDefaultSource returns the source used by the commands: afs for paths
// and afs URLs, plus S3 when the environment configures an endpoint.
func NewDefaultSource() (Source, error) {
	router := NewRouter(NewAFSSource())
	cfg, ok := S3ConfigFromEnv()
	if !ok {
		return router, nil
	}
	s3, err := NewS3Source(cfg)
	if err != nil {
		return nil, errors.Join(errors.New("failed to configure s3 documents"), err)
	}
	router.Handle(S3Scheme, s3)
	return router, nil
}

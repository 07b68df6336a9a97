package blob

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ebookshare/catalog-service/catalog/internal/errs"
)

// AssetKind selects the store's processing path. Documents must take the raw
// path so PDFs are never reinterpreted as images.
type AssetKind int

const (
	AssetDocument AssetKind = iota
	AssetImage
)

type Config struct {
	Endpoint  string `yaml:"endpoint" envconfig:"BLOB_ENDPOINT" required:"true"`
	AccessKey string `yaml:"accessKey" envconfig:"BLOB_ACCESS_KEY" required:"true" json:"-"`
	SecretKey string `yaml:"secretKey" envconfig:"BLOB_SECRET_KEY" required:"true" json:"-"`
	Bucket    string `yaml:"bucket" envconfig:"BLOB_BUCKET" default:"ebooklib"`
	UseSSL    bool   `yaml:"useSSL" envconfig:"BLOB_USE_SSL" default:"true"`
}

type Store struct {
	client *minio.Client
	cfg    Config
	log    *zap.Logger
}

// New builds the store client and ensures the bucket exists.
func New(ctx context.Context, cfg Config, log *zap.Logger) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "blob client")
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, errors.Wrap(err, "bucket check")
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errors.Wrap(err, "make bucket")
		}
	}

	return &Store{
		client: client,
		cfg:    cfg,
		log:    log.Named("blob"),
	}, nil
}

// Upload stores the object under a unique key and returns its public URL.
// The URL is only returned once the store confirmed the write.
func (s *Store) Upload(ctx context.Context, r io.Reader, size int64, name string, kind AssetKind) (string, error) {
	key := objectKey(name, kind)
	opts := minio.PutObjectOptions{ContentType: contentType(name, kind)}

	if _, err := s.client.PutObject(ctx, s.cfg.Bucket, key, r, size, opts); err != nil {
		return "", errors.Wrap(errs.ErrUpload, err.Error())
	}

	s.log.Debug("uploaded", zap.String("key", key), zap.Int64("size", size))
	return s.publicURL(key), nil
}

func (s *Store) publicURL(key string) string {
	scheme := "http"
	if s.cfg.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.cfg.Endpoint, s.cfg.Bucket, key)
}

func objectKey(name string, kind AssetKind) string {
	prefix := "books/"
	if kind == AssetImage {
		prefix = "covers/"
	}
	ext := strings.ToLower(filepath.Ext(name))
	base := sanitize(strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)))
	return prefix + base + "-" + uuid.NewString() + ext
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}

func contentType(name string, kind AssetKind) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case kind == AssetDocument && ext == ".pdf":
		return "application/pdf"
	case kind == AssetDocument && ext == ".epub":
		return "application/epub+zip"
	case kind == AssetImage:
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

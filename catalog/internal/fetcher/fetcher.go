package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ebookshare/catalog-service/catalog/internal/errs"
)

const (
	// some hosts reject non-browser clients outright
	userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

	copyBufferSize = 32 << 10 // 32 KiB
)

var allowedExtensions = map[string]struct{}{
	".pdf": {},
}

type Config struct {
	Timeout time.Duration `yaml:"timeout" envconfig:"FETCH_TIMEOUT" default:"30s"`
	Dir     string        `yaml:"dir" envconfig:"FETCH_DIR"`
}

type Fetcher struct {
	client *http.Client
	dir    string
	log    *zap.Logger
}

func New(cfg Config, log *zap.Logger) *Fetcher {
	dir := cfg.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	return &Fetcher{
		client: &http.Client{Timeout: cfg.Timeout},
		dir:    dir,
		log:    log.Named("fetcher"),
	}
}

// ValidateURL enforces the extension allow-list before any transfer starts.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrap(errs.ErrValidation, "invalid url")
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if _, ok := allowedExtensions[ext]; !ok {
		return errors.Wrapf(errs.ErrValidation, "unsupported extension %q", ext)
	}
	return nil
}

// Fetch downloads rawURL into a uniquely named temp file and returns its path.
// The caller owns the returned file and must remove it on every exit path.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	if err := ValidateURL(rawURL); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return "", errors.Wrap(errs.ErrValidation, err.Error())
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", errors.Wrap(errs.ErrFetch, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", errors.Wrapf(errs.ErrFetch, "unexpected status %s", resp.Status)
	}

	dst := filepath.Join(f.dir, "ebooklib-"+uuid.NewString()+".pdf")
	out, err := os.Create(dst)
	if err != nil {
		return "", errors.Wrap(err, "create temp file")
	}

	_, copyErr := io.CopyBuffer(out, resp.Body, make([]byte, copyBufferSize))
	if closeErr := out.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(dst)
		return "", errors.Wrap(errs.ErrFetch, copyErr.Error())
	}

	f.log.Debug("fetched", zap.String("url", rawURL), zap.String("path", dst))
	return dst, nil
}

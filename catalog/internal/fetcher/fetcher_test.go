package fetcher_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ebookshare/catalog-service/catalog/internal/errs"
	"github.com/ebookshare/catalog-service/catalog/internal/fetcher"
)

func newTestFetcher(t *testing.T) *fetcher.Fetcher {
	t.Helper()
	return fetcher.New(fetcher.Config{
		Timeout: 5 * time.Second,
		Dir:     t.TempDir(),
	}, zap.NewNop())
}

func TestFetcher_Fetch(t *testing.T) {
	t.Parallel()
	payload := []byte("%PDF-1.4 fake body")

	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		switch r.URL.Path {
		case "/books/dune.pdf":
			require.Equal(t, http.MethodGet, r.Method)
			require.Contains(t, r.Header.Get("User-Agent"), "Mozilla")
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write(payload)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := newTestFetcher(t)

	t.Run("ok", func(t *testing.T) {
		path, err := f.Fetch(context.Background(), srv.URL+"/books/dune.pdf")
		require.NoError(t, err)
		defer os.Remove(path)

		got, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, payload, got)
	})

	t.Run("err. upstream 404", func(t *testing.T) {
		_, err := f.Fetch(context.Background(), srv.URL+"/books/missing.pdf")
		require.ErrorIs(t, err, errs.ErrFetch)
	})

	t.Run("err. unreachable host", func(t *testing.T) {
		_, err := f.Fetch(context.Background(), "http://127.0.0.1:1/book.pdf")
		require.ErrorIs(t, err, errs.ErrFetch)
	})

	t.Run("err. extension rejected before transfer", func(t *testing.T) {
		before := atomic.LoadInt64(&hits)
		_, err := f.Fetch(context.Background(), srv.URL+"/books/dune.epub")
		require.ErrorIs(t, err, errs.ErrValidation)
		require.Equal(t, before, atomic.LoadInt64(&hits), "no request must be made for a rejected url")
	})
}

func TestValidateURL(t *testing.T) {
	t.Parallel()
	var tests = []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "pdf", url: "http://files.example.com/a.pdf", wantErr: false},
		{name: "pdf with query", url: "http://files.example.com/a.pdf?token=x", wantErr: false},
		{name: "uppercase extension", url: "http://files.example.com/a.PDF", wantErr: false},
		{name: "epub", url: "http://files.example.com/a.epub", wantErr: true},
		{name: "no extension", url: "http://files.example.com/a", wantErr: true},
		{name: "html page", url: "http://files.example.com/index.html", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := fetcher.ValidateURL(tt.url)
			if tt.wantErr {
				require.ErrorIs(t, err, errs.ErrValidation)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

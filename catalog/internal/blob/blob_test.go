package blob

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	t.Parallel()

	t.Run("documents go under books/", func(t *testing.T) {
		t.Parallel()
		key := objectKey("My Book.pdf", AssetDocument)
		require.True(t, strings.HasPrefix(key, "books/my-book-"), key)
		require.True(t, strings.HasSuffix(key, ".pdf"), key)
	})

	t.Run("images go under covers/", func(t *testing.T) {
		t.Parallel()
		key := objectKey("Cover Art.JPG", AssetImage)
		require.True(t, strings.HasPrefix(key, "covers/cover-art-"), key)
		require.True(t, strings.HasSuffix(key, ".jpg"), key)
	})

	t.Run("unique per upload", func(t *testing.T) {
		t.Parallel()
		require.NotEqual(t,
			objectKey("dune.pdf", AssetDocument),
			objectKey("dune.pdf", AssetDocument))
	})

	t.Run("hostile names sanitized", func(t *testing.T) {
		t.Parallel()
		key := objectKey("../../etc/passwd.pdf", AssetDocument)
		require.True(t, strings.HasPrefix(key, "books/passwd-"), key)
		require.NotContains(t, key, "..")
	})
}

// Documents must keep their document content types so stores never reinterpret
// a PDF as an image.
func TestContentType(t *testing.T) {
	t.Parallel()
	var tests = []struct {
		name     string
		fileName string
		kind     AssetKind
		want     string
	}{
		{name: "pdf document", fileName: "dune.pdf", kind: AssetDocument, want: "application/pdf"},
		{name: "pdf document uppercase ext", fileName: "DUNE.PDF", kind: AssetDocument, want: "application/pdf"},
		{name: "epub document", fileName: "dune.epub", kind: AssetDocument, want: "application/epub+zip"},
		{name: "pdf never typed as image by kind alone", fileName: "dune.bin", kind: AssetDocument, want: "application/octet-stream"},
		{name: "png image", fileName: "cover.png", kind: AssetImage, want: "image/png"},
		{name: "unknown image ext falls back to jpeg", fileName: "cover.raw42", kind: AssetImage, want: "image/jpeg"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, contentType(tt.fileName, tt.kind))
		})
	}
}

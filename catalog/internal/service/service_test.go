package service_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ebookshare/catalog-service/catalog/internal/blob"
	"github.com/ebookshare/catalog-service/catalog/internal/errs"
	"github.com/ebookshare/catalog-service/catalog/internal/fetcher"
	"github.com/ebookshare/catalog-service/catalog/internal/model"
	"github.com/ebookshare/catalog-service/catalog/internal/service"
	"github.com/ebookshare/catalog-service/pkg/kafka"
)

type fakeRepo struct {
	mu        sync.Mutex
	books     []model.Book
	users     map[string]model.User
	nextID    int
	createErr error
}

func newFakeRepo(seed ...model.Book) *fakeRepo {
	r := &fakeRepo{users: make(map[string]model.User), nextID: 1}
	for _, b := range seed {
		b.ID = r.nextID
		r.nextID++
		r.books = append(r.books, b)
	}
	return r
}

func (f *fakeRepo) CreateBook(_ context.Context, book model.Book) (model.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return model.Book{}, f.createErr
	}
	book.ID = f.nextID
	f.nextID++
	f.books = append(f.books, book)
	return book, nil
}

func (f *fakeRepo) FindDuplicate(_ context.Context, title, author string) (model.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.books {
		if b.Title == title && b.Author == author {
			return b, nil
		}
	}
	return model.Book{}, errs.ErrNotFound
}

func (f *fakeRepo) GetBook(_ context.Context, id int) (model.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.books {
		if b.ID == id {
			return b, nil
		}
	}
	return model.Book{}, errs.ErrNotFound
}

func (f *fakeRepo) ListBooks(_ context.Context, limit int) ([]model.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	books := append([]model.Book(nil), f.books...)
	if limit > 0 && len(books) > limit {
		books = books[:limit]
	}
	return books, nil
}

func (f *fakeRepo) SearchBooks(_ context.Context, term string, limit int) ([]model.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	needle := strings.ToLower(term)
	var out []model.Book
	for _, b := range f.books {
		if strings.Contains(strings.ToLower(b.Title), needle) ||
			strings.Contains(strings.ToLower(b.Author), needle) ||
			strings.Contains(strings.ToLower(b.Tags), needle) {
			out = append(out, b)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRepo) DeleteBook(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, b := range f.books {
		if b.ID == id {
			f.books = append(f.books[:i], f.books[i+1:]...)
			return nil
		}
	}
	return errs.ErrNotFound
}

func (f *fakeRepo) IncrementDownload(_ context.Context, id int) (model.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.books {
		if f.books[i].ID == id {
			f.books[i].DownloadCount++
			return f.books[i], nil
		}
	}
	return model.Book{}, errs.ErrNotFound
}

func (f *fakeRepo) CreateUser(_ context.Context, user model.User) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[user.Email]; ok {
		return model.User{}, errs.ErrDuplicate
	}
	user.ID = len(f.users) + 1
	f.users[user.Email] = user
	return user, nil
}

func (f *fakeRepo) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[email]
	if !ok {
		return model.User{}, errs.ErrNotFound
	}
	return user, nil
}

type fakeBlob struct {
	mu      sync.Mutex
	err     error
	uploads int
	kinds   map[string]blob.AssetKind
}

func (f *fakeBlob) Upload(_ context.Context, r io.Reader, _ int64, name string, kind blob.AssetKind) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	if f.kinds == nil {
		f.kinds = make(map[string]blob.AssetKind)
	}
	f.kinds[name] = kind
	f.uploads++
	return "https://blob.example.com/ebooklib/" + name, nil
}

type fakeFetcher struct {
	err      error
	content  []byte
	calls    int
	lastPath string
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (string, error) {
	if err := fetcher.ValidateURL(rawURL); err != nil {
		return "", err
	}
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	tmp, err := os.CreateTemp(os.TempDir(), "ebooklib-test-*.pdf")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(f.content); err != nil {
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	f.lastPath = tmp.Name()
	return tmp.Name(), nil
}

type fakeMeta struct {
	title string
}

func (f *fakeMeta) Title(string) string { return f.title }

func newTestService(repo *fakeRepo, blobs *fakeBlob, fetch *fakeFetcher, meta *fakeMeta) *service.Service {
	return service.NewService(repo, blobs, fetch, meta, kafka.NewEnqueuer(nil), zap.NewNop())
}

func TestIngestUpload_CreatesExactlyOneBook(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo()
	blobs := &fakeBlob{}
	svc := newTestService(repo, blobs, &fakeFetcher{}, &fakeMeta{})

	data := []byte("%PDF-1.4 fake")
	book, err := svc.IngestUpload(context.Background(), model.UploadRequest{
		Title:  "Dune",
		Author: "Herbert",
		Tags:   "scifi",
		File:   &model.FileUpload{Name: "dune.pdf", Size: int64(len(data)), Data: bytes.NewReader(data)},
		Cover:  &model.FileUpload{Name: "cover.jpg", Size: 2, Data: bytes.NewReader([]byte{0xff, 0xd8})},
	})
	require.NoError(t, err)
	require.NotEmpty(t, book.FilePath)
	require.Len(t, repo.books, 1)
	require.Equal(t, 2, blobs.uploads)
	require.NotEmpty(t, repo.books[0].FilePath)
	// the document must never take the image path, and vice versa
	require.Equal(t, blob.AssetDocument, blobs.kinds["dune.pdf"])
	require.Equal(t, blob.AssetImage, blobs.kinds["cover.jpg"])
}

func TestIngestUpload_DuplicateCreatesNothing(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo(model.Book{Title: "Dune", Author: "Herbert", FilePath: "https://x/a.pdf"})
	blobs := &fakeBlob{}
	svc := newTestService(repo, blobs, &fakeFetcher{}, &fakeMeta{})

	_, err := svc.IngestUpload(context.Background(), model.UploadRequest{
		Title:   "Dune",
		Author:  "Herbert",
		BookURL: "http://elsewhere.example.com/dune.pdf",
	})
	require.ErrorIs(t, err, errs.ErrDuplicate)
	require.Len(t, repo.books, 1)
	require.Equal(t, 0, blobs.uploads)
}

func TestIngestUpload_MissingTitle(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeBlob{}, &fakeFetcher{}, &fakeMeta{})

	_, err := svc.IngestUpload(context.Background(), model.UploadRequest{
		Author:  "Herbert",
		BookURL: "http://x/a.pdf",
	})
	require.ErrorIs(t, err, errs.ErrValidation)
	require.Empty(t, repo.books)
}

func TestIngestUpload_RejectsUnknownExtension(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo()
	blobs := &fakeBlob{}
	svc := newTestService(repo, blobs, &fakeFetcher{}, &fakeMeta{})

	_, err := svc.IngestUpload(context.Background(), model.UploadRequest{
		Title:  "Notes",
		Author: "Nobody",
		File:   &model.FileUpload{Name: "notes.txt", Size: 5, Data: strings.NewReader("hello")},
	})
	require.ErrorIs(t, err, errs.ErrValidation)
	require.Empty(t, repo.books)
	require.Equal(t, 0, blobs.uploads)
}

func TestIngestUpload_UploadFailureCreatesNoRecord(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo()
	blobs := &fakeBlob{err: errs.ErrUpload}
	svc := newTestService(repo, blobs, &fakeFetcher{}, &fakeMeta{})

	_, err := svc.IngestUpload(context.Background(), model.UploadRequest{
		Title:  "Dune",
		Author: "Herbert",
		File:   &model.FileUpload{Name: "dune.pdf", Size: 4, Data: strings.NewReader("%PDF")},
	})
	require.ErrorIs(t, err, errs.ErrUpload)
	require.Empty(t, repo.books)
}

func TestIngestUpload_ExternalURLStoredVerbatim(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeBlob{}, &fakeFetcher{}, &fakeMeta{})

	book, err := svc.IngestUpload(context.Background(), model.UploadRequest{
		Title:   "Dune",
		Author:  "Herbert",
		BookURL: "http://mirror.example.com/dune.pdf",
	})
	require.NoError(t, err)
	require.Equal(t, "http://mirror.example.com/dune.pdf", book.FilePath)
	// no explicit cover: resolved to the deterministic placeholder on read
	require.Equal(t, service.PlaceholderCover("Dune"), book.CoverURL)
	require.Empty(t, repo.books[0].CoverURL)
}

func TestIngestRemote_Success(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo()
	fetch := &fakeFetcher{content: []byte("%PDF-1.4 fake")}
	svc := newTestService(repo, &fakeBlob{}, fetch, &fakeMeta{title: "Extracted Title"})

	book, err := svc.IngestRemote(context.Background(), model.RemoteIngestRequest{
		URL: "http://files.example.com/some-book.pdf",
	})
	require.NoError(t, err)
	require.Equal(t, "Extracted Title", book.Title)
	require.Equal(t, model.DefaultAuthor, book.Author)
	require.NotEmpty(t, book.FilePath)
	require.Len(t, repo.books, 1)

	_, statErr := os.Stat(fetch.lastPath)
	require.True(t, os.IsNotExist(statErr), "temp file must be removed after ingest")
}

func TestIngestRemote_UploadFailureLeavesNoTraces(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo()
	fetch := &fakeFetcher{content: []byte("%PDF-1.4 fake")}
	svc := newTestService(repo, &fakeBlob{err: errs.ErrUpload}, fetch, &fakeMeta{title: "Extracted Title"})

	_, err := svc.IngestRemote(context.Background(), model.RemoteIngestRequest{
		URL: "http://files.example.com/some-book.pdf",
	})
	require.ErrorIs(t, err, errs.ErrUpload)
	require.Empty(t, repo.books)

	_, statErr := os.Stat(fetch.lastPath)
	require.True(t, os.IsNotExist(statErr), "temp file must be removed on failure too")
}

func TestIngestRemote_RejectsNonPDFURL(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo()
	fetch := &fakeFetcher{content: []byte("x")}
	svc := newTestService(repo, &fakeBlob{}, fetch, &fakeMeta{})

	_, err := svc.IngestRemote(context.Background(), model.RemoteIngestRequest{
		URL: "http://files.example.com/some-book.mobi",
	})
	require.ErrorIs(t, err, errs.ErrValidation)
	require.Empty(t, repo.books)
	require.Empty(t, fetch.lastPath)
}

func TestImportBatch_AddedSkipped(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeBlob{}, &fakeFetcher{}, &fakeMeta{})

	report, err := svc.ImportBatch(context.Background(), []model.BatchItem{
		{Title: "A", Author: "B", PdfURL: "http://x/a.pdf"},
		{Title: "A", Author: "B", PdfURL: "http://x/a.pdf"},
	})
	require.NoError(t, err)
	require.Equal(t, model.ImportReport{Added: 1, Skipped: 1}, report)
	require.Len(t, repo.books, 1)
	require.Equal(t, "http://x/a.pdf", repo.books[0].FilePath)
}

func TestImportBatch_SkipsIncompleteDescriptors(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeBlob{}, &fakeFetcher{}, &fakeMeta{})

	report, err := svc.ImportBatch(context.Background(), []model.BatchItem{
		{Title: "No Author", PdfURL: "http://x/a.pdf"},
		{Author: "No Title", PdfURL: "http://x/b.pdf"},
		{Title: "Complete", Author: "Writer", Category: "scifi", PdfURL: "http://x/c.pdf"},
	})
	require.NoError(t, err)
	require.Equal(t, model.ImportReport{Added: 1, Skipped: 2}, report)
	require.Len(t, repo.books, 1)
	require.Equal(t, "scifi", repo.books[0].Tags)
}

func TestImportBatch_FetchFlagRunsRemoteIngest(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo()
	blobs := &fakeBlob{}
	fetch := &fakeFetcher{content: []byte("%PDF-1.4 fake")}
	svc := newTestService(repo, blobs, fetch, &fakeMeta{})

	report, err := svc.ImportBatch(context.Background(), []model.BatchItem{
		{Title: "Dune", Author: "Herbert", PdfURL: "http://x/dune.pdf", Fetch: true},
	})
	require.NoError(t, err)
	require.Equal(t, model.ImportReport{Added: 1, Skipped: 0}, report)
	require.Equal(t, 1, fetch.calls)
	require.Len(t, repo.books, 1)
	require.Equal(t, blob.AssetDocument, blobs.kinds["dune.pdf"])
	require.NotEqual(t, "http://x/dune.pdf", repo.books[0].FilePath, "fetched items must point at the re-uploaded asset")
}

func TestImportBatch_DuplicateSkippedBeforeFetch(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo(model.Book{Title: "Dune", Author: "Herbert", FilePath: "https://x/a.pdf"})
	fetch := &fakeFetcher{content: []byte("%PDF-1.4 fake")}
	svc := newTestService(repo, &fakeBlob{}, fetch, &fakeMeta{})

	report, err := svc.ImportBatch(context.Background(), []model.BatchItem{
		{Title: "Dune", Author: "Herbert", PdfURL: "http://x/dune.pdf", Fetch: true},
	})
	require.NoError(t, err)
	require.Equal(t, model.ImportReport{Added: 0, Skipped: 1}, report)
	require.Equal(t, 0, fetch.calls, "a known (title, author) must not cost a download")
	require.Len(t, repo.books, 1)
}

func TestDownload_IncrementsCounter(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo(model.Book{Title: "Dune", Author: "Herbert", FilePath: "https://x/a.pdf"})
	svc := newTestService(repo, &fakeBlob{}, &fakeFetcher{}, &fakeMeta{})

	for i := 1; i <= 3; i++ {
		fileURL, err := svc.Download(context.Background(), 1)
		require.NoError(t, err)
		require.Equal(t, "https://x/a.pdf", fileURL)
		require.Equal(t, i, repo.books[0].DownloadCount)
	}
}

func TestDownload_UnknownBook(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeBlob{}, &fakeFetcher{}, &fakeMeta{})

	_, err := svc.Download(context.Background(), 42)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestListBooks_SearchDelegatesAndResolvesCovers(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo(
		model.Book{Title: "Dune", Author: "Herbert", Tags: "scifi", FilePath: "https://x/a.pdf"},
		model.Book{Title: "Emma", Author: "Austen", Tags: "classic", FilePath: "https://x/b.pdf"},
	)
	svc := newTestService(repo, &fakeBlob{}, &fakeFetcher{}, &fakeMeta{})

	for _, term := range []string{"dune", "HERBERT", "scifi"} {
		books, err := svc.ListBooks(context.Background(), term, 0)
		require.NoError(t, err)
		require.Len(t, books, 1, "term %q", term)
		require.Equal(t, "Dune", books[0].Title)
		require.Equal(t, service.PlaceholderCover("Dune"), books[0].CoverURL)
	}

	all, err := svc.ListBooks(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestPlaceholderCover_Deterministic(t *testing.T) {
	t.Parallel()
	first := service.PlaceholderCover("Dune")
	for i := 0; i < 5; i++ {
		require.Equal(t, first, service.PlaceholderCover("Dune"))
	}
	require.Equal(t, "https://via.placeholder.com/300x450/6366f1/ffffff?text=DU", first)
	require.NotEqual(t, first, service.PlaceholderCover("Emma"))
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeBlob{}, &fakeFetcher{}, &fakeMeta{})

	user, err := svc.Register(context.Background(), model.UserCreateRequest{
		Email:    "reader@example.com",
		Name:     "Reader",
		Password: "correct horse",
	})
	require.NoError(t, err)
	require.NotEqual(t, "correct horse", repo.users[user.Email].Password, "password must be stored hashed")

	got, err := svc.Authenticate(context.Background(), "reader@example.com", "correct horse")
	require.NoError(t, err)
	require.Equal(t, user.Email, got.Email)

	_, err = svc.Authenticate(context.Background(), "reader@example.com", "wrong")
	require.ErrorIs(t, err, errs.ErrNotFound)

	_, err = svc.Authenticate(context.Background(), "ghost@example.com", "whatever")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

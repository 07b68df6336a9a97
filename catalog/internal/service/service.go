package service

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ebookshare/catalog-service/catalog/internal/blob"
	"github.com/ebookshare/catalog-service/catalog/internal/errs"
	"github.com/ebookshare/catalog-service/catalog/internal/model"
	"github.com/ebookshare/catalog-service/catalog/internal/repository"
	"github.com/ebookshare/catalog-service/pkg/auth"
	"github.com/ebookshare/catalog-service/pkg/kafka"
)

// Extensions accepted for directly uploaded assets.
var allowedUploadExtensions = map[string]struct{}{
	".pdf":  {},
	".epub": {},
}

type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

type TitleExtractor interface {
	Title(path string) string
}

type BlobStore interface {
	Upload(ctx context.Context, r io.Reader, size int64, name string, kind blob.AssetKind) (string, error)
}

type Service struct {
	log      *zap.Logger
	repo     repository.Repository
	blobs    BlobStore
	fetcher  Fetcher
	meta     TitleExtractor
	enqueuer kafka.Enqueuer
}

func NewService(repo repository.Repository, blobs BlobStore, fetcher Fetcher, meta TitleExtractor, enqueuer kafka.Enqueuer, log *zap.Logger) *Service {
	return &Service{
		log:      log.Named("service"),
		repo:     repo,
		blobs:    blobs,
		fetcher:  fetcher,
		meta:     meta,
		enqueuer: enqueuer,
	}
}

// PlaceholderCover derives a deterministic cover URL from the title alone:
// the same title always yields the same placeholder.
func PlaceholderCover(title string) string {
	runes := []rune(strings.TrimSpace(title))
	if len(runes) > 2 {
		runes = runes[:2]
	}
	initials := strings.ToUpper(string(runes))
	return "https://via.placeholder.com/300x450/6366f1/ffffff?text=" + url.QueryEscape(initials)
}

func (s *Service) resolveCover(b model.Book) model.Book {
	if b.CoverURL == "" {
		b.CoverURL = PlaceholderCover(b.Title)
	}
	return b
}

// IngestUpload is the direct-upload flow: validate, duplicate-check, upload
// the supplied assets, and persist only after every upload is confirmed.
func (s *Service) IngestUpload(ctx context.Context, req model.UploadRequest) (model.Book, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return model.Book{}, errors.Wrap(errs.ErrValidation, "title is required")
	}
	author := strings.TrimSpace(req.Author)
	if author == "" {
		return model.Book{}, errors.Wrap(errs.ErrValidation, "author is required")
	}

	if err := s.checkDuplicate(ctx, title, author); err != nil {
		return model.Book{}, err
	}

	var fileURL, coverURL string
	gg, uploadCtx := errgroup.WithContext(ctx)

	switch {
	case req.File != nil:
		if err := validateUploadName(req.File.Name); err != nil {
			return model.Book{}, err
		}
		file := req.File
		gg.Go(func() error {
			u, err := s.blobs.Upload(uploadCtx, file.Data, file.Size, file.Name, blob.AssetDocument)
			if err != nil {
				return err
			}
			fileURL = u
			return nil
		})
	case req.BookURL != "":
		// external link, accepted verbatim
		fileURL = req.BookURL
	default:
		return model.Book{}, errors.Wrap(errs.ErrValidation, "either a file or a book url is required")
	}

	switch {
	case req.Cover != nil:
		cover := req.Cover
		gg.Go(func() error {
			u, err := s.blobs.Upload(uploadCtx, cover.Data, cover.Size, cover.Name, blob.AssetImage)
			if err != nil {
				return err
			}
			coverURL = u
			return nil
		})
	case req.CoverURL != "":
		coverURL = req.CoverURL
	}

	if err := gg.Wait(); err != nil {
		return model.Book{}, err
	}

	book, err := s.repo.CreateBook(ctx, model.Book{
		Title:       title,
		Author:      author,
		Description: req.Description,
		Tags:        req.Tags,
		FilePath:    fileURL,
		CoverURL:    coverURL,
	})
	if err != nil {
		return model.Book{}, err
	}
	s.log.Info("book ingested", zap.Int("id", book.ID), zap.String("title", book.Title))
	return s.resolveCover(book), nil
}

// IngestRemote is the register-by-URL flow: fetch to a temp file, derive a
// title when the caller supplied none, upload, persist. The temp file is
// removed on every exit path.
func (s *Service) IngestRemote(ctx context.Context, req model.RemoteIngestRequest) (model.Book, error) {
	tmp, err := s.fetcher.Fetch(ctx, req.URL)
	if err != nil {
		return model.Book{}, err
	}
	defer func() {
		if err := os.Remove(tmp); err != nil {
			s.log.Warn("temp file cleanup", zap.String("path", tmp), zap.Error(err))
		}
	}()

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = s.meta.Title(tmp)
	}
	author := strings.TrimSpace(req.Author)
	if author == "" {
		author = model.DefaultAuthor
	}

	if err := s.checkDuplicate(ctx, title, author); err != nil {
		return model.Book{}, err
	}

	f, err := os.Open(tmp)
	if err != nil {
		return model.Book{}, errors.Wrap(err, "open temp file")
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return model.Book{}, errors.Wrap(err, "stat temp file")
	}

	fileURL, err := s.blobs.Upload(ctx, f, st.Size(), assetName(req.URL), blob.AssetDocument)
	if err != nil {
		return model.Book{}, err
	}

	book, err := s.repo.CreateBook(ctx, model.Book{
		Title:       title,
		Author:      author,
		Description: req.Description,
		Tags:        req.Tags,
		FilePath:    fileURL,
	})
	if err != nil {
		return model.Book{}, err
	}
	s.log.Info("book ingested from url", zap.Int("id", book.ID), zap.String("title", book.Title), zap.String("url", req.URL))
	return s.resolveCover(book), nil
}

// ImportBatch processes descriptors independently: one item's failure never
// aborts the rest, it only counts as skipped.
func (s *Service) ImportBatch(ctx context.Context, items []model.BatchItem) (model.ImportReport, error) {
	var report model.ImportReport
	for i, item := range items {
		if err := s.importOne(ctx, item); err != nil {
			s.log.Warn("import item skipped",
				zap.Int("index", i),
				zap.String("title", item.Title),
				zap.Error(err))
			report.Skipped++
			continue
		}
		report.Added++
	}
	s.log.Info("batch import finished", zap.Int("added", report.Added), zap.Int("skipped", report.Skipped))
	return report, nil
}

func (s *Service) importOne(ctx context.Context, item model.BatchItem) error {
	title := strings.TrimSpace(item.Title)
	author := strings.TrimSpace(item.Author)
	if title == "" || author == "" {
		return errors.Wrap(errs.ErrValidation, "title and author are required")
	}
	if item.PdfURL == "" {
		return errors.Wrap(errs.ErrValidation, "pdf_url is required")
	}
	tags := item.Tags
	if tags == "" {
		tags = item.Category
	}

	// duplicate check comes first so a known (title, author) never costs a transfer
	if err := s.checkDuplicate(ctx, title, author); err != nil {
		return err
	}

	if item.Fetch {
		_, err := s.IngestRemote(ctx, model.RemoteIngestRequest{
			URL:         item.PdfURL,
			Title:       title,
			Author:      author,
			Description: item.Description,
			Tags:        tags,
		})
		return err
	}

	// provided URL is stored as-is, no download/re-upload
	_, err := s.repo.CreateBook(ctx, model.Book{
		Title:       title,
		Author:      author,
		Description: item.Description,
		Tags:        tags,
		FilePath:    item.PdfURL,
		CoverURL:    item.CoverURL,
	})
	return err
}

// Download bumps the counter and returns the asset URL for redirecting. The
// download event is best-effort: a broker failure only logs.
func (s *Service) Download(ctx context.Context, id int) (string, error) {
	book, err := s.repo.IncrementDownload(ctx, id)
	if err != nil {
		return "", err
	}
	if err := s.enqueuer.Enqueue(kafka.DownloadsTopic, kafka.DownloadEvent{
		BookID:       book.ID,
		Title:        book.Title,
		DownloadedAt: time.Now().UTC(),
	}); err != nil {
		s.log.Warn("download event", zap.Int("id", book.ID), zap.Error(err))
	}
	return book.FilePath, nil
}

func (s *Service) ListBooks(ctx context.Context, term string, limit int) ([]model.Book, error) {
	var (
		books []model.Book
		err   error
	)
	if term != "" {
		books, err = s.repo.SearchBooks(ctx, term, limit)
	} else {
		books, err = s.repo.ListBooks(ctx, limit)
	}
	if err != nil {
		return nil, err
	}
	for i := range books {
		books[i] = s.resolveCover(books[i])
	}
	return books, nil
}

func (s *Service) GetBook(ctx context.Context, id int) (model.Book, error) {
	book, err := s.repo.GetBook(ctx, id)
	if err != nil {
		return model.Book{}, err
	}
	return s.resolveCover(book), nil
}

func (s *Service) DeleteBook(ctx context.Context, id int) error {
	return s.repo.DeleteBook(ctx, id)
}

func (s *Service) Register(ctx context.Context, req model.UserCreateRequest) (model.User, error) {
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return model.User{}, errors.Wrap(err, "hash password")
	}
	return s.repo.CreateUser(ctx, model.User{
		Email:    req.Email,
		Name:     req.Name,
		Password: hash,
	})
}

// Authenticate returns errs.ErrNotFound for both an unknown email and a wrong
// password, so callers cannot distinguish the two.
func (s *Service) Authenticate(ctx context.Context, email, password string) (model.User, error) {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return model.User{}, err
	}
	if !auth.CheckPassword(user.Password, password) {
		return model.User{}, errs.ErrNotFound
	}
	return user, nil
}

func (s *Service) checkDuplicate(ctx context.Context, title, author string) error {
	if _, err := s.repo.FindDuplicate(ctx, title, author); err == nil {
		return errors.Wrapf(errs.ErrDuplicate, "%q by %s", title, author)
	} else if !errors.Is(err, errs.ErrNotFound) {
		return err
	}
	return nil
}

func validateUploadName(name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := allowedUploadExtensions[ext]; !ok {
		return errors.Wrapf(errs.ErrValidation, "unsupported file type %q", ext)
	}
	return nil
}

func assetName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || path.Base(u.Path) == "." || path.Base(u.Path) == "/" {
		return "document.pdf"
	}
	return path.Base(u.Path)
}

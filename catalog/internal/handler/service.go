package handler

import (
	"context"

	"github.com/ebookshare/catalog-service/catalog/internal/model"
	"github.com/ebookshare/catalog-service/catalog/internal/service"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type CatalogService interface {
	ListBooks(ctx context.Context, term string, limit int) ([]model.Book, error)
	GetBook(ctx context.Context, id int) (model.Book, error)
	Download(ctx context.Context, id int) (string, error)
	IngestUpload(ctx context.Context, req model.UploadRequest) (model.Book, error)
	IngestRemote(ctx context.Context, req model.RemoteIngestRequest) (model.Book, error)
	ImportBatch(ctx context.Context, items []model.BatchItem) (model.ImportReport, error)
	DeleteBook(ctx context.Context, id int) error
	Register(ctx context.Context, req model.UserCreateRequest) (model.User, error)
	Authenticate(ctx context.Context, email, password string) (model.User, error)
}

var _ CatalogService = (*service.Service)(nil)

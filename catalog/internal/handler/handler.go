package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ebookshare/catalog-service/catalog/internal/errs"
	"github.com/ebookshare/catalog-service/catalog/internal/model"
	"github.com/ebookshare/catalog-service/pkg/auth"
	md "github.com/ebookshare/catalog-service/pkg/middleware"
	"github.com/ebookshare/catalog-service/pkg/validate"
)

const tokenTTL = 24 * time.Hour

type Handler struct {
	catalogSvc CatalogService
	jwtKey     []byte
	log        *zap.Logger
}

func New(catalogSvc CatalogService, jwtKey []byte, log *zap.Logger) *Handler {
	return &Handler{
		catalogSvc: catalogSvc,
		jwtKey:     jwtKey,
		log:        log,
	}
}

func (h *Handler) NewRouter() *echo.Echo {
	e := echo.New()
	const (
		baseRPS = 10
		apiRPS  = 100
	)
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10, // 4 KB
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodOptions, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
		AllowCredentials: true,
	}))

	base := e.Group("", md.NewRateLimiter(baseRPS))
	base.GET("/manage/health", h.Health)

	e.Validator = validate.NewCustomValidator()
	api := e.Group("/api/v1",
		middleware.RequestLoggerWithConfig(md.RequestLoggerConfig()),
		middleware.RequestID(),
		md.NewRateLimiter(apiRPS),
	)

	api.POST("/register", h.Register)
	api.POST("/authorize", h.Authorize)

	api.GET("/books", h.ListBooks)
	api.GET("/books/:id", h.GetBook)
	api.GET("/books/:id/download", h.DownloadBook)

	authed := api.Group("", md.JwtAuthentication(h.jwtKey))
	authed.POST("/books", h.CreateBook)
	authed.POST("/books/remote", h.CreateBookFromURL)

	admin := authed.Group("", md.AdminRequired)
	admin.POST("/books/import", h.ImportBooks)
	admin.DELETE("/books/:id", h.DeleteBook)

	return e
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (h *Handler) ListBooks(c echo.Context) error {
	term := c.QueryParam("search")
	if term == "" {
		term = c.QueryParam("query")
	}
	if term == "" {
		term = c.QueryParam("q")
	}

	var limit int
	if limitParam := c.QueryParam("limit"); limitParam != "" {
		var err error
		if limit, err = strconv.Atoi(limitParam); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, errors.New("limit is invalid"))
		}
	}

	books, err := h.catalogSvc.ListBooks(c.Request().Context(), term, limit)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, books)
}

func (h *Handler) GetBook(c echo.Context) error {
	id, err := bookID(c)
	if err != nil {
		return err
	}
	book, err := h.catalogSvc.GetBook(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, book)
}

func (h *Handler) DownloadBook(c echo.Context) error {
	id, err := bookID(c)
	if err != nil {
		return err
	}
	fileURL, err := h.catalogSvc.Download(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.Redirect(http.StatusFound, fileURL)
}

func (h *Handler) CreateBook(c echo.Context) error {
	req := model.UploadRequest{
		Title:       c.FormValue("title"),
		Author:      c.FormValue("author"),
		Description: c.FormValue("description"),
		Tags:        c.FormValue("tags"),
		BookURL:     c.FormValue("book_url"),
		CoverURL:    c.FormValue("cover_url"),
	}
	if req.Tags == "" {
		req.Tags = c.FormValue("category")
	}
	if req.BookURL == "" {
		req.BookURL = c.FormValue("pdf_url")
	}

	file, closeFile, err := formFile(c, "file", "pdf")
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if closeFile != nil {
		defer closeFile()
	}
	req.File = file

	cover, closeCover, err := formFile(c, "cover")
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if closeCover != nil {
		defer closeCover()
	}
	req.Cover = cover

	book, err := h.catalogSvc.IngestUpload(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, book)
}

func (h *Handler) CreateBookFromURL(c echo.Context) error {
	var req model.RemoteIngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	book, err := h.catalogSvc.IngestRemote(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, book)
}

func (h *Handler) ImportBooks(c echo.Context) error {
	var items []model.BatchItem
	if err := c.Bind(&items); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	report, err := h.catalogSvc.ImportBatch(c.Request().Context(), items)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) DeleteBook(c echo.Context) error {
	id, err := bookID(c)
	if err != nil {
		return err
	}
	if err := h.catalogSvc.DeleteBook(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Register(c echo.Context) error {
	var req model.UserCreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	user, err := h.catalogSvc.Register(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, user)
}

func (h *Handler) Authorize(c echo.Context) error {
	var credentials model.AuthRequest
	if err := c.Bind(&credentials); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&credentials); err != nil {
		return err
	}

	user, err := h.catalogSvc.Authenticate(c.Request().Context(), credentials.Email, credentials.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
	}

	role := auth.RoleReader
	if user.IsAdmin {
		role = auth.RoleAdmin
	}
	claims := &auth.Claims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
		},
	}
	claims.Profile.Name = user.Name
	claims.Profile.Role = role

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(h.jwtKey)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, model.AuthResponse{Token: signed})
}

func bookID(c echo.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, errors.New("id is invalid"))
	}
	return id, nil
}

// formFile returns the first present part among names. A missing part is not
// an error; a part that is present but cannot be opened is a server fault.
func formFile(c echo.Context, names ...string) (*model.FileUpload, func(), error) {
	for _, name := range names {
		fh, err := c.FormFile(name)
		if err != nil {
			continue
		}
		src, err := fh.Open()
		if err != nil {
			return nil, nil, err
		}
		upload := &model.FileUpload{
			Name: fh.Filename,
			Size: fh.Size,
			Data: src,
		}
		return upload, func() { _ = src.Close() }, nil
	}
	return nil, nil, nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrDuplicate):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, errs.ErrFetch), errors.Is(err, errs.ErrUpload):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

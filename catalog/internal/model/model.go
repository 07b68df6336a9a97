package model

import (
	"io"
	"time"
)

// DefaultAuthor labels books whose author could not be determined.
const DefaultAuthor = "Unknown"

type Book struct {
	ID            int       `json:"id" db:"id"`
	Title         string    `json:"title" db:"title"`
	Author        string    `json:"author" db:"author"`
	Description   string    `json:"description,omitempty" db:"description"`
	Tags          string    `json:"tags,omitempty" db:"tags"`
	FilePath      string    `json:"filePath" db:"file_path"`
	CoverURL      string    `json:"coverUrl" db:"cover_url"`
	DownloadCount int       `json:"downloadCount" db:"download_count"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
}

type User struct {
	ID       int    `json:"id" db:"id"`
	Email    string `json:"email" db:"email"`
	Name     string `json:"name" db:"name"`
	Password string `json:"-" db:"password"`
	IsAdmin  bool   `json:"isAdmin" db:"is_admin"`
}

// FileUpload carries one multipart part through the ingest pipeline.
type FileUpload struct {
	Name string
	Size int64
	Data io.Reader
}

// UploadRequest is the direct-upload intake: either File or BookURL supplies
// the primary asset, and either Cover or CoverURL supplies the cover.
type UploadRequest struct {
	Title       string
	Author      string
	Description string
	Tags        string
	BookURL     string
	File        *FileUpload
	CoverURL    string
	Cover       *FileUpload
}

type RemoteIngestRequest struct {
	URL         string `json:"url" validate:"required,url"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
	Tags        string `json:"tags"`
}

// BatchItem is one descriptor of the JSON import format. Category is a legacy
// alias for Tags. Fetch forces a download/re-upload instead of storing PdfURL
// verbatim.
type BatchItem struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
	Tags        string `json:"tags"`
	Category    string `json:"category"`
	CoverURL    string `json:"cover_url"`
	PdfURL      string `json:"pdf_url"`
	Fetch       bool   `json:"fetch"`
}

type ImportReport struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

type UserCreateRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

type AuthRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	Token string `json:"token"`
}

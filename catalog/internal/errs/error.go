package errs

import (
	"errors"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrDuplicate  = errors.New("already exists")
	ErrFetch      = errors.New("remote fetch failed")
	ErrUpload     = errors.New("blob upload failed")
)

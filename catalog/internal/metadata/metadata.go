package metadata

import (
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// FallbackTitle substitutes for documents whose title cannot be read.
const FallbackTitle = "Untitled"

type Extractor struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Extractor {
	return &Extractor{log: log.Named("metadata")}
}

// Title returns the embedded document title, or FallbackTitle when the file
// cannot be parsed or carries none. Extraction never fails the caller; the
// parser panics on some malformed inputs, which counts as a parse failure.
func (e *Extractor) Title(path string) (title string) {
	title = FallbackTitle
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("pdf metadata parse panicked", zap.String("path", path), zap.Any("reason", r))
			title = FallbackTitle
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		e.log.Warn("pdf open failed", zap.String("path", path), zap.Error(err))
		return FallbackTitle
	}
	defer f.Close()

	v := r.Trailer().Key("Info").Key("Title")
	if v.Kind() != pdf.String {
		return FallbackTitle
	}
	if t := strings.TrimSpace(v.Text()); t != "" {
		return t
	}
	return FallbackTitle
}

package ingest

import (
	"strings"

	apperrors "github.com/courttext/concordance/pkg/errors"
)

// ValidateText checks that the submitted text is non-blank and within the
// configured size limit.
func ValidateText(text string, maxBytes int) error {
	if strings.TrimSpace(text) == "" {
		return apperrors.New(apperrors.ErrInvalidInput, 400, "text is required and must not be blank")
	}
	if maxBytes > 0 && len(text) > maxBytes {
		return apperrors.Newf(apperrors.ErrInvalidInput, 400, "text must be at most %d bytes", maxBytes)
	}
	return nil
}

package pdfmerge

import (
	"errors"
	"fmt"
)

// ErrNoOverlays is returned when Merge is called without overlays
var ErrNoOverlays = errors.New("no overlays to merge")

// UnsupportedDocumentError marks source PDFs that cannot be stamped:
// encrypted, password protected, corrupt or without pages.
type UnsupportedDocumentError struct {
	Reason string
	Err    error
}

func (e *UnsupportedDocumentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unsupported document: %s: %v", e.Reason, e.Err)
	}
	return "unsupported document: " + e.Reason
}

func (e *UnsupportedDocumentError) Unwrap() error {
	return e.Err
}

// IsUnsupported reports whether err stems from an unstampable source PDF
func IsUnsupported(err error) bool {
	var u *UnsupportedDocumentError
	return errors.As(err, &u)
}

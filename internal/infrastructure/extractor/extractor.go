package extractor

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Extractor converts raw document bytes into plain text, dispatching on the
// declared file type. Unknown types fall back to utf-8 plaintext.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(_ context.Context, raw []byte, fileType string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(fileType)) {
	case "pdf":
		return extractPDF(raw)
	case "xlsx":
		return extractXLSX(raw)
	default:
		return extractPlaintext(raw)
	}
}

func extractPlaintext(raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("unsupported binary content for plaintext extraction")
	}
	return strings.TrimSpace(string(raw)), nil
}

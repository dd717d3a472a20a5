package chunking

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/kirillkom/docvault/internal/core/domain"
)

const (
	DefaultChunkSize = 1200
	DefaultOverlap   = 150
)

// Splitter is a deterministic sliding-window chunker. Identical input always
// yields identical output, which makes re-ingestion idempotent.
type Splitter struct {
	chunkSize int
	overlap   int
}

func NewSplitter(chunkSize, overlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "configure splitter",
			errors.New("chunk size must be positive"))
	}
	if overlap <= 0 || overlap >= chunkSize {
		return nil, domain.WrapError(domain.ErrInvalidInput, "configure splitter",
			errors.New("overlap must satisfy 0 < overlap < chunk size"))
	}
	return &Splitter{chunkSize: chunkSize, overlap: overlap}, nil
}

// Split walks the text in windows of chunkSize runes advancing by
// chunkSize-overlap. Each window is whitespace-normalized before emission;
// windows that normalize to nothing are dropped. Positions are zero-based
// and gapless over the emitted chunks.
func (s *Splitter) Split(text string) ([]domain.ChunkPiece, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "split text",
			errors.New("text is empty or whitespace"))
	}

	runes := []rune(text)
	step := s.chunkSize - s.overlap

	out := make([]domain.ChunkPiece, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + s.chunkSize
		if end > len(runes) {
			end = len(runes)
		}

		normalized := normalizeWhitespace(string(runes[start:end]))
		if normalized != "" {
			sum := sha256.Sum256([]byte(normalized))
			out = append(out, domain.ChunkPiece{
				Text:        normalized,
				Position:    len(out),
				ContentHash: hex.EncodeToString(sum[:]),
			})
		}

		if end == len(runes) {
			break
		}
	}
	return out, nil
}

// normalizeWhitespace collapses whitespace runs to a single space and trims.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

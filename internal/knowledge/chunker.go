package knowledge

import (
	"errors"
	"iter"
	"strings"
	"unicode"
)

// Default chunking parameters, in runes.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// ErrInvalidChunking indicates chunk size and overlap that cannot produce a
// terminating sequence of chunks.
var ErrInvalidChunking = errors.New("invalid chunking parameters")

// ChunkDraft is one segment produced by Split, before persistence assigns it
// an identity. Offsets are rune positions into the source document.
type ChunkDraft struct {
	Content     string
	Position    int
	StartOffset int
	EndOffset   int
}

// Split segments a document into overlapping drafts of roughly targetSize
// runes. Cuts prefer sentence boundaries, then whitespace, then a hard cut,
// searching backwards no further than half the window so chunks never shrink
// below targetSize/2 (except the final chunk).
//
// The returned sequence is lazy and restartable: each range over it re-splits
// from the start, and breaking out early does no extra work. Split validates
// parameters eagerly so misuse fails before any iteration.
func Split(document string, targetSize, overlap int) (iter.Seq[ChunkDraft], error) {
	if targetSize <= 0 || overlap < 0 || overlap >= targetSize {
		return nil, ErrInvalidChunking
	}

	runes := []rune(document)

	return func(yield func(ChunkDraft) bool) {
		if strings.TrimSpace(document) == "" {
			return
		}

		start := 0
		for position := 0; ; position++ {
			end := start + targetSize
			if end >= len(runes) {
				end = len(runes)
			} else {
				end = cutPoint(runes, start, end)
			}

			draft := ChunkDraft{
				Content:     string(runes[start:end]),
				Position:    position,
				StartOffset: start,
				EndOffset:   end,
			}
			if !yield(draft) {
				return
			}
			if end == len(runes) {
				return
			}

			next := end - overlap
			if next <= start {
				next = start + 1
			}
			start = next
		}
	}, nil
}

// cutPoint picks where to end a chunk that would otherwise stop at limit.
// It scans backwards through [start+window/2, limit) for a sentence
// terminator, then for whitespace, and falls back to the hard limit.
func cutPoint(runes []rune, start, limit int) int {
	floor := start + (limit-start)/2

	for i := limit - 1; i >= floor; i-- {
		if isSentenceEnd(runes[i]) {
			return i + 1
		}
	}
	for i := limit - 1; i >= floor; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return limit
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '\n', '。', '！', '？':
		return true
	}
	return false
}

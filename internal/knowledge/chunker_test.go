package knowledge

import (
	"errors"
	"strings"
	"testing"
)

func collect(t *testing.T, document string, targetSize, overlap int) []ChunkDraft {
	t.Helper()
	seq, err := Split(document, targetSize, overlap)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	var drafts []ChunkDraft
	for draft := range seq {
		drafts = append(drafts, draft)
	}
	return drafts
}

func TestSplit_InvalidParameters(t *testing.T) {
	tests := []struct {
		name       string
		targetSize int
		overlap    int
	}{
		{"zero size", 0, 0},
		{"negative size", -1, 0},
		{"negative overlap", 100, -1},
		{"overlap equals size", 100, 100},
		{"overlap exceeds size", 100, 150},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Split("some text", tt.targetSize, tt.overlap); !errors.Is(err, ErrInvalidChunking) {
				t.Errorf("got %v, want ErrInvalidChunking", err)
			}
		})
	}
}

func TestSplit_OffsetsSliceBackToContent(t *testing.T) {
	document := strings.Repeat("The cell is the basic unit of life. All organisms are made of cells. ", 40)
	runes := []rune(document)

	drafts := collect(t, document, 200, 50)
	if len(drafts) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(drafts))
	}

	for i, draft := range drafts {
		if got := string(runes[draft.StartOffset:draft.EndOffset]); got != draft.Content {
			t.Errorf("chunk %d: offsets do not slice back to content", i)
		}
		if draft.Position != i {
			t.Errorf("chunk %d: position = %d", i, draft.Position)
		}
	}
}

func TestSplit_CoverageAndOverlap(t *testing.T) {
	document := strings.Repeat("Force equals mass times acceleration. ", 60)
	runes := []rune(document)

	const overlap = 50
	drafts := collect(t, document, 200, overlap)

	if drafts[0].StartOffset != 0 {
		t.Errorf("first chunk starts at %d, want 0", drafts[0].StartOffset)
	}
	if last := drafts[len(drafts)-1]; last.EndOffset != len(runes) {
		t.Errorf("last chunk ends at %d, want %d", last.EndOffset, len(runes))
	}

	for i := 1; i < len(drafts); i++ {
		prev, cur := drafts[i-1], drafts[i]
		if cur.StartOffset >= prev.EndOffset {
			t.Errorf("chunk %d leaves a gap: starts at %d, previous ends at %d",
				i, cur.StartOffset, prev.EndOffset)
		}
		if cur.StartOffset <= prev.StartOffset {
			t.Errorf("chunk %d does not advance past chunk %d", i, i-1)
		}
	}
}

func TestSplit_PrefersSentenceBoundaries(t *testing.T) {
	document := strings.Repeat("Plants convert sunlight into energy. Roots absorb water from soil. ", 20)

	drafts := collect(t, document, 150, 30)
	boundaryCuts := 0
	for _, draft := range drafts[:len(drafts)-1] {
		trimmed := strings.TrimRight(draft.Content, " ")
		if strings.HasSuffix(trimmed, ".") {
			boundaryCuts++
		}
	}
	if boundaryCuts == 0 {
		t.Error("no chunk ended on a sentence boundary despite plenty being available")
	}
}

func TestSplit_MultibyteRunes(t *testing.T) {
	document := strings.Repeat("光合作用将阳光转化为化学能。植物的根从土壤中吸收水分。", 30)
	runes := []rune(document)

	drafts := collect(t, document, 100, 20)
	for i, draft := range drafts {
		if got := string(runes[draft.StartOffset:draft.EndOffset]); got != draft.Content {
			t.Fatalf("chunk %d: rune offsets broken for multi-byte text", i)
		}
	}
	if last := drafts[len(drafts)-1]; last.EndOffset != len(runes) {
		t.Errorf("last chunk ends at %d runes, want %d", last.EndOffset, len(runes))
	}
}

func TestSplit_ShortDocumentSingleChunk(t *testing.T) {
	document := "A short note about gravity."
	drafts := collect(t, document, 1000, 200)
	if len(drafts) != 1 {
		t.Fatalf("got %d chunks, want 1", len(drafts))
	}
	if drafts[0].Content != document {
		t.Errorf("single chunk should carry the whole document")
	}
}

func TestSplit_BlankDocumentYieldsNothing(t *testing.T) {
	if drafts := collect(t, "   \n\t  ", 100, 10); len(drafts) != 0 {
		t.Errorf("blank document produced %d chunks", len(drafts))
	}
}

func TestSplit_Restartable(t *testing.T) {
	document := strings.Repeat("Energy cannot be created or destroyed. ", 30)
	seq, err := Split(document, 150, 30)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	// First pass stops early; second pass must start over and see everything.
	first := 0
	for range seq {
		first++
		if first == 2 {
			break
		}
	}

	var second []ChunkDraft
	for draft := range seq {
		second = append(second, draft)
	}
	if len(second) <= 2 {
		t.Fatalf("second iteration saw %d chunks, expected a full pass", len(second))
	}
	if second[0].StartOffset != 0 || second[0].Position != 0 {
		t.Error("second iteration did not restart from the beginning")
	}
}

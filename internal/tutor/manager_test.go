package tutor

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/goleak"

	"github.com/rgknow/edurag/internal/apperr"
	"github.com/rgknow/edurag/internal/knowledge"
	"github.com/rgknow/edurag/internal/log"
)

// baseLookup is a BaseLookup over a fixed set of knowledge base ids.
type baseLookup map[uuid.UUID]bool

func (b baseLookup) GetKnowledgeBase(_ context.Context, id uuid.UUID) (knowledge.KnowledgeBase, error) {
	if !b[id] {
		return knowledge.KnowledgeBase{}, apperr.New(apperr.NotFound, "knowledge base %s", id)
	}
	return knowledge.KnowledgeBase{ID: id}, nil
}

func newTestManager(bases baseLookup) (*Manager, *MemoryStore) {
	store := NewMemoryStore()
	return NewManager(store, bases, time.Minute, log.NewNop()), store
}

func validStart() StartParams {
	return StartParams{
		LearnerID:   uuid.New(),
		Personality: PersonalityEncouraging,
		Type:        TypeHelp,
	}
}

func TestManager_Start(t *testing.T) {
	m, _ := newTestManager(nil)

	s, err := m.Start(context.Background(), validStart())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.Status != StatusActive {
		t.Errorf("status = %v, want active", s.Status)
	}
	if s.QuestionCount != 0 {
		t.Errorf("question count = %d, want 0", s.QuestionCount)
	}
	if s.StartedAt.IsZero() || s.LastActivityAt.IsZero() {
		t.Error("timestamps not set")
	}
}

func TestManager_Start_Validation(t *testing.T) {
	kbID := uuid.New()
	m, _ := newTestManager(baseLookup{kbID: true})
	ctx := context.Background()

	unknown := uuid.New()
	tests := []struct {
		name   string
		mutate func(*StartParams)
		kind   apperr.Kind
	}{
		{"missing learner", func(p *StartParams) { p.LearnerID = uuid.UUID{} }, apperr.InvalidInput},
		{"bad personality", func(p *StartParams) { p.Personality = "grumpy" }, apperr.InvalidInput},
		{"bad type", func(p *StartParams) { p.Type = "speedrun" }, apperr.InvalidInput},
		{"unknown knowledge base", func(p *StartParams) { p.Scope.KnowledgeBaseID = &unknown }, apperr.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := validStart()
			tt.mutate(&params)
			_, err := m.Start(ctx, params)
			if apperr.KindOf(err) != tt.kind {
				t.Errorf("kind = %v, want %v (err: %v)", apperr.KindOf(err), tt.kind, err)
			}
		})
	}

	// A known knowledge base passes the scope check.
	params := validStart()
	params.Scope.KnowledgeBaseID = &kbID
	if _, err := m.Start(ctx, params); err != nil {
		t.Errorf("Start with valid scope: %v", err)
	}
}

func TestManager_End_Idempotent(t *testing.T) {
	m, _ := newTestManager(nil)
	ctx := context.Background()

	s, err := m.Start(ctx, validStart())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	ended, err := m.End(ctx, s.ID)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if ended.Status != StatusCompleted || ended.EndedAt == nil {
		t.Fatalf("first End: status = %v, endedAt = %v", ended.Status, ended.EndedAt)
	}

	again, err := m.End(ctx, s.ID)
	if err != nil {
		t.Fatalf("second End: %v", err)
	}
	if again.Status != StatusCompleted {
		t.Errorf("second End changed status to %v", again.Status)
	}
	if !again.EndedAt.Equal(*ended.EndedAt) {
		t.Error("second End moved the end timestamp")
	}

	// Ending an abandoned session does not resurrect or re-end it.
	s2, _ := m.Start(ctx, validStart())
	if _, err := m.Abandon(ctx, s2.ID); err != nil {
		t.Fatalf("Abandon: %v", err)
	}
	got, err := m.End(ctx, s2.ID)
	if err != nil {
		t.Fatalf("End after Abandon: %v", err)
	}
	if got.Status != StatusAbandoned {
		t.Errorf("End after Abandon: status = %v, want abandoned", got.Status)
	}
}

func TestManager_End_Unknown(t *testing.T) {
	m, _ := newTestManager(nil)
	_, err := m.End(context.Background(), uuid.New())
	if apperr.KindOf(err) != apperr.NotFound {
		t.Errorf("kind = %v, want NotFound", apperr.KindOf(err))
	}
}

func TestManager_Feedback(t *testing.T) {
	m, store := newTestManager(nil)
	ctx := context.Background()

	s, _ := m.Start(ctx, validStart())
	in, err := store.RecordInteraction(ctx, Interaction{
		SessionID: s.ID, Query: "why", Response: "because",
	})
	if err != nil {
		t.Fatalf("RecordInteraction: %v", err)
	}

	if err := m.Feedback(ctx, s.ID, in.ID, FeedbackHelpful); err != nil {
		t.Fatalf("Feedback: %v", err)
	}
	turns, _ := store.ListInteractions(ctx, s.ID, 0)
	if turns[0].Feedback == nil || *turns[0].Feedback != FeedbackHelpful {
		t.Error("feedback not attached")
	}
	got, _ := m.Get(ctx, s.ID)
	if got.HelpfulCount != 1 || got.NotHelpfulCount != 0 {
		t.Errorf("votes = %d/%d, want 1/0", got.HelpfulCount, got.NotHelpfulCount)
	}

	// Re-rating replaces the vote rather than double counting.
	if err := m.Feedback(ctx, s.ID, in.ID, FeedbackConfusing); err != nil {
		t.Fatalf("Feedback (re-rate): %v", err)
	}
	got, _ = m.Get(ctx, s.ID)
	if got.HelpfulCount != 0 || got.NotHelpfulCount != 1 {
		t.Errorf("votes after re-rate = %d/%d, want 0/1", got.HelpfulCount, got.NotHelpfulCount)
	}

	if err := m.Feedback(ctx, s.ID, in.ID, "meh"); apperr.KindOf(err) != apperr.InvalidInput {
		t.Errorf("invalid feedback: kind = %v, want InvalidInput", apperr.KindOf(err))
	}
	if err := m.Feedback(ctx, s.ID, uuid.New(), FeedbackHelpful); apperr.KindOf(err) != apperr.NotFound {
		t.Errorf("unknown interaction: kind = %v, want NotFound", apperr.KindOf(err))
	}
}

func TestManager_SweepAbandonsIdleSessions(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, nil, time.Minute, log.NewNop())
	ctx := context.Background()

	idle, _ := m.Start(ctx, validStart())
	fresh, _ := m.Start(ctx, validStart())

	// Backdate the idle session past the timeout.
	stale := time.Now().Add(-2 * time.Minute)
	store.mu.Lock()
	store.sessions[idle.ID].LastActivityAt = stale
	store.mu.Unlock()

	m.sweep()

	got, _ := m.Get(ctx, idle.ID)
	if got.Status != StatusAbandoned {
		t.Errorf("idle session status = %v, want abandoned", got.Status)
	}
	got, _ = m.Get(ctx, fresh.ID)
	if got.Status != StatusActive {
		t.Errorf("fresh session status = %v, want active", got.Status)
	}
}

func TestManager_CloseStopsSweeper(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(NewMemoryStore(), nil, time.Minute, log.NewNop())
	m.StartSweeper()
	m.Close()
	m.Close() // safe to call twice
}

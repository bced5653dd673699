package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/BTreeMap/ScreenPipe/internal/models"
)

// TestSQLiteRestartKeepsState simulates a crash-and-restart: a conversation
// and a candidate written by one process are visible to the next one.
func TestSQLiteRestartKeepsState(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "restart.db")
	ctx := context.Background()

	s1, err := NewSQLiteStore(WithSQLiteDSN(dbPath))
	if err != nil {
		t.Fatalf("NewSQLiteStore (phase 1) failed: %v", err)
	}
	state := &models.ConversationState{Sender: "+91999", Step: "notice", CreatedAt: time.Now()}
	state.Answers.Set("interest", "yes")
	state.Answers.Set("company", "Aavas")
	if err := s1.SaveConversation(ctx, state); err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}
	created := time.Now().Add(-time.Hour).Truncate(time.Second)
	if err := s1.SaveCandidate(ctx, &models.CandidateRecord{ID: "c-1", Sender: "+91888", CreatedAt: created, UpdatedAt: created}); err != nil {
		t.Fatalf("SaveCandidate: %v", err)
	}
	s1.Close()

	s2, err := NewSQLiteStore(WithSQLiteDSN(dbPath))
	if err != nil {
		t.Fatalf("NewSQLiteStore (phase 2) failed: %v", err)
	}
	defer s2.Close()

	got, err := s2.GetConversation(ctx, "+91999")
	if err != nil || got == nil {
		t.Fatalf("conversation lost across restart: %+v, %v", got, err)
	}
	if got.Step != "notice" || len(got.Answers) != 2 || got.Answers[1].Text != "Aavas" {
		t.Errorf("unexpected state after restart: %+v", got)
	}

	rec := &models.CandidateRecord{ID: "c-2", Sender: "+91888", Qualified: true}
	if err := s2.SaveCandidate(ctx, rec); err != nil {
		t.Fatalf("SaveCandidate after restart: %v", err)
	}
	if rec.ID != "c-1" || !rec.CreatedAt.Equal(created) {
		t.Errorf("upsert after restart changed identity: id=%q created=%v want %v", rec.ID, rec.CreatedAt, created)
	}
}

package store

import (
	"context"
	"testing"

	"github.com/BTreeMap/ScreenPipe/internal/models"
)

func TestLayeredStoreRoutesByConcern(t *testing.T) {
	ctx := context.Background()
	durable := NewInMemoryStore()
	hot := NewInMemoryStore()
	s := NewLayeredStore(durable, hot)

	if err := s.SaveConversation(ctx, &models.ConversationState{Sender: "+1", Step: "notice"}); err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}
	if got, _ := hot.GetConversation(ctx, "+1"); got == nil || got.Step != "notice" {
		t.Errorf("conversation not in hot store: %+v", got)
	}
	if got, _ := durable.GetConversation(ctx, "+1"); got != nil {
		t.Errorf("conversation leaked into durable store: %+v", got)
	}
	if n, _ := s.CountConversations(ctx); n != 1 {
		t.Errorf("CountConversations = %d", n)
	}

	if isNew, _ := s.RecordInbound(ctx, "m1", "+1"); !isNew {
		t.Error("first RecordInbound should be new")
	}
	if dup, _ := hot.IsDuplicate(ctx, "m1"); !dup {
		t.Error("dedup id not recorded in hot store")
	}

	rec := &models.CandidateRecord{Sender: "+1", Qualified: true}
	if err := s.SaveCandidate(ctx, rec); err != nil {
		t.Fatalf("SaveCandidate: %v", err)
	}
	if got, _ := durable.GetCandidate(ctx, "+1"); got == nil {
		t.Error("candidate not in durable store")
	}

	if err := s.DeleteConversation(ctx, "+1"); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/ScreenPipe/internal/models"
)

// StoreBasedStateManager loads and persists conversation state through a ConversationStore.
type StoreBasedStateManager struct {
	store ConversationStore
	first string
	now   func() time.Time
}

// NewStoreBasedStateManager creates a state manager that starts new conversations at first.
func NewStoreBasedStateManager(st ConversationStore, first string) *StoreBasedStateManager {
	slog.Debug("Creating StoreBasedStateManager", "firstStep", first)
	return &StoreBasedStateManager{store: st, first: first, now: time.Now}
}

// Load returns the sender's state, or a fresh state at the first step.
// isNew reports whether nothing was stored yet.
func (sm *StoreBasedStateManager) Load(ctx context.Context, sender string, valid func(string) bool) (state *models.ConversationState, isNew bool, err error) {
	state, err = sm.store.GetConversation(ctx, sender)
	if err != nil {
		slog.Error("StateManager Load error", "error", err, "sender", sender)
		return nil, false, fmt.Errorf("failed to load conversation: %w", err)
	}
	if state == nil {
		now := sm.now()
		slog.Debug("StateManager Load: new conversation", "sender", sender, "step", sm.first)
		return &models.ConversationState{Sender: sender, Step: sm.first, CreatedAt: now, UpdatedAt: now}, true, nil
	}
	if !valid(state.Step) {
		// the flow changed under a stored conversation
		slog.Warn("StateManager Load: stored step not in flow, restarting", "sender", sender, "step", state.Step)
		state.Step = sm.first
		state.Answers = nil
		state.Flags = models.Flags{}
	}
	return state, false, nil
}

// Save persists state.
func (sm *StoreBasedStateManager) Save(ctx context.Context, state *models.ConversationState) error {
	state.UpdatedAt = sm.now()
	if err := sm.store.SaveConversation(ctx, state); err != nil {
		slog.Error("StateManager Save error", "error", err, "sender", state.Sender, "step", state.Step)
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	slog.Debug("StateManager Save", "sender", state.Sender, "step", state.Step, "flags", state.Flags)
	return nil
}

// Delete removes the sender's state.
func (sm *StoreBasedStateManager) Delete(ctx context.Context, sender string) error {
	if err := sm.store.DeleteConversation(ctx, sender); err != nil {
		slog.Error("StateManager Delete error", "error", err, "sender", sender)
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	slog.Debug("StateManager Delete", "sender", sender)
	return nil
}

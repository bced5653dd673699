package store

import (
	"context"
	"errors"

	"github.com/BTreeMap/ScreenPipe/internal/models"
)

// HotStore holds the frequently rewritten data: conversation state and
// inbound dedup ids. RedisStore is the production implementation.
type HotStore interface {
	ConversationRepo
	DedupRepo
	Close() error
}

// LayeredStore serves conversations and dedup from a HotStore and everything
// else from a durable Store.
type LayeredStore struct {
	Store
	hot HotStore
}

// Compile-time check that LayeredStore implements Store.
var _ Store = (*LayeredStore)(nil)

// NewLayeredStore combines durable and hot. Close closes both.
func NewLayeredStore(durable Store, hot HotStore) *LayeredStore {
	return &LayeredStore{Store: durable, hot: hot}
}

func (s *LayeredStore) GetConversation(ctx context.Context, sender string) (*models.ConversationState, error) {
	return s.hot.GetConversation(ctx, sender)
}

func (s *LayeredStore) SaveConversation(ctx context.Context, state *models.ConversationState) error {
	return s.hot.SaveConversation(ctx, state)
}

func (s *LayeredStore) DeleteConversation(ctx context.Context, sender string) error {
	return s.hot.DeleteConversation(ctx, sender)
}

func (s *LayeredStore) CountConversations(ctx context.Context) (int, error) {
	return s.hot.CountConversations(ctx)
}

func (s *LayeredStore) IsDuplicate(ctx context.Context, messageID string) (bool, error) {
	return s.hot.IsDuplicate(ctx, messageID)
}

func (s *LayeredStore) RecordInbound(ctx context.Context, messageID, sender string) (bool, error) {
	return s.hot.RecordInbound(ctx, messageID, sender)
}

func (s *LayeredStore) MarkProcessed(ctx context.Context, messageID string) error {
	return s.hot.MarkProcessed(ctx, messageID)
}

func (s *LayeredStore) ForgetInbound(ctx context.Context, messageID string) error {
	return s.hot.ForgetInbound(ctx, messageID)
}

func (s *LayeredStore) Close() error {
	return errors.Join(s.hot.Close(), s.Store.Close())
}

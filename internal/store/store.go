// Package store provides storage backends for ScreenPipe.
//
// Conversation state, candidate records, chat logs and inbound dedup records
// live behind the Store interface. InMemoryStore serves tests and ephemeral
// runs; SQLiteStore and PostgresStore persist to a database. RedisStore can
// hold conversation state alone when several processes share one channel.
package store

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/ScreenPipe/internal/models"
)

// ConversationRepo is keyed access to per-sender conversation state.
type ConversationRepo interface {
	GetConversation(ctx context.Context, sender string) (*models.ConversationState, error)
	SaveConversation(ctx context.Context, state *models.ConversationState) error
	DeleteConversation(ctx context.Context, sender string) error
	CountConversations(ctx context.Context) (int, error)
}

// CandidateRepo is the upsert-by-sender collection of finished candidates.
type CandidateRepo interface {
	// SaveCandidate inserts rec or overwrites the record with the same sender.
	// An existing record keeps its ID and CreatedAt; rec is updated to match.
	SaveCandidate(ctx context.Context, rec *models.CandidateRecord) error
	GetCandidate(ctx context.Context, sender string) (*models.CandidateRecord, error)
	ListCandidates(ctx context.Context, qualifiedOnly bool) ([]models.CandidateRecord, error)
}

// ChatLogRepo is the append-only record of processed turns.
type ChatLogRepo interface {
	AppendChatLog(ctx context.Context, entry models.ChatLogEntry) error
	GetChatLog(ctx context.Context, sender string) ([]models.ChatLogEntry, error)
}

// Store is the full persistence surface.
type Store interface {
	ConversationRepo
	CandidateRepo
	ChatLogRepo
	DedupRepo
	Close() error
}

// Opts holds configuration for store backends.
type Opts struct {
	DSN         string
	RedisURL    string
	RedisPrefix string
	DedupTTL    time.Duration
}

// Option configures a store backend.
type Option func(*Opts)

// WithPostgresDSN sets the Postgres connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithRedisURL sets the redis:// URL.
func WithRedisURL(url string) Option {
	return func(o *Opts) { o.RedisURL = url }
}

// WithRedisPrefix sets the key prefix used in Redis.
func WithRedisPrefix(prefix string) Option {
	return func(o *Opts) { o.RedisPrefix = prefix }
}

// WithDedupTTL sets how long Redis remembers inbound message ids.
func WithDedupTTL(d time.Duration) Option {
	return func(o *Opts) { o.DedupTTL = d }
}

// DetectDSNType returns "postgres" for Postgres connection strings and "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") ||
		(strings.Contains(lower, "host=") && strings.Contains(lower, "dbname=")) {
		return "postgres"
	}
	return "sqlite3"
}

// InMemoryStore keeps everything in maps guarded by one mutex.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]models.ConversationState
	candidates    map[string]models.CandidateRecord
	chatLogs      map[string][]models.ChatLogEntry
	dedup         map[string]*DedupRecord
}

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		conversations: make(map[string]models.ConversationState),
		candidates:    make(map[string]models.CandidateRecord),
		chatLogs:      make(map[string][]models.ChatLogEntry),
		dedup:         make(map[string]*DedupRecord),
	}
}

func (s *InMemoryStore) GetConversation(_ context.Context, sender string) (*models.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.conversations[sender]
	if !ok {
		return nil, nil
	}
	c := st.Clone()
	return &c, nil
}

func (s *InMemoryStore) SaveConversation(_ context.Context, state *models.ConversationState) error {
	if state == nil || state.Sender == "" {
		return models.ErrEmptySender
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[state.Sender] = state.Clone()
	return nil
}

func (s *InMemoryStore) DeleteConversation(_ context.Context, sender string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, sender)
	return nil
}

func (s *InMemoryStore) CountConversations(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations), nil
}

func (s *InMemoryStore) SaveCandidate(_ context.Context, rec *models.CandidateRecord) error {
	if rec == nil || rec.Sender == "" {
		return models.ErrEmptySender
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	if existing, ok := s.candidates[rec.Sender]; ok {
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
	}
	stored := *rec
	stored.Answers = rec.Answers.Clone()
	s.candidates[rec.Sender] = stored
	slog.Debug("InMemoryStore SaveCandidate", "sender", rec.Sender, "qualified", rec.Qualified)
	return nil
}

func (s *InMemoryStore) GetCandidate(_ context.Context, sender string) (*models.CandidateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.candidates[sender]
	if !ok {
		return nil, nil
	}
	rec.Answers = rec.Answers.Clone()
	return &rec, nil
}

func (s *InMemoryStore) ListCandidates(_ context.Context, qualifiedOnly bool) ([]models.CandidateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.CandidateRecord, 0, len(s.candidates))
	for _, rec := range s.candidates {
		if qualifiedOnly && !rec.Qualified {
			continue
		}
		rec.Answers = rec.Answers.Clone()
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) AppendChatLog(_ context.Context, entry models.ChatLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatLogs[entry.Sender] = append(s.chatLogs[entry.Sender], entry)
	return nil
}

func (s *InMemoryStore) GetChatLog(_ context.Context, sender string) ([]models.ChatLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.ChatLogEntry(nil), s.chatLogs[sender]...), nil
}

func (s *InMemoryStore) IsDuplicate(_ context.Context, messageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.dedup[messageID]
	return ok, nil
}

func (s *InMemoryStore) RecordInbound(_ context.Context, messageID, sender string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dedup[messageID]; ok {
		return false, nil
	}
	s.dedup[messageID] = &DedupRecord{MessageID: messageID, Sender: sender, ReceivedAt: time.Now()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.dedup[messageID]; ok {
		now := time.Now()
		rec.ProcessedAt = &now
	}
	return nil
}

func (s *InMemoryStore) ForgetInbound(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dedup, messageID)
	return nil
}

// Close is a no-op.
func (s *InMemoryStore) Close() error { return nil }

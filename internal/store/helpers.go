package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/ScreenPipe/internal/models"
)

// sqlRepo holds the queries shared by the SQLite and Postgres backends.
// Queries are written with ? placeholders and rebound for Postgres.
type sqlRepo struct {
	db       *sql.DB
	name     string
	dollarPH bool
}

func (r *sqlRepo) q(query string) string {
	if !r.dollarPH {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (r *sqlRepo) GetConversation(ctx context.Context, sender string) (*models.ConversationState, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, r.q(`SELECT state_json FROM conversations WHERE sender = ?`), sender).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error(r.name+" GetConversation failed", "error", err, "sender", sender)
		return nil, fmt.Errorf("failed to get conversation for %s: %w", sender, err)
	}
	var st models.ConversationState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("failed to decode conversation for %s: %w", sender, err)
	}
	return &st, nil
}

func (r *sqlRepo) SaveConversation(ctx context.Context, state *models.ConversationState) error {
	if state == nil || state.Sender == "" {
		return models.ErrEmptySender
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode conversation: %w", err)
	}
	created := state.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = r.db.ExecContext(ctx, r.q(`
		INSERT INTO conversations (sender, step, state_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (sender) DO UPDATE SET
			step = excluded.step,
			state_json = excluded.state_json,
			updated_at = excluded.updated_at`),
		state.Sender, state.Step, string(raw), created, time.Now())
	if err != nil {
		slog.Error(r.name+" SaveConversation failed", "error", err, "sender", state.Sender)
		return fmt.Errorf("failed to save conversation for %s: %w", state.Sender, err)
	}
	slog.Debug(r.name+" SaveConversation succeeded", "sender", state.Sender, "step", state.Step)
	return nil
}

func (r *sqlRepo) DeleteConversation(ctx context.Context, sender string) error {
	if _, err := r.db.ExecContext(ctx, r.q(`DELETE FROM conversations WHERE sender = ?`), sender); err != nil {
		slog.Error(r.name+" DeleteConversation failed", "error", err, "sender", sender)
		return fmt.Errorf("failed to delete conversation for %s: %w", sender, err)
	}
	return nil
}

func (r *sqlRepo) CountConversations(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	return n, nil
}

func (r *sqlRepo) SaveCandidate(ctx context.Context, rec *models.CandidateRecord) error {
	if rec == nil || rec.Sender == "" {
		return models.ErrEmptySender
	}
	answers, err := json.Marshal(rec.Answers)
	if err != nil {
		return fmt.Errorf("failed to encode answers: %w", err)
	}
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	_, err = r.db.ExecContext(ctx, r.q(`
		INSERT INTO candidates (id, sender, answers_json, qualified, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (sender) DO UPDATE SET
			answers_json = excluded.answers_json,
			qualified = excluded.qualified,
			updated_at = excluded.updated_at`),
		rec.ID, rec.Sender, string(answers), rec.Qualified, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		slog.Error(r.name+" SaveCandidate failed", "error", err, "sender", rec.Sender)
		return fmt.Errorf("failed to save candidate %s: %w", rec.Sender, err)
	}
	// the stored id and creation time win on conflict
	err = r.db.QueryRowContext(ctx, r.q(`SELECT id, created_at FROM candidates WHERE sender = ?`), rec.Sender).
		Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to read back candidate %s: %w", rec.Sender, err)
	}
	slog.Debug(r.name+" SaveCandidate succeeded", "sender", rec.Sender, "id", rec.ID, "qualified", rec.Qualified)
	return nil
}

const candidateColumns = `id, sender, answers_json, qualified, created_at, updated_at`

func scanCandidate(scan func(dest ...any) error) (models.CandidateRecord, error) {
	var rec models.CandidateRecord
	var answers string
	if err := scan(&rec.ID, &rec.Sender, &answers, &rec.Qualified, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return rec, err
	}
	if err := json.Unmarshal([]byte(answers), &rec.Answers); err != nil {
		return rec, fmt.Errorf("failed to decode answers for %s: %w", rec.Sender, err)
	}
	return rec, nil
}

func (r *sqlRepo) GetCandidate(ctx context.Context, sender string) (*models.CandidateRecord, error) {
	row := r.db.QueryRowContext(ctx, r.q(`SELECT `+candidateColumns+` FROM candidates WHERE sender = ?`), sender)
	rec, err := scanCandidate(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get candidate %s: %w", sender, err)
	}
	return &rec, nil
}

func (r *sqlRepo) ListCandidates(ctx context.Context, qualifiedOnly bool) ([]models.CandidateRecord, error) {
	query := `SELECT ` + candidateColumns + ` FROM candidates`
	var args []any
	if qualifiedOnly {
		query += ` WHERE qualified = ?`
		args = append(args, true)
	}
	query += ` ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		slog.Error(r.name+" ListCandidates query failed", "error", err)
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	out := []models.CandidateRecord{}
	for rows.Next() {
		rec, err := scanCandidate(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate candidate rows: %w", err)
	}
	slog.Debug(r.name+" ListCandidates succeeded", "count", len(out), "qualifiedOnly", qualifiedOnly)
	return out, nil
}

func (r *sqlRepo) AppendChatLog(ctx context.Context, e models.ChatLogEntry) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	_, err := r.db.ExecContext(ctx, r.q(`INSERT INTO chat_logs (sender, step, message, time) VALUES (?, ?, ?, ?)`),
		e.Sender, e.Step, e.Message, e.Time)
	if err != nil {
		return fmt.Errorf("failed to append chat log for %s: %w", e.Sender, err)
	}
	return nil
}

func (r *sqlRepo) GetChatLog(ctx context.Context, sender string) ([]models.ChatLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, r.q(`SELECT sender, step, message, time FROM chat_logs WHERE sender = ? ORDER BY id`), sender)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat log: %w", err)
	}
	defer rows.Close()
	out := []models.ChatLogEntry{}
	for rows.Next() {
		var e models.ChatLogEntry
		if err := rows.Scan(&e.Sender, &e.Step, &e.Message, &e.Time); err != nil {
			return nil, fmt.Errorf("failed to scan chat log row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *sqlRepo) IsDuplicate(ctx context.Context, messageID string) (bool, error) {
	var id string
	err := r.db.QueryRowContext(ctx, r.q(`SELECT message_id FROM inbound_dedup WHERE message_id = ?`), messageID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	return true, nil
}

func (r *sqlRepo) RecordInbound(ctx context.Context, messageID, sender string) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.q(`
		INSERT INTO inbound_dedup (message_id, sender, received_at) VALUES (?, ?, ?)
		ON CONFLICT (message_id) DO NOTHING`),
		messageID, sender, time.Now())
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	return n == 1, nil
}

func (r *sqlRepo) MarkProcessed(ctx context.Context, messageID string) error {
	if _, err := r.db.ExecContext(ctx, r.q(`UPDATE inbound_dedup SET processed_at = ? WHERE message_id = ?`), time.Now(), messageID); err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

func (r *sqlRepo) ForgetInbound(ctx context.Context, messageID string) error {
	if _, err := r.db.ExecContext(ctx, r.q(`DELETE FROM inbound_dedup WHERE message_id = ?`), messageID); err != nil {
		return fmt.Errorf("forget inbound failed: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (r *sqlRepo) Close() error {
	if r.db == nil {
		return nil
	}
	slog.Debug(r.name + " closing database connection")
	return r.db.Close()
}

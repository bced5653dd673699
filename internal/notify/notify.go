// Package notify tells the operator about finished interviews and bot errors.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/ScreenPipe/internal/models"
)

// Sender delivers a text message to a number.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// AdminNotifier sends operator notices to a single admin number.
// With no sender or no admin number configured it only logs.
type AdminNotifier struct {
	sender Sender
	admin  string
}

// NewAdminNotifier creates an AdminNotifier.
func NewAdminNotifier(sender Sender, admin string) *AdminNotifier {
	return &AdminNotifier{sender: sender, admin: strings.TrimSpace(admin)}
}

// Enabled reports whether notices are actually delivered.
func (n *AdminNotifier) Enabled() bool {
	return n.sender != nil && n.admin != ""
}

// NotifyCandidate sends the collected answers and verdict for a finished interview.
func (n *AdminNotifier) NotifyCandidate(ctx context.Context, rec models.CandidateRecord) error {
	return n.Notify(ctx, FormatCandidate(rec))
}

// NotifyError tells the admin that processing a sender's message failed.
func (n *AdminNotifier) NotifyError(ctx context.Context, sender string) error {
	return n.Notify(ctx, fmt.Sprintf("⚠️ Bot error for user: %s", DisplayNumber(sender)))
}

// Notify sends an arbitrary message to the admin.
func (n *AdminNotifier) Notify(ctx context.Context, message string) error {
	if !n.Enabled() {
		slog.Info("AdminNotifier notice (no admin configured)", "message", message)
		return nil
	}
	if err := n.sender.SendMessage(ctx, n.admin, message); err != nil {
		return fmt.Errorf("notify admin: %w", err)
	}
	slog.Debug("AdminNotifier notice sent", "admin", n.admin)
	return nil
}

// FormatCandidate renders the admin summary of a finished interview.
func FormatCandidate(rec models.CandidateRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Info collected from %s:", DisplayNumber(rec.Sender))
	for _, a := range rec.Answers {
		fmt.Fprintf(&b, "\n%s: %s", a.Step, a.Text)
	}
	if rec.Qualified {
		b.WriteString("\nQualified: yes")
	} else {
		b.WriteString("\nQualified: no")
	}
	return b.String()
}

// DisplayNumber strips transport decorations from a sender id,
// e.g. "whatsapp:+919800000000" and "919800000000@s.whatsapp.net".
func DisplayNumber(sender string) string {
	s := strings.TrimPrefix(sender, "whatsapp:")
	if i := strings.IndexByte(s, '@'); i >= 0 {
		s = s[:i]
	}
	return s
}

package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/BTreeMap/ScreenPipe/internal/classifier"
	"github.com/BTreeMap/ScreenPipe/internal/models"
	"github.com/BTreeMap/ScreenPipe/internal/qualify"
)

// DefaultAITimeout bounds one assistant call.
const DefaultAITimeout = 10 * time.Second

// MaxMessageBytes caps how much of one inbound message is classified and stored.
const MaxMessageBytes = 2048

// Engine is the conversation state machine. It is safe for concurrent use;
// messages for the same sender are serialized through the Locker.
type Engine struct {
	def      *models.FlowDefinition
	graph    *Graph
	faq      models.FAQTable
	cls      *classifier.Classifier
	criteria CriteriaSource
	keys     qualify.StepKeys
	msgs     Messages
	roles    Roles

	states     *StoreBasedStateManager
	locker     Locker
	candidates CandidateSink
	notifier   NotificationSink
	chatlog    ChatLogger

	assistant Assistant
	aiEnabled atomic.Bool
	aiTimeout time.Duration

	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithRoles overrides which steps carry the special rules.
func WithRoles(r Roles) Option { return func(e *Engine) { e.roles = r } }

// WithMessages overrides the fixed replies.
func WithMessages(m Messages) Option { return func(e *Engine) { e.msgs = m } }

// WithFAQ sets the FAQ table.
func WithFAQ(faq models.FAQTable) Option { return func(e *Engine) { e.faq = faq } }

// WithClassifier replaces the classifier built from the FAQ table.
func WithClassifier(c *classifier.Classifier) Option { return func(e *Engine) { e.cls = c } }

// WithStepKeys sets which answers feed the evaluator.
func WithStepKeys(k qualify.StepKeys) Option { return func(e *Engine) { e.keys = k } }

// WithLocker replaces the in-process per-sender lock.
func WithLocker(l Locker) Option { return func(e *Engine) { e.locker = l } }

// WithCandidateSink sets where finished candidates are stored.
func WithCandidateSink(s CandidateSink) Option { return func(e *Engine) { e.candidates = s } }

// WithNotificationSink sets who is told about finished candidates.
func WithNotificationSink(s NotificationSink) Option { return func(e *Engine) { e.notifier = s } }

// WithChatLogger sets the turn logger.
func WithChatLogger(l ChatLogger) Option { return func(e *Engine) { e.chatlog = l } }

// WithAssistant installs the AI fallback and its initial on/off state.
func WithAssistant(a Assistant, enabled bool) Option {
	return func(e *Engine) {
		e.assistant = a
		e.aiEnabled.Store(enabled)
	}
}

// WithAITimeout bounds each assistant call.
func WithAITimeout(d time.Duration) Option { return func(e *Engine) { e.aiTimeout = d } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// NewEngine builds the step graph for def and validates it.
func NewEngine(def *models.FlowDefinition, states ConversationStore, criteria CriteriaSource, opts ...Option) (*Engine, error) {
	if def == nil || states == nil || criteria == nil {
		return nil, errors.New("flow definition, conversation store and criteria are required")
	}
	e := &Engine{
		def:       def,
		criteria:  criteria,
		keys:      qualify.DefaultStepKeys(),
		msgs:      DefaultMessages(),
		roles:     DefaultRoles(),
		locker:    NewKeyedMutex(),
		aiTimeout: DefaultAITimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cls == nil {
		e.cls = classifier.New(e.faq)
	}
	e.graph = BuildGraph(def, e.roles, e.msgs.UnemployedProductPrompt)
	e.roles = e.graph.Roles()
	if err := e.graph.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flow: %w", err)
	}
	e.states = NewStoreBasedStateManager(states, def.First().ID)
	e.states.now = e.now

	slog.Info("Engine created", "steps", def.Len(), "faq", len(e.faq), "assistant", e.assistant != nil, "aiFallback", e.aiEnabled.Load())
	return e, nil
}

// Graph exposes the step graph.
func (e *Engine) Graph() *Graph { return e.graph }

// SetAIFallback turns the assistant path on or off.
func (e *Engine) SetAIFallback(enabled bool) {
	e.aiEnabled.Store(enabled)
	slog.Info("Engine AI fallback toggled", "enabled", enabled)
}

// AIFallbackEnabled reports whether the assistant path is on.
func (e *Engine) AIFallbackEnabled() bool { return e.aiEnabled.Load() }

// HasAssistant reports whether an assistant is configured at all.
func (e *Engine) HasAssistant() bool { return e.assistant != nil }

// Reset drops the sender's conversation so the next message starts over.
func (e *Engine) Reset(ctx context.Context, sender string) error {
	unlock, err := e.locker.Lock(ctx, sender)
	if err != nil {
		return fmt.Errorf("failed to lock conversation: %w", err)
	}
	defer unlock()
	return e.states.Delete(ctx, sender)
}

// turn carries the per-message working set.
type turn struct {
	state *models.ConversationState
	step  string
	msg   string
	crit  models.QualificationCriteria
}

// Handle processes one inbound message. Errors are only returned when the
// conversation state cannot be read or written.
func (e *Engine) Handle(ctx context.Context, sender, message string) (Reply, error) {
	sender = strings.TrimSpace(sender)
	if sender == "" {
		return Reply{}, models.ErrEmptySender
	}
	if len(message) > MaxMessageBytes {
		slog.Warn("Engine Handle: message truncated", "sender", sender, "bytes", len(message))
		message = truncateMessage(message)
	}
	message = strings.TrimSpace(message)
	if message == "" {
		slog.Debug("Engine Handle: empty message ignored", "sender", sender)
		return Reply{}, nil
	}

	unlock, err := e.locker.Lock(ctx, sender)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to lock conversation: %w", err)
	}
	defer unlock()

	state, isNew, err := e.states.Load(ctx, sender, e.graph.Has)
	if err != nil {
		return Reply{}, err
	}
	slog.Debug("Engine Handle", "sender", sender, "step", state.Step, "new", isNew, "mode", ModeOf(state.Flags))

	if e.assistant != nil && e.aiEnabled.Load() {
		if reply, ok, err := e.handleWithAssistant(ctx, state, message); err != nil {
			return Reply{}, err
		} else if ok {
			return reply, nil
		}
	}

	t := &turn{state: state, step: state.Step, msg: message, crit: e.criteria.Snapshot()}
	return e.applyRules(ctx, t)
}

// truncateMessage cuts s to at most MaxMessageBytes without splitting a rune.
func truncateMessage(s string) string {
	if len(s) <= MaxMessageBytes {
		return s
	}
	cut := MaxMessageBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func (e *Engine) handleWithAssistant(ctx context.Context, state *models.ConversationState, message string) (Reply, bool, error) {
	draft := state.Clone()
	draft.AppendHistory(models.ChatMessage{Role: models.RoleUser, Content: message})

	actx, cancel := context.WithTimeout(ctx, e.aiTimeout)
	defer cancel()
	text, err := e.assistant.Reply(actx, state.Sender, draft.History)
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		slog.Warn("Engine assistant failed, using rules", "sender", state.Sender, "error", err)
		return Reply{}, false, nil
	}

	draft.AppendHistory(models.ChatMessage{Role: models.RoleAssistant, Content: text})
	if err := e.states.Save(ctx, &draft); err != nil {
		return Reply{}, false, err
	}
	e.logTurn(ctx, state.Sender, state.Step, message)
	return textReply(text), true, nil
}

func (e *Engine) applyRules(ctx context.Context, t *turn) (Reply, error) {
	flags := &t.state.Flags

	if e.cls.Decline(t.msg) {
		return e.block(ctx, t, EventDecline, e.msgs.Refusal)
	}
	if e.cls.IsFresher(t.msg) {
		return e.block(ctx, t, EventDisqualify, e.msgs.ExperienceRequired)
	}

	switch ModeOf(*flags) {
	case ModeBlockedUnacknowledged:
		if !e.cls.IsAcknowledgement(t.msg) {
			return Reply{}, nil
		}
		return e.block(ctx, t, EventAcknowledge, e.msgs.Thanks)
	case ModeBlockedAcknowledged:
		return Reply{}, nil
	}

	ctc := e.cls.DetectCTC(t.msg)
	if ctc.Found {
		if ctc.Amount >= t.crit.MaxCTC {
			slog.Info("Engine CTC above range", "sender", t.state.Sender, "amount", ctc.Amount, "max", t.crit.MaxCTC)
			return e.block(ctx, t, EventDisqualify, e.msgs.ctcOutOfRange(t.crit.MaxCTC))
		}
		if t.step == e.roles.CTC {
			t.state.Answers.Set(t.step, t.msg)
		}
	} else if key, ok := e.cls.DetectFAQ(t.msg); ok {
		return e.answerFAQ(ctx, t, key), nil
	}

	if reply, done, err := e.validateStep(ctx, t); done {
		return reply, err
	}

	t.state.Answers.Set(t.step, t.msg)
	next, ok := e.graph.Next(t.step, *flags)
	if !ok {
		return e.complete(ctx, t)
	}
	t.state.Step = next
	return e.persistAndReply(ctx, t, e.graph.Render(next, *flags, t.state.Answers))
}

// validateStep applies the rules of the designated steps. done is true when
// the turn ends here.
func (e *Engine) validateStep(ctx context.Context, t *turn) (Reply, bool, error) {
	switch {
	case t.step == e.graph.First():
		first, _ := e.def.Step(t.step)
		if e.cls.DetectInterest(t.msg) {
			return Reply{}, false, nil
		}
		if e.cls.Decline(t.msg) {
			r, err := e.block(ctx, t, EventDecline, e.msgs.Refusal)
			return r, true, err
		}
		if !e.cls.FuzzyMatch(t.msg, first.Match) {
			slog.Debug("Engine first step not confirmed", "sender", t.state.Sender)
			return Reply{}, true, nil
		}
	case t.step == e.roles.Company && e.roles.PreviousEmployer != "":
		if e.cls.IsUnemployed(t.msg) {
			t.state.Flags.Unemployed = true
			t.state.Answers.Set(t.step, t.msg)
			next, ok := e.graph.Next(t.step, t.state.Flags)
			if !ok {
				r, err := e.complete(ctx, t)
				return r, true, err
			}
			t.state.Step = next
			r, err := e.persistAndReply(ctx, t, e.graph.Render(next, t.state.Flags, t.state.Answers))
			return r, true, err
		}
	case t.step == e.roles.PreviousEmployer:
		if e.cls.IsUnemployed(t.msg) {
			e.logTurn(ctx, t.state.Sender, t.step, t.msg)
			return textReply(e.msgs.AskCompanyName), true, nil
		}
	case t.step == e.roles.Product:
		if !t.crit.AllowsProduct(t.msg) {
			r, err := e.block(ctx, t, EventDisqualify, e.msgs.NotHiring)
			return r, true, err
		}
	}
	return Reply{}, false, nil
}

func (e *Engine) answerFAQ(ctx context.Context, t *turn, key string) Reply {
	resp, _ := e.faq.Lookup(key)
	text := resp
	if prompt := e.graph.Render(t.step, t.state.Flags, t.state.Answers); prompt != "" {
		if text != "" {
			text += "\n\n"
		}
		text += prompt
	}
	slog.Debug("Engine FAQ answered", "sender", t.state.Sender, "key", key, "step", t.step)
	e.logTurn(ctx, t.state.Sender, t.step, t.msg)
	if text == "" {
		return Reply{}
	}
	return textReply(text)
}

func (e *Engine) block(ctx context.Context, t *turn, event, text string) (Reply, error) {
	if err := applyMode(ctx, &t.state.Flags, event); err != nil {
		return Reply{}, err
	}
	slog.Info("Engine mode changed", "sender", t.state.Sender, "event", event, "mode", ModeOf(t.state.Flags))
	return e.persistAndReply(ctx, t, text)
}

func (e *Engine) persistAndReply(ctx context.Context, t *turn, text string) (Reply, error) {
	if err := e.states.Save(ctx, t.state); err != nil {
		return Reply{}, err
	}
	e.logTurn(ctx, t.state.Sender, t.step, t.msg)
	return textReply(text), nil
}

func (e *Engine) complete(ctx context.Context, t *turn) (Reply, error) {
	verdict := qualify.Evaluate(t.state.Answers, t.crit, e.keys)
	now := e.now()
	rec := models.CandidateRecord{
		ID:        uuid.NewString(),
		Sender:    t.state.Sender,
		Answers:   t.state.Answers.Clone(),
		Qualified: verdict.Qualified,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := e.states.Delete(ctx, t.state.Sender); err != nil {
		return Reply{}, err
	}
	slog.Info("Engine interview complete", "sender", rec.Sender, "qualified", rec.Qualified,
		"experience", verdict.Experience.Value, "ctc", verdict.CTC.Value, "notice_days", verdict.Notice.Value)

	if e.candidates != nil {
		if err := e.candidates.SaveCandidate(ctx, &rec); err != nil {
			slog.Error("Engine candidate sink failed", "sender", rec.Sender, "error", err)
		}
	}
	if e.notifier != nil {
		if err := e.notifier.NotifyCandidate(ctx, rec); err != nil {
			slog.Error("Engine notification sink failed", "sender", rec.Sender, "error", err)
		}
	}
	return Reply{Kind: ReplyComplete}, nil
}

func (e *Engine) logTurn(ctx context.Context, sender, step, msg string) {
	if e.chatlog == nil {
		return
	}
	entry := models.ChatLogEntry{Sender: sender, Step: step, Message: msg, Time: e.now()}
	if err := e.chatlog.AppendChatLog(ctx, entry); err != nil {
		slog.Warn("Engine chat log append failed", "sender", sender, "error", err)
	}
}

package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/BTreeMap/ScreenPipe/internal/models"
	"github.com/BTreeMap/ScreenPipe/internal/qualify"
	"github.com/BTreeMap/ScreenPipe/internal/store"
)

var testFAQ = models.FAQTable{
	{Key: "salary", Response: "Salary is up to 6 LPA."},
	{Key: "location", Response: "The job is in Kota."},
}

func testFlow(t *testing.T) *models.FlowDefinition {
	t.Helper()
	def, err := models.NewFlowDefinition([]models.FlowStep{
		{ID: "interest", Match: "interested|yes"},
		{ID: "company", Prompt: "Currently in which company are you working?"},
		{ID: "previous_company", Prompt: "Which company did you last work with?"},
		{ID: "notice", Prompt: "Your notice period?"},
		{ID: "ctc", Prompt: "What's your current CTC?"},
		{ID: "product", Prompt: "Which product are you handling at {company}?"},
		{ID: "experience", Prompt: "How many years of experience in {product}?"},
	})
	if err != nil {
		t.Fatalf("NewFlowDefinition: %v", err)
	}
	return def
}

// recorder captures everything the engine hands to its sinks.
type recorder struct {
	mu         sync.Mutex
	candidates []models.CandidateRecord
	notified   []models.CandidateRecord
	logs       []models.ChatLogEntry
	failSinks  bool
}

func (r *recorder) SaveCandidate(_ context.Context, rec *models.CandidateRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.candidates = append(r.candidates, *rec)
	if r.failSinks {
		return errors.New("sink down")
	}
	return nil
}

func (r *recorder) NotifyCandidate(_ context.Context, rec models.CandidateRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notified = append(r.notified, rec)
	if r.failSinks {
		return errors.New("notifier down")
	}
	return nil
}

func (r *recorder) AppendChatLog(_ context.Context, e models.ChatLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, e)
	return nil
}

type fixture struct {
	engine *Engine
	store  *store.InMemoryStore
	rec    *recorder
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	crit, err := qualify.NewCriteriaStore(models.DefaultCriteria())
	if err != nil {
		t.Fatalf("NewCriteriaStore: %v", err)
	}
	f := &fixture{store: store.NewInMemoryStore(), rec: &recorder{}}
	base := []Option{
		WithFAQ(testFAQ),
		WithCandidateSink(f.rec),
		WithNotificationSink(f.rec),
		WithChatLogger(f.rec),
	}
	f.engine, err = NewEngine(testFlow(t), f.store, crit, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return f
}

func (f *fixture) seed(t *testing.T, sender, step string, answers ...string) {
	t.Helper()
	st := &models.ConversationState{Sender: sender, Step: step}
	for i := 0; i+1 < len(answers); i += 2 {
		st.Answers.Set(answers[i], answers[i+1])
	}
	if err := f.store.SaveConversation(context.Background(), st); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) state(t *testing.T, sender string) *models.ConversationState {
	t.Helper()
	st, err := f.store.GetConversation(context.Background(), sender)
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func (f *fixture) send(t *testing.T, sender, msg string) Reply {
	t.Helper()
	r, err := f.engine.Handle(context.Background(), sender, msg)
	if err != nil {
		t.Fatalf("Handle(%q): %v", msg, err)
	}
	return r
}

func expectText(t *testing.T, r Reply, want string) {
	t.Helper()
	if r.Kind != ReplyText || r.Text != want {
		t.Fatalf("expected text reply %q, got kind=%d text=%q", want, r.Kind, r.Text)
	}
}

func TestInterestYesAdvances(t *testing.T) {
	f := newFixture(t)
	expectText(t, f.send(t, "A", "yes"), "Currently in which company are you working?")

	st := f.state(t, "A")
	if st.Step != "company" {
		t.Errorf("expected step company, got %q", st.Step)
	}
	if v, _ := st.Answers.Get("interest"); v != "yes" {
		t.Errorf("interest answer not recorded: %+v", st.Answers)
	}
	if len(f.rec.logs) != 1 || f.rec.logs[0].Step != "interest" {
		t.Errorf("expected one chat log entry for interest, got %+v", f.rec.logs)
	}
}

func TestInterestUnmatchedIsSilent(t *testing.T) {
	f := newFixture(t)
	if r := f.send(t, "A", "hello there"); r.Kind != ReplySilent {
		t.Fatalf("expected silence, got %+v", r)
	}
	if f.state(t, "A") != nil {
		t.Error("silent turn must not write state")
	}
	if len(f.rec.logs) != 0 {
		t.Error("silent turn must not be logged")
	}
}

func TestUnemployedBranchSkipsNotice(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "B", "company", "interest", "yes")

	expectText(t, f.send(t, "B", "I have no job currently"), "Which company did you last work with?")
	st := f.state(t, "B")
	if !st.Flags.Unemployed || st.Step != "previous_company" {
		t.Fatalf("unexpected state after unemployment branch: %+v", st)
	}

	expectText(t, f.send(t, "B", "HDFC Bank"), "What's your current CTC?")
	if f.state(t, "B").Step != "ctc" {
		t.Fatal("notice step was not skipped")
	}
	expectText(t, f.send(t, "B", "4 lpa"), DefaultMessages().UnemployedProductPrompt)
	expectText(t, f.send(t, "B", "home loan"), "How many years of experience in home loan?")

	if r := f.send(t, "B", "3 years"); r.Kind != ReplyComplete {
		t.Fatalf("expected completion, got %+v", r)
	}
	if len(f.rec.candidates) != 1 {
		t.Fatalf("expected one candidate, got %d", len(f.rec.candidates))
	}
	rec := f.rec.candidates[0]
	if _, ok := rec.Answers.Get("notice"); ok {
		t.Error("notice answered on the unemployed path")
	}
	if !rec.Qualified {
		t.Errorf("expected qualified candidate, answers %+v", rec.Answers)
	}
	if f.state(t, "B") != nil {
		t.Error("state should be deleted after completion")
	}
}

func TestCTCAboveMaxBlocks(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "C", "notice", "interest", "yes", "company", "HDFC")

	expectText(t, f.send(t, "C", "my ctc is 8 lpa"), "Sorry, the maximum CTC for this profile is 6 LPA.")
	st := f.state(t, "C")
	if !st.Flags.Blocked || st.Flags.Acknowledged {
		t.Errorf("expected blocked unacknowledged, got %+v", st.Flags)
	}
	if st.Step != "notice" {
		t.Errorf("step moved to %q", st.Step)
	}
}

func TestDeclineTakesPrecedence(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "D", "ctc", "interest", "yes")

	expectText(t, f.send(t, "D", "not interested, my ctc is 8 lpa"), DefaultMessages().Refusal)
	st := f.state(t, "D")
	if !st.Flags.Blocked || !st.Flags.Acknowledged || st.Step != "ctc" {
		t.Errorf("unexpected state after decline: %+v", st)
	}
	if r := f.send(t, "D", "hello?"); r.Kind != ReplySilent {
		t.Errorf("declined conversation should stay dormant, got %+v", r)
	}
}

func TestFresherThenAcknowledgement(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "E", "company", "interest", "yes")

	expectText(t, f.send(t, "E", "I am a fresher"), DefaultMessages().ExperienceRequired)
	if r := f.send(t, "E", "what is the salary"); r.Kind != ReplySilent {
		t.Fatalf("blocked conversation answered: %+v", r)
	}
	expectText(t, f.send(t, "E", "ok thanks"), DefaultMessages().Thanks)
	if st := f.state(t, "E"); !st.Flags.Acknowledged {
		t.Errorf("acknowledgement not stored: %+v", st.Flags)
	}
	if r := f.send(t, "E", "ok"); r.Kind != ReplySilent {
		t.Errorf("acknowledged conversation answered: %+v", r)
	}
}

func TestFAQDoesNotMutateState(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "F", "company", "interest", "yes")
	before := f.state(t, "F")

	expectText(t, f.send(t, "F", "where is the job location?"), "The job is in Kota.\n\nCurrently in which company are you working?")

	after := f.state(t, "F")
	if after.Step != before.Step || len(after.Answers) != len(before.Answers) || after.Flags != before.Flags {
		t.Errorf("FAQ changed state: before %+v after %+v", before, after)
	}
}

func TestCTCMentionSkipsFAQ(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "F2", "company", "interest", "yes")
	msg := "salary 5 lpa, where is the location?"

	expectText(t, f.send(t, "F2", msg), "Your notice period?")

	st := f.state(t, "F2")
	if st.Step != "notice" {
		t.Fatalf("expected step notice, got %q", st.Step)
	}
	if v, _ := st.Answers.Get("company"); v != msg {
		t.Errorf("company answer = %q, want the whole message", v)
	}
	if _, ok := st.Answers.Get("ctc"); ok {
		t.Error("ctc must only be recorded on the ctc step")
	}
}

func TestCTCOnCTCStepRecordsAndAdvances(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "F3", "ctc", "interest", "yes", "company", "HDFC", "notice", "30")

	expectText(t, f.send(t, "F3", "my ctc is 5 lpa"), "Which product are you handling at HDFC?")

	st := f.state(t, "F3")
	if st.Step != "product" {
		t.Fatalf("expected one step forward to product, got %q", st.Step)
	}
	if v, _ := st.Answers.Get("ctc"); v != "my ctc is 5 lpa" {
		t.Errorf("ctc answer = %q", v)
	}
}

func TestOversizedMessageIsTruncated(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "F4", "company", "interest", "yes")

	expectText(t, f.send(t, "F4", "Kotak "+strings.Repeat("z", 100000)), "Your notice period?")

	v, _ := f.state(t, "F4").Answers.Get("company")
	if len(v) > MaxMessageBytes || !strings.HasPrefix(v, "Kotak ") {
		t.Errorf("stored answer not truncated: %d bytes", len(v))
	}
}

func TestTruncateMessageKeepsRunes(t *testing.T) {
	s := "a" + strings.Repeat("é", 2000)
	got := truncateMessage(s)
	if len(got) > MaxMessageBytes || !utf8.ValidString(got) {
		t.Errorf("truncateMessage returned %d bytes, valid=%v", len(got), utf8.ValidString(got))
	}
	if short := "hello"; truncateMessage(short) != short {
		t.Error("short message changed")
	}
}

func TestProductOutsideWhitelistBlocks(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "G", "product", "interest", "yes", "company", "HDFC", "notice", "30", "ctc", "5")

	expectText(t, f.send(t, "G", "credit cards"), DefaultMessages().NotHiring)
	st := f.state(t, "G")
	if !st.Flags.Blocked || st.Flags.Acknowledged {
		t.Errorf("expected blocked unacknowledged, got %+v", st.Flags)
	}
	if _, ok := st.Answers.Get("product"); ok {
		t.Error("rejected product must not be recorded")
	}
}

func TestPreviousEmployerAsksForName(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "H", "previous_company", "interest", "yes", "company", "no job")

	expectText(t, f.send(t, "H", "not working anywhere"), DefaultMessages().AskCompanyName)
	if st := f.state(t, "H"); st.Step != "previous_company" || len(st.Answers) != 2 {
		t.Errorf("state changed: %+v", st)
	}
}

func TestCompletionLowExperienceNotQualified(t *testing.T) {
	f := newFixture(t)
	for _, msg := range []string{"yes", "HDFC Bank", "30 days", "5 lpa", "home loan"} {
		if r := f.send(t, "I", msg); r.Kind != ReplyText {
			t.Fatalf("unexpected reply to %q: %+v", msg, r)
		}
	}
	r := f.send(t, "I", "1 year")
	if r.Kind != ReplyComplete || *r.Body() != models.CompletionSentinel {
		t.Fatalf("expected completion sentinel, got %+v", r)
	}
	if len(f.rec.candidates) != 1 || f.rec.candidates[0].Qualified {
		t.Fatalf("expected one unqualified candidate, got %+v", f.rec.candidates)
	}
	if len(f.rec.notified) != 1 {
		t.Errorf("expected one notification, got %d", len(f.rec.notified))
	}
	if f.rec.candidates[0].ID == "" {
		t.Error("candidate record has no id")
	}
	if f.state(t, "I") != nil {
		t.Error("state should be deleted after completion")
	}
}

func TestSinkFailureDoesNotFailTurn(t *testing.T) {
	f := newFixture(t)
	f.rec.failSinks = true
	f.seed(t, "J", "experience", "interest", "yes", "company", "HDFC", "notice", "10", "ctc", "5", "product", "lap")

	if r := f.send(t, "J", "4"); r.Kind != ReplyComplete {
		t.Fatalf("expected completion despite sink failure, got %+v", r)
	}
	if f.state(t, "J") != nil {
		t.Error("state should be deleted even when sinks fail")
	}
}

type failingStore struct{ *store.InMemoryStore }

func (failingStore) GetConversation(context.Context, string) (*models.ConversationState, error) {
	return nil, errors.New("disk on fire")
}

func TestPersistenceFailureSurfaces(t *testing.T) {
	crit, _ := qualify.NewCriteriaStore(models.DefaultCriteria())
	e, err := NewEngine(testFlow(t), failingStore{store.NewInMemoryStore()}, crit)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Handle(context.Background(), "K", "yes"); err == nil {
		t.Fatal("expected error when state cannot be read")
	}
}

type stubAssistant struct {
	reply string
	err   error
	calls int
}

func (s *stubAssistant) Reply(_ context.Context, _ string, history []models.ChatMessage) (string, error) {
	s.calls++
	if len(history) == 0 || history[len(history)-1].Role != models.RoleUser {
		return "", errors.New("last message should be the user's")
	}
	return s.reply, s.err
}

func TestAssistantFallback(t *testing.T) {
	ai := &stubAssistant{reply: "Hello from the assistant"}
	f := newFixture(t, WithAssistant(ai, true))

	expectText(t, f.send(t, "L", "hi"), "Hello from the assistant")
	st := f.state(t, "L")
	if st == nil || len(st.History) != 2 || st.Step != "interest" {
		t.Fatalf("unexpected state after assistant turn: %+v", st)
	}

	ai.err = errors.New("timeout")
	expectText(t, f.send(t, "L", "yes"), "Currently in which company are you working?")

	f.engine.SetAIFallback(false)
	f.send(t, "L", "HDFC")
	if ai.calls != 2 {
		t.Errorf("assistant called %d times after being disabled", ai.calls)
	}
}

func TestConcurrentMessagesAdvanceOneStepEach(t *testing.T) {
	f := newFixture(t)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.engine.Handle(context.Background(), "M", "yes"); err != nil {
				t.Errorf("Handle: %v", err)
			}
		}()
	}
	wg.Wait()

	st := f.state(t, "M")
	if st.Step != "product" || len(st.Answers) != 4 {
		t.Errorf("expected 4 answers and step product, got step %q answers %+v", st.Step, st.Answers)
	}
}

func TestEmptyMessageAndSender(t *testing.T) {
	f := newFixture(t)
	if r := f.send(t, "N", "   "); r.Kind != ReplySilent || r.Body() != nil {
		t.Errorf("expected nil body for empty message, got %+v", r)
	}
	if _, err := f.engine.Handle(context.Background(), "", "yes"); !errors.Is(err, models.ErrEmptySender) {
		t.Errorf("expected ErrEmptySender, got %v", err)
	}
}

func TestResetStartsOver(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "O", "ctc", "interest", "yes")
	if err := f.engine.Reset(context.Background(), "O"); err != nil {
		t.Fatal(err)
	}
	r := f.send(t, "O", "yes")
	if !strings.Contains(r.Text, "company") {
		t.Errorf("expected to restart at the first step, got %q", r.Text)
	}
}

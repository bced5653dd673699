package messaging

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/ScreenPipe/internal/flow"
	"github.com/BTreeMap/ScreenPipe/internal/flowconfig"
	"github.com/BTreeMap/ScreenPipe/internal/models"
	"github.com/BTreeMap/ScreenPipe/internal/qualify"
	"github.com/BTreeMap/ScreenPipe/internal/store"
	"github.com/BTreeMap/ScreenPipe/internal/whatsapp"
)

type stubProcessor struct {
	mu    sync.Mutex
	reply flow.Reply
	err   error
	slow  map[string]time.Duration // per-message delay
	calls []string
}

func (p *stubProcessor) Handle(ctx context.Context, sender, message string) (flow.Reply, error) {
	p.mu.Lock()
	delay := p.slow[message]
	p.mu.Unlock()
	time.Sleep(delay)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, sender+":"+message)
	return p.reply, p.err
}

func (p *stubProcessor) seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

type stubAlerts struct{ senders []string }

func (a *stubAlerts) NotifyError(ctx context.Context, sender string) error {
	a.senders = append(a.senders, sender)
	return nil
}

func newHandler(t *testing.T, p Processor, opts ...HandlerOption) (*ResponseHandler, *whatsapp.MockClient) {
	t.Helper()
	mock := whatsapp.NewMockClient()
	return NewResponseHandler(NewWhatsAppService(mock), p, opts...), mock
}

func TestProcessResponseSendsTextReply(t *testing.T) {
	p := &stubProcessor{reply: flow.Reply{Kind: flow.ReplyText, Text: "Which company?"}}
	rh, mock := newHandler(t, p)

	if err := rh.ProcessResponse(context.Background(), models.Response{From: "+91 98111 11111", Body: "yes"}); err != nil {
		t.Fatal(err)
	}
	if len(p.calls) != 1 || p.calls[0] != "919811111111:yes" {
		t.Errorf("engine saw %v", p.calls)
	}
	msgs := mock.Messages()
	if len(msgs) != 1 || msgs[0].To != "919811111111" || msgs[0].Body != "Which company?" {
		t.Errorf("unexpected sends %+v", msgs)
	}
}

func TestProcessResponseCompleteAndSilentSendNothing(t *testing.T) {
	for _, kind := range []flow.ReplyKind{flow.ReplyComplete, flow.ReplySilent} {
		rh, mock := newHandler(t, &stubProcessor{reply: flow.Reply{Kind: kind}})
		if err := rh.ProcessResponse(context.Background(), models.Response{From: "919811111111", Body: "x"}); err != nil {
			t.Fatal(err)
		}
		if n := len(mock.Messages()); n != 0 {
			t.Errorf("kind %d: expected nothing sent, got %d", kind, n)
		}
	}
}

func TestProcessResponseEngineErrorAlertsAdmin(t *testing.T) {
	alerts := &stubAlerts{}
	rh, mock := newHandler(t, &stubProcessor{err: errors.New("db down")}, WithErrorNotifier(alerts))

	err := rh.ProcessResponse(context.Background(), models.Response{From: "919811111111", Body: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(alerts.senders) != 1 || alerts.senders[0] != "919811111111" {
		t.Errorf("admin alerts %v", alerts.senders)
	}
	if len(mock.Messages()) != 0 {
		t.Error("nothing should be sent to the candidate on failure")
	}
}

func TestProcessResponseDropsRedelivery(t *testing.T) {
	st := store.NewInMemoryStore()
	p := &stubProcessor{reply: flow.Reply{Kind: flow.ReplyText, Text: "ok"}}
	rh, mock := newHandler(t, p, WithDedup(st))

	msg := models.Response{ID: "wamid.1", From: "919811111111", Body: "yes"}
	for i := 0; i < 3; i++ {
		if err := rh.ProcessResponse(context.Background(), msg); err != nil {
			t.Fatal(err)
		}
	}
	if len(p.calls) != 1 || len(mock.Messages()) != 1 {
		t.Errorf("expected one processing, got %d calls and %d sends", len(p.calls), len(mock.Messages()))
	}
	dup, err := st.IsDuplicate(context.Background(), "wamid.1")
	if err != nil || !dup {
		t.Errorf("message id not recorded: %v %v", dup, err)
	}
}

func TestProcessResponseRedeliveryAfterFailure(t *testing.T) {
	st := store.NewInMemoryStore()
	p := &stubProcessor{err: errors.New("db down")}
	rh, mock := newHandler(t, p, WithDedup(st))

	msg := models.Response{ID: "wamid.2", From: "919811111111", Body: "yes"}
	if err := rh.ProcessResponse(context.Background(), msg); err == nil {
		t.Fatal("expected error")
	}
	if dup, _ := st.IsDuplicate(context.Background(), "wamid.2"); dup {
		t.Fatal("failed message id must not stay recorded")
	}

	p.err = nil
	p.reply = flow.Reply{Kind: flow.ReplyText, Text: "ok"}
	if err := rh.ProcessResponse(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if len(p.seen()) != 2 || len(mock.Messages()) != 1 {
		t.Errorf("redelivery not processed: %d calls, %d sends", len(p.seen()), len(mock.Messages()))
	}
}

func TestProcessResponseInvalidSender(t *testing.T) {
	p := &stubProcessor{}
	rh, _ := newHandler(t, p)
	if err := rh.ProcessResponse(context.Background(), models.Response{From: "abc", Body: "hi"}); err == nil {
		t.Error("expected validation error")
	}
	if len(p.calls) != 0 {
		t.Error("engine should not run for an invalid sender")
	}
}

func TestResponseHandlerWithEngine(t *testing.T) {
	def, err := flowconfig.DefaultFlow()
	if err != nil {
		t.Fatal(err)
	}
	criteria, err := qualify.NewCriteriaStore(models.DefaultCriteria())
	if err != nil {
		t.Fatal(err)
	}
	st := store.NewInMemoryStore()
	engine, err := flow.NewEngine(def, st, criteria)
	if err != nil {
		t.Fatal(err)
	}
	rh, mock := newHandler(t, engine)

	if err := rh.ProcessResponse(context.Background(), models.Response{From: "919811111111", Body: "yes"}); err != nil {
		t.Fatal(err)
	}
	msgs := mock.Messages()
	if len(msgs) != 1 || msgs[0].Body != "Currently in which company are you working?" {
		t.Fatalf("unexpected reply %+v", msgs)
	}
	state, _ := st.GetConversation(context.Background(), "919811111111")
	if state == nil || state.Step != "company" {
		t.Errorf("expected state at company, got %+v", state)
	}
}

func TestResponseHandlerStartDrainsTwilio(t *testing.T) {
	mock := &recordingSender{}
	svc := NewTwilioService(mock)
	p := &stubProcessor{reply: flow.Reply{Kind: flow.ReplyText, Text: "hello"}}
	rh := NewResponseHandler(svc, p)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rh.Start(ctx)

	if !svc.safeEmitResponse(models.Response{From: "919811111111", Body: "hi"}) {
		t.Fatal("emit failed")
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if mock.count() == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("reply was not sent")
}

// emitAndDrain pushes bodies from one sender through Start and waits for
// every turn to finish.
func emitAndDrain(t *testing.T, p Processor, from string, bodies ...string) {
	t.Helper()
	svc := NewTwilioService(&recordingSender{})
	rh := NewResponseHandler(svc, p)
	rh.Start(context.Background())

	for i, body := range bodies {
		if !svc.safeEmitResponse(models.Response{ID: "SM" + string(rune('a'+i)), From: from, Body: body}) {
			t.Fatalf("emit %q failed", body)
		}
	}
	if err := svc.Stop(); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		rh.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not drain")
	}
}

func TestResponseHandlerStartKeepsSenderOrder(t *testing.T) {
	p := &stubProcessor{slow: map[string]time.Duration{"first": 50 * time.Millisecond}}
	emitAndDrain(t, p, "919811111111", "first", "second", "third")

	got := strings.Join(p.seen(), ",")
	want := "919811111111:first,919811111111:second,919811111111:third"
	if got != want {
		t.Errorf("processing order = %s, want %s", got, want)
	}
}

func TestResponseHandlerStartOrderWithEngine(t *testing.T) {
	def, err := flowconfig.DefaultFlow()
	if err != nil {
		t.Fatal(err)
	}
	criteria, err := qualify.NewCriteriaStore(models.DefaultCriteria())
	if err != nil {
		t.Fatal(err)
	}
	st := store.NewInMemoryStore()
	engine, err := flow.NewEngine(def, st, criteria)
	if err != nil {
		t.Fatal(err)
	}

	emitAndDrain(t, engine, "919811111111", "yes", "HDFC Bank", "30 days")

	state, err := st.GetConversation(context.Background(), "919811111111")
	if err != nil || state == nil {
		t.Fatalf("no state: %v", err)
	}
	company, _ := state.Answers.Get("company")
	notice, _ := state.Answers.Get("notice")
	if state.Step != "ctc" || company != "HDFC Bank" || notice != "30 days" {
		t.Errorf("answers applied out of order: step=%s company=%q notice=%q", state.Step, company, notice)
	}
}

package messaging

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/ScreenPipe/internal/whatsapp"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []string
	fail map[string]bool
}

func (r *recordingSender) SendMessage(ctx context.Context, to string, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[to] {
		return errors.New("undeliverable")
	}
	r.sent = append(r.sent, to+":"+body)
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func TestServicesImplementService(t *testing.T) {
	var _ Service = (*WhatsAppService)(nil)
	var _ Service = (*TwilioService)(nil)
	var _ Service = (*LogService)(nil)
}

func TestCanonicalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"+91 98111-11111", "919811111111", true},
		{"whatsapp:+919811111111", "919811111111", true},
		{"919811111111@s.whatsapp.net", "919811111111", true},
		{"12345", "", false},
		{"", "", false},
		{"abc", "", false},
	}
	for _, tt := range tests {
		got, err := CanonicalizePhone(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("CanonicalizePhone(%q) = (%q, %v), want %q ok=%v", tt.in, got, err, tt.want, tt.ok)
		}
	}
}

func TestWhatsAppServiceStopRejectsSends(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := svc.Stop(); err != nil {
		t.Errorf("second Stop should be a no-op, got %v", err)
	}
	if err := svc.SendMessage(context.Background(), "919811111111", "x"); !errors.Is(err, ErrServiceStopped) {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
	if _, ok := <-svc.Responses(); ok {
		t.Error("responses channel should be closed")
	}
}

func TestTwilioWebhook(t *testing.T) {
	svc := NewTwilioService(&recordingSender{})
	form := url.Values{"From": {"whatsapp:+919811111111"}, "Body": {"yes"}, "MessageSid": {"SM1"}}
	req := httptest.NewRequest(http.MethodPost, "/twilio/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	svc.TwilioWebhookHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	select {
	case r := <-svc.Responses():
		if r.From != "919811111111" || r.Body != "yes" || r.ID != "SM1" {
			t.Errorf("unexpected response %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("no response emitted")
	}
}

func TestTwilioWebhookMissingFields(t *testing.T) {
	svc := NewTwilioService(&recordingSender{})
	req := httptest.NewRequest(http.MethodPost, "/twilio/webhook", strings.NewReader("From=whatsapp%3A%2B919811111111"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	svc.TwilioWebhookHandler(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestOutreachSend(t *testing.T) {
	sender := &recordingSender{fail: map[string]bool{"919822222222": true}}
	o := NewOutreach(NewTwilioService(sender), 0)

	res, err := o.Send(context.Background(), []string{"919811111111", "+91 98111 11111", "919822222222", "12"}, []string{"Hi", "Interested?"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Sent) != 1 || res.Sent[0] != "919811111111" {
		t.Errorf("sent = %v", res.Sent)
	}
	if _, ok := res.Failed["919822222222"]; !ok {
		t.Error("send failure not reported")
	}
	if _, ok := res.Failed["12"]; !ok {
		t.Error("invalid number not reported")
	}
	if sender.count() != 2 {
		t.Errorf("expected 2 messages delivered, got %d", sender.count())
	}
}

func TestOutreachDefaultsAndCancel(t *testing.T) {
	sender := &recordingSender{}
	o := NewOutreach(NewTwilioService(sender), time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := o.Send(ctx, []string{"919811111111"}, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if sender.count() != 1 || !strings.HasSuffix(sender.sent[0], DefaultOpeners[0]) {
		t.Errorf("expected the first default opener only, got %v", sender.sent)
	}
}

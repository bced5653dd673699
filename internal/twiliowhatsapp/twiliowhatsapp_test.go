package twiliowhatsapp

import (
	"context"
	"errors"
	"testing"

	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeCreator struct {
	params *twilioApi.CreateMessageParams
	err    error
}

func (f *fakeCreator) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestMockClient_SendMessage(t *testing.T) {
	mock := NewMockClient()
	if err := mock.SendMessage(context.Background(), "12345", "Hello Test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.SentMessages) != 1 || mock.SentMessages[0].Body != "Hello Test" {
		t.Fatalf("unexpected messages %+v", mock.SentMessages)
	}
}

func TestSendMessageAddressesWhatsApp(t *testing.T) {
	fake := &fakeCreator{}
	c := &Client{api: fake, fromWhats: Address("+14155238886")}
	if err := c.SendMessage(context.Background(), "919811111111", "hi"); err != nil {
		t.Fatal(err)
	}
	if *fake.params.To != "whatsapp:+919811111111" || *fake.params.From != "whatsapp:+14155238886" || *fake.params.Body != "hi" {
		t.Errorf("unexpected params to=%s from=%s body=%s", *fake.params.To, *fake.params.From, *fake.params.Body)
	}
}

func TestSendMessageError(t *testing.T) {
	c := &Client{api: &fakeCreator{err: errors.New("boom")}, fromWhats: "whatsapp:+1"}
	if err := c.SendMessage(context.Background(), "2", "x"); err == nil {
		t.Error("expected error")
	}
}

func TestAddress(t *testing.T) {
	for in, want := range map[string]string{
		"919811111111":           "whatsapp:+919811111111",
		"+919811111111":          "whatsapp:+919811111111",
		"whatsapp:+919811111111": "whatsapp:+919811111111",
	} {
		if got := Address(in); got != want {
			t.Errorf("Address(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(WithFromWhats("+1")); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}
	if _, err := NewClient(WithAccountSID("AC1"), WithAuthToken("t")); !errors.Is(err, ErrMissingFrom) {
		t.Errorf("expected ErrMissingFrom, got %v", err)
	}
	c, err := NewClient(WithAccountSID("AC1"), WithAuthToken("t"), WithFromWhats("14155238886"))
	if err != nil {
		t.Fatal(err)
	}
	if c.fromWhats != "whatsapp:+14155238886" {
		t.Errorf("from = %q", c.fromWhats)
	}
}

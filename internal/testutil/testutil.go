// Package testutil provides common test utilities and helpers for ScreenPipe tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BTreeMap/ScreenPipe/internal/flow"
	"github.com/BTreeMap/ScreenPipe/internal/flowconfig"
	"github.com/BTreeMap/ScreenPipe/internal/models"
	"github.com/BTreeMap/ScreenPipe/internal/qualify"
	"github.com/BTreeMap/ScreenPipe/internal/store"
)

// Fixture bundles an engine with its in-memory dependencies.
type Fixture struct {
	Engine   *flow.Engine
	Store    *store.InMemoryStore
	Criteria *qualify.CriteriaStore
}

// NewFixture builds an engine over the bundled flow and FAQ, default
// criteria and an in-memory store. Extra options are applied last.
func NewFixture(t testing.TB, opts ...flow.Option) *Fixture {
	t.Helper()
	def, err := flowconfig.DefaultFlow()
	if err != nil {
		t.Fatalf("load default flow: %v", err)
	}
	faq, err := flowconfig.DefaultFAQ()
	if err != nil {
		t.Fatalf("load default faq: %v", err)
	}
	criteria, err := qualify.NewCriteriaStore(models.DefaultCriteria())
	if err != nil {
		t.Fatalf("criteria: %v", err)
	}
	st := store.NewInMemoryStore()
	all := append([]flow.Option{
		flow.WithFAQ(faq),
		flow.WithCandidateSink(st),
		flow.WithChatLogger(st),
	}, opts...)
	engine, err := flow.NewEngine(def, st, criteria, all...)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return &Fixture{Engine: engine, Store: st, Criteria: criteria}
}

// Converse sends each message in turn and returns the replies.
func (f *Fixture) Converse(t testing.TB, sender string, messages ...string) []flow.Reply {
	t.Helper()
	replies := make([]flow.Reply, 0, len(messages))
	for _, m := range messages {
		r, err := f.Engine.Handle(context.Background(), sender, m)
		if err != nil {
			t.Fatalf("Handle(%q): %v", m, err)
		}
		replies = append(replies, r)
	}
	return replies
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t testing.TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes a JSON envelope and validates the status field.
func AssertJSONResponse(t testing.TB, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
		return nil
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Errorf("response missing or invalid 'status' field")
	}
	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t testing.TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	switch b := body.(type) {
	case nil:
		reqBody = bytes.NewBuffer(nil)
	case string:
		reqBody = bytes.NewBufferString(b)
	default:
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, body))
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t testing.TB, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t testing.TB, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}

// Package models defines state management structures for ScreenPipe conversations.
package models

import "time"

// MaxHistoryMessages caps the chat history kept for the AI fallback.
const MaxHistoryMessages = 10

// Chat roles used in ChatMessage.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Flags are the boolean conversation markers.
type Flags struct {
	Blocked      bool `json:"blocked"`
	Acknowledged bool `json:"acknowledged"`
	Unemployed   bool `json:"unemployed"`
}

// Answer is one collected reply.
type Answer struct {
	Step string `json:"step"`
	Text string `json:"text"`
}

// Answers keeps collected replies in collection order.
type Answers []Answer

// Get returns the answer recorded for step.
func (a Answers) Get(step string) (string, bool) {
	for _, ans := range a {
		if ans.Step == step {
			return ans.Text, true
		}
	}
	return "", false
}

// Set records text for step. A step answered twice keeps its original position.
func (a *Answers) Set(step, text string) {
	for i := range *a {
		if (*a)[i].Step == step {
			(*a)[i].Text = text
			return
		}
	}
	*a = append(*a, Answer{Step: step, Text: text})
}

// Map returns the answers keyed by step.
func (a Answers) Map() map[string]string {
	m := make(map[string]string, len(a))
	for _, ans := range a {
		m[ans.Step] = ans.Text
	}
	return m
}

// Clone returns an independent copy.
func (a Answers) Clone() Answers {
	if a == nil {
		return nil
	}
	out := make(Answers, len(a))
	copy(out, a)
	return out
}

// ChatMessage is one role-tagged entry of the AI fallback history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationState is the per-sender interview state.
type ConversationState struct {
	Sender    string        `json:"sender"`
	Step      string        `json:"step"`
	Answers   Answers       `json:"answers"`
	Flags     Flags         `json:"flags"`
	History   []ChatMessage `json:"conversation_history,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// AppendHistory adds a message and drops the oldest entries beyond MaxHistoryMessages.
func (s *ConversationState) AppendHistory(msgs ...ChatMessage) {
	h := append(append([]ChatMessage(nil), s.History...), msgs...)
	if len(h) > MaxHistoryMessages {
		h = h[len(h)-MaxHistoryMessages:]
	}
	s.History = h
}

// Clone returns a deep copy of the state.
func (s ConversationState) Clone() ConversationState {
	c := s
	c.Answers = s.Answers.Clone()
	if s.History != nil {
		c.History = append([]ChatMessage(nil), s.History...)
	}
	return c
}

package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyFlow     = errors.New("flow has no steps")
	ErrEmptyStepID   = errors.New("flow step id cannot be empty")
	ErrDuplicateStep = errors.New("duplicate flow step id")
	ErrUnknownStep   = errors.New("unknown flow step")
)

// FlowStep is one question of the interview script.
type FlowStep struct {
	ID     string `json:"step"`
	Prompt string `json:"ask"`             // template, {step_id} placeholders resolve from answers
	Match  string `json:"match,omitempty"` // "|"-separated keywords, first step only
}

// MatchKeywords splits the match column into its alternatives.
func (s FlowStep) MatchKeywords() []string {
	if strings.TrimSpace(s.Match) == "" {
		return nil
	}
	var out []string
	for _, k := range strings.Split(s.Match, "|") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// FlowDefinition is the ordered, immutable interview script.
type FlowDefinition struct {
	steps []FlowStep
	index map[string]int
}

// NewFlowDefinition validates the steps and builds the lookup index.
func NewFlowDefinition(steps []FlowStep) (*FlowDefinition, error) {
	if len(steps) == 0 {
		return nil, ErrEmptyFlow
	}
	def := &FlowDefinition{
		steps: make([]FlowStep, len(steps)),
		index: make(map[string]int, len(steps)),
	}
	for i, s := range steps {
		s.ID = strings.TrimSpace(s.ID)
		if s.ID == "" {
			return nil, fmt.Errorf("row %d: %w", i+1, ErrEmptyStepID)
		}
		if _, dup := def.index[s.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateStep, s.ID)
		}
		def.steps[i] = s
		def.index[s.ID] = i
	}
	return def, nil
}

// Steps returns a copy of the steps in order.
func (d *FlowDefinition) Steps() []FlowStep {
	out := make([]FlowStep, len(d.steps))
	copy(out, d.steps)
	return out
}

// First returns the opening step.
func (d *FlowDefinition) First() FlowStep {
	return d.steps[0]
}

// Step looks up a step by id.
func (d *FlowDefinition) Step(id string) (FlowStep, bool) {
	i, ok := d.index[id]
	if !ok {
		return FlowStep{}, false
	}
	return d.steps[i], true
}

// Has reports whether id names a step of the flow.
func (d *FlowDefinition) Has(id string) bool {
	_, ok := d.index[id]
	return ok
}

// Len returns the number of steps.
func (d *FlowDefinition) Len() int {
	return len(d.steps)
}

// FAQEntry is one key→response row of the FAQ table.
type FAQEntry struct {
	Key      string `json:"key"`
	Response string `json:"response"`
}

// FAQTable keeps FAQ rows in configuration order; the first match wins.
type FAQTable []FAQEntry

// Lookup returns the response configured for key.
func (t FAQTable) Lookup(key string) (string, bool) {
	for _, e := range t {
		if e.Key == key {
			return e.Response, true
		}
	}
	return "", false
}

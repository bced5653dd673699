package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultOutreachDelay is the pause between consecutive outbound opener messages.
const DefaultOutreachDelay = 1 * time.Second

// DefaultOpeners are sent to each number when no custom messages are given.
var DefaultOpeners = []string{
	"Hi, I got your number from Naukri.com.",
	"I messaged you regarding a job opening in Shubham Housing Finance for the profile of Relationship Manager / Sales Manager in Home Loan, LAP and Mortgage.",
	"Are you interested in Kota Location?",
}

// OutreachResult summarizes one outreach run.
type OutreachResult struct {
	Sent   []string          `json:"sent"`
	Failed map[string]string `json:"failed,omitempty"`
}

// Outreach opens conversations by sending opener messages to a list of numbers.
type Outreach struct {
	svc   Service
	delay time.Duration
}

// NewOutreach creates an Outreach. A negative delay is treated as zero.
func NewOutreach(svc Service, delay time.Duration) *Outreach {
	if delay < 0 {
		delay = 0
	}
	return &Outreach{svc: svc, delay: delay}
}

// Canonicalize validates the numbers, dropping duplicates. Invalid numbers
// are returned with their error.
func (o *Outreach) Canonicalize(numbers []string) (valid []string, invalid map[string]string) {
	seen := make(map[string]bool, len(numbers))
	for _, n := range numbers {
		c, err := o.svc.ValidateAndCanonicalizeRecipient(n)
		if err != nil {
			if invalid == nil {
				invalid = make(map[string]string)
			}
			invalid[n] = err.Error()
			continue
		}
		if !seen[c] {
			seen[c] = true
			valid = append(valid, c)
		}
	}
	return valid, invalid
}

// Send delivers messages to every number in order, pausing between messages.
// A number whose send fails is skipped for its remaining messages.
func (o *Outreach) Send(ctx context.Context, numbers, messages []string) (OutreachResult, error) {
	if len(messages) == 0 {
		messages = DefaultOpeners
	}
	valid, invalid := o.Canonicalize(numbers)
	res := OutreachResult{Failed: invalid}

	first := true
	for _, number := range valid {
		var sendErr error
		for _, msg := range messages {
			if !first {
				if err := o.wait(ctx); err != nil {
					return res, err
				}
			}
			first = false
			if sendErr = o.svc.SendMessage(ctx, number, msg); sendErr != nil {
				break
			}
		}
		if sendErr != nil {
			slog.Warn("Outreach send failed", "to", number, "error", sendErr)
			if res.Failed == nil {
				res.Failed = make(map[string]string)
			}
			res.Failed[number] = sendErr.Error()
			continue
		}
		res.Sent = append(res.Sent, number)
	}
	slog.Info("Outreach finished", "sent", len(res.Sent), "failed", len(res.Failed))
	return res, nil
}

func (o *Outreach) wait(ctx context.Context) error {
	if o.delay == 0 {
		return ctx.Err()
	}
	t := time.NewTimer(o.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("outreach interrupted: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}

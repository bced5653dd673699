package genai

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/ScreenPipe/internal/models"
)

// BuildSystemPrompt describes the interview script and FAQ to the model so it
// can stay on the same questions as the rule-based flow.
func BuildSystemPrompt(def *models.FlowDefinition, faq models.FAQTable) string {
	var b strings.Builder
	b.WriteString("You are a friendly recruiter screening candidates over WhatsApp for a sales role. ")
	b.WriteString("Keep every reply short, polite and in the language the candidate uses. ")
	b.WriteString("Ask one question at a time, in this order, skipping anything already answered:\n")
	n := 0
	if def != nil {
		for _, s := range def.Steps() {
			if s.Prompt == "" {
				continue
			}
			n++
			fmt.Fprintf(&b, "%d. %s\n", n, s.Prompt)
		}
	}
	if len(faq) > 0 {
		b.WriteString("\nAnswer these common questions with the given facts only:\n")
		for _, e := range faq {
			fmt.Fprintf(&b, "- %s: %s\n", e.Key, e.Response)
		}
	}
	b.WriteString("\nIf the candidate is not interested, thank them and stop asking questions. Never invent salary figures or locations.")
	return b.String()
}

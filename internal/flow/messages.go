package flow

import (
	"fmt"
	"strconv"
)

// Messages are the fixed replies sent outside the scripted questions.
type Messages struct {
	Refusal                 string
	ExperienceRequired      string
	Thanks                  string
	CTCOutOfRange           string // %s receives the maximum CTC
	NotHiring               string
	AskCompanyName          string
	UnemployedProductPrompt string
}

// DefaultMessages returns the stock English replies.
func DefaultMessages() Messages {
	return Messages{
		Refusal:                 "No problem, thank you for your time. Have a great day!",
		ExperienceRequired:      "Sorry, this profile needs prior sales experience in home loans or LAP. We will reach out if a suitable opening comes up.",
		Thanks:                  "Thank you!",
		CTCOutOfRange:           "Sorry, the maximum CTC for this profile is %s LPA.",
		NotHiring:               "Sorry, we are not currently hiring for that profile.",
		AskCompanyName:          "Please share the name of the company you last worked with.",
		UnemployedProductPrompt: "Ok, Which product did you previously handle?",
	}
}

func (m Messages) ctcOutOfRange(max float64) string {
	return fmt.Sprintf(m.CTCOutOfRange, strconv.FormatFloat(max, 'f', -1, 64))
}

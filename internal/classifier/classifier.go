// Package classifier provides the keyword, pattern and fuzzy-similarity matchers
// used to interpret free-text candidate replies.
package classifier

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/BTreeMap/ScreenPipe/internal/models"
	"github.com/BTreeMap/ScreenPipe/internal/qualify"
)

// Default similarity thresholds on a 0-100 scale.
const (
	DefaultFAQThreshold   = 90 // inclusive
	DefaultFuzzyThreshold = 80 // exclusive
)

// Opts holds optional configuration for a Classifier.
type Opts struct {
	Phrases        PhraseTable
	Synonyms       []SynonymGroup
	FAQThreshold   int
	FuzzyThreshold int
}

// Option configures a Classifier.
type Option func(*Opts)

// WithPhrases replaces the default phrase table.
func WithPhrases(t PhraseTable) Option {
	return func(o *Opts) { o.Phrases = t }
}

// WithSynonyms replaces the FAQ synonym groups.
func WithSynonyms(g []SynonymGroup) Option {
	return func(o *Opts) { o.Synonyms = g }
}

// WithFAQThreshold sets the minimum similarity for an FAQ hit.
func WithFAQThreshold(n int) Option {
	return func(o *Opts) { o.FAQThreshold = n }
}

// WithFuzzyThreshold sets the similarity a first-step keyword must exceed.
func WithFuzzyThreshold(n int) Option {
	return func(o *Opts) { o.FuzzyThreshold = n }
}

type compiledSet struct {
	exact  map[string]struct{}
	phrase *regexp.Regexp
}

func (c compiledSet) match(normalized string) bool {
	if normalized == "" {
		return false
	}
	if _, ok := c.exact[normalized]; ok {
		return true
	}
	return c.phrase != nil && c.phrase.MatchString(normalized)
}

type faqMatcher struct {
	key   string
	terms []string
}

// Classifier is immutable after construction and safe for concurrent use.
type Classifier struct {
	sets           map[Category]compiledSet
	faq            []faqMatcher
	faqThreshold   int
	fuzzyThreshold int
}

// New compiles the phrase table and the FAQ matchers for the given FAQ table.
func New(faq models.FAQTable, opts ...Option) *Classifier {
	o := Opts{
		Phrases:        DefaultPhrases,
		Synonyms:       FAQSynonyms,
		FAQThreshold:   DefaultFAQThreshold,
		FuzzyThreshold: DefaultFuzzyThreshold,
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Classifier{
		sets:           make(map[Category]compiledSet, len(o.Phrases)),
		faqThreshold:   o.FAQThreshold,
		fuzzyThreshold: o.FuzzyThreshold,
	}
	for cat, set := range o.Phrases {
		c.sets[cat] = compile(set)
	}
	for _, entry := range faq {
		c.faq = append(c.faq, faqMatcher{key: entry.Key, terms: faqTerms(entry.Key, o.Synonyms)})
	}
	return c
}

func compile(set PhraseSet) compiledSet {
	cs := compiledSet{exact: make(map[string]struct{}, len(set.Exact))}
	for _, e := range set.Exact {
		if e = Normalize(e); e != "" {
			cs.exact[e] = struct{}{}
		}
	}
	var alts []string
	for _, p := range set.Phrases {
		if p = Normalize(p); p != "" {
			alts = append(alts, regexp.QuoteMeta(p))
		}
	}
	if len(alts) > 0 {
		// \b is ASCII-only in RE2, so boundaries are spaces in normalized text.
		cs.phrase = regexp.MustCompile(`(?:^| )(?:` + strings.Join(alts, "|") + `)(?: |$)`)
	}
	return cs
}

func faqTerms(key string, groups []SynonymGroup) []string {
	nk := Normalize(key)
	terms := []string{nk}
	seen := map[string]bool{nk: true}
	for _, g := range groups {
		selected := false
		for _, name := range g.Names {
			if Normalize(name) == nk {
				selected = true
				break
			}
		}
		if !selected {
			continue
		}
		for _, t := range g.Terms {
			t = Normalize(t)
			if t != "" && !seen[t] {
				seen[t] = true
				terms = append(terms, t)
			}
		}
	}
	return terms
}

// Normalize lowercases text, drops apostrophes, turns remaining punctuation
// and symbols into spaces and collapses whitespace.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	space := true
	for _, r := range strings.ToLower(text) {
		switch {
		case r == '\'' || r == '’' || r == '`':
			continue
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			if !space {
				b.WriteByte(' ')
				space = true
			}
		default:
			b.WriteRune(r)
			space = false
		}
	}
	return strings.TrimSpace(b.String())
}

// Matches reports whether text falls into cat.
func (c *Classifier) Matches(cat Category, text string) bool {
	set, ok := c.sets[cat]
	if !ok {
		return false
	}
	return set.match(Normalize(text))
}

// Decline reports a negative-intent reply such as "no" or "not interested".
func (c *Classifier) Decline(text string) bool {
	return c.Matches(CategoryDecline, text)
}

// IsFresher reports a "no experience" claim.
func (c *Classifier) IsFresher(text string) bool {
	return c.Matches(CategoryFresher, text)
}

// IsAcknowledgement reports a politeness or acknowledgement phrase.
func (c *Classifier) IsAcknowledgement(text string) bool {
	return c.Matches(CategoryAcknowledgement, text)
}

// IsUnemployed reports that the candidate says they are not currently employed.
func (c *Classifier) IsUnemployed(text string) bool {
	return c.Matches(CategoryUnemployment, text)
}

// DetectInterest reports an affirmative interest reply.
func (c *Classifier) DetectInterest(text string) bool {
	return c.Matches(CategoryInterest, text)
}

// CTCMatch is the result of DetectCTC. Amount is in lakh.
type CTCMatch struct {
	Amount float64
	Unit   string
	Found  bool
}

// DetectCTC extracts the first amount from text when a compensation keyword
// also appears. The amount is scaled to lakh by qualify.CTCAmount.
func (c *Classifier) DetectCTC(text string) CTCMatch {
	if !c.Matches(CategoryCompensation, text) {
		return CTCMatch{}
	}
	amount, unit, ok := qualify.CTCAmount(text)
	if !ok {
		return CTCMatch{}
	}
	return CTCMatch{Amount: amount, Unit: unit, Found: true}
}

// DetectFAQ returns the first FAQ key, in table order, whose key or synonyms
// are similar enough to the message.
func (c *Classifier) DetectFAQ(text string) (string, bool) {
	msg := Normalize(text)
	if msg == "" {
		return "", false
	}
	for _, f := range c.faq {
		for _, term := range f.terms {
			if term == "" {
				continue
			}
			if termSimilarity(msg, term) >= c.faqThreshold {
				return f.key, true
			}
		}
	}
	return "", false
}

// FuzzyMatch checks text against a "|"-separated keyword pattern.
// An empty pattern accepts everything.
func (c *Classifier) FuzzyMatch(text, pattern string) bool {
	keywords := models.FlowStep{Match: pattern}.MatchKeywords()
	if len(keywords) == 0 {
		return true
	}
	msg := strings.ToLower(strings.TrimSpace(text))
	if msg == "" {
		return false
	}
	for _, k := range keywords {
		if termSimilarity(msg, k) > c.fuzzyThreshold {
			return true
		}
	}
	return false
}

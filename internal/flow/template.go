package flow

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/BTreeMap/ScreenPipe/internal/models"
)

var placeholderRe = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Placeholders returns the answer keys referenced by tmpl, in order of first use.
func Placeholders(tmpl string) []string {
	var keys []string
	seen := map[string]bool{}
	for _, m := range placeholderRe.FindAllStringSubmatch(tmpl, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			keys = append(keys, m[1])
		}
	}
	return keys
}

// Render substitutes every {key} in tmpl with the collected answer for key.
// Unknown keys are left in place.
func Render(tmpl string, answers models.Answers) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(ph string) string {
		key := ph[1 : len(ph)-1]
		if v, ok := answers.Get(key); ok {
			return v
		}
		slog.Warn("flow.Render: placeholder has no answer", "key", key)
		return ph
	})
}

// Extract reverses Render: it matches rendered against tmpl and returns the
// value found for each placeholder.
func Extract(tmpl, rendered string) (map[string]string, bool) {
	var pattern strings.Builder
	pattern.WriteString(`(?s)^`)
	var order []string
	last := 0
	for _, loc := range placeholderRe.FindAllStringSubmatchIndex(tmpl, -1) {
		pattern.WriteString(regexp.QuoteMeta(tmpl[last:loc[0]]))
		pattern.WriteString(`(.*?)`)
		order = append(order, tmpl[loc[2]:loc[3]])
		last = loc[1]
	}
	pattern.WriteString(regexp.QuoteMeta(tmpl[last:]))
	pattern.WriteString(`$`)

	re, err := regexp.Compile(pattern.String())
	if err != nil {
		return nil, false
	}
	m := re.FindStringSubmatch(rendered)
	if m == nil {
		return nil, false
	}
	out := make(map[string]string, len(order))
	for i, key := range order {
		if prev, ok := out[key]; ok && prev != m[i+1] {
			return nil, false
		}
		out[key] = m[i+1]
	}
	return out, true
}

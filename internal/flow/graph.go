package flow

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/ScreenPipe/internal/models"
)

// ErrUnresolvedPlaceholder marks a prompt that references an answer not yet
// collected on some path that reaches it.
var ErrUnresolvedPlaceholder = errors.New("prompt references an answer not collected before it")

// ErrMissingPrompt marks a step that can be asked but has nothing to ask.
var ErrMissingPrompt = errors.New("step has no prompt")

// Guard is a predicate over conversation flags.
type Guard func(models.Flags) bool

// Unemployed holds once the candidate said they have no current job.
func Unemployed(f models.Flags) bool { return f.Unemployed }

// Employed is the negation of Unemployed.
func Employed(f models.Flags) bool { return !f.Unemployed }

// Edge is a conditional transition taken instead of the default Next.
type Edge struct {
	To   string
	When Guard
}

// AltPrompt replaces a node's prompt while When holds.
type AltPrompt struct {
	When   Guard
	Prompt string
}

// Node is one step of the interview graph.
type Node struct {
	ID         string
	Prompt     string
	Next       string // "" on the last step
	Edges      []Edge
	SkipWhen   Guard
	Alternates []AltPrompt
}

// Roles names the flow steps that carry special rules. A role naming a step
// that is not in the flow is disabled.
type Roles struct {
	Company          string
	PreviousEmployer string
	Notice           string
	CTC              string
	Product          string
	Experience       string
	Incentive        string
}

// DefaultRoles matches the bundled flow.
func DefaultRoles() Roles {
	return Roles{
		Company:          "company",
		PreviousEmployer: "previous_company",
		Notice:           "notice",
		CTC:              "ctc",
		Product:          "product",
		Experience:       "experience",
		Incentive:        "incentive",
	}
}

func (r Roles) restrictTo(def *models.FlowDefinition) Roles {
	keep := func(name, id string) string {
		if id != "" && !def.Has(id) {
			slog.Debug("flow.Roles: role disabled, step not in flow", "role", name, "step", id)
			return ""
		}
		return id
	}
	return Roles{
		Company:          keep("company", r.Company),
		PreviousEmployer: keep("previous_employer", r.PreviousEmployer),
		Notice:           keep("notice", r.Notice),
		CTC:              keep("ctc", r.CTC),
		Product:          keep("product", r.Product),
		Experience:       keep("experience", r.Experience),
		Incentive:        keep("incentive", r.Incentive),
	}
}

// Graph is the step graph derived from a flow definition.
type Graph struct {
	nodes map[string]*Node
	order []string
	roles Roles
}

// BuildGraph wires default edges in flow order plus the unemployment branch:
// company jumps to the previous-employer step, the previous-employer step is
// skipped for employed candidates, the notice step is skipped for unemployed
// ones, and the product step switches to unemployedProductPrompt.
func BuildGraph(def *models.FlowDefinition, roles Roles, unemployedProductPrompt string) *Graph {
	roles = roles.restrictTo(def)
	steps := def.Steps()
	g := &Graph{nodes: make(map[string]*Node, len(steps)), roles: roles}
	for i, s := range steps {
		n := &Node{ID: s.ID, Prompt: s.Prompt}
		if i+1 < len(steps) {
			n.Next = steps[i+1].ID
		}
		g.nodes[s.ID] = n
		g.order = append(g.order, s.ID)
	}

	if roles.PreviousEmployer != "" {
		g.nodes[roles.PreviousEmployer].SkipWhen = Employed
		if roles.Company != "" {
			c := g.nodes[roles.Company]
			c.Edges = append(c.Edges, Edge{To: roles.PreviousEmployer, When: Unemployed})
		}
	}
	if roles.Notice != "" {
		g.nodes[roles.Notice].SkipWhen = Unemployed
	}
	if roles.Product != "" && unemployedProductPrompt != "" {
		p := g.nodes[roles.Product]
		p.Alternates = append(p.Alternates, AltPrompt{When: Unemployed, Prompt: unemployedProductPrompt})
	}
	return g
}

// Roles returns the roles that are active for this graph.
func (g *Graph) Roles() Roles { return g.roles }

// First returns the opening step.
func (g *Graph) First() string { return g.order[0] }

// Has reports whether id is a node of the graph.
func (g *Graph) Has(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Node returns the node for id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

func (g *Graph) step(from string, flags models.Flags) string {
	n := g.nodes[from]
	for _, e := range n.Edges {
		if e.When(flags) {
			return e.To
		}
	}
	return n.Next
}

// Next returns the step that follows from under flags, walking past skipped
// steps. ok is false when the interview is over.
func (g *Graph) Next(from string, flags models.Flags) (string, bool) {
	if !g.Has(from) {
		return "", false
	}
	cur := from
	for hops := 0; hops < len(g.order); hops++ {
		to := g.step(cur, flags)
		if to == "" {
			return "", false
		}
		if n := g.nodes[to]; n.SkipWhen != nil && n.SkipWhen(flags) {
			cur = to
			continue
		}
		return to, true
	}
	slog.Error("flow.Graph.Next: cycle detected", "from", from)
	return "", false
}

// Prompt returns the template asked at id under flags.
func (g *Graph) Prompt(id string, flags models.Flags) string {
	n, ok := g.nodes[id]
	if !ok {
		return ""
	}
	for _, alt := range n.Alternates {
		if alt.When(flags) {
			return alt.Prompt
		}
	}
	return n.Prompt
}

// Render returns the prompt for id with placeholders filled from answers.
func (g *Graph) Render(id string, flags models.Flags, answers models.Answers) string {
	return Render(g.Prompt(id, flags), answers)
}

// Validate walks every reachable path and fails on a prompt that references
// an answer not collected earlier on that path, or on an empty prompt.
func (g *Graph) Validate() error {
	paths := []bool{false}
	if g.roles.Company != "" && g.roles.PreviousEmployer != "" {
		paths = append(paths, true)
	}
	for _, unemployedAtCompany := range paths {
		if err := g.walk(unemployedAtCompany); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) walk(unemployedAtCompany bool) error {
	var flags models.Flags
	collected := map[string]bool{}
	cur := g.First()
	for hops := 0; hops <= len(g.order); hops++ {
		prompt := g.Prompt(cur, flags)
		if cur != g.First() && prompt == "" {
			return fmt.Errorf("%w: %q", ErrMissingPrompt, cur)
		}
		for _, key := range Placeholders(prompt) {
			if !collected[key] {
				return fmt.Errorf("%w: step %q uses {%s} (unemployed=%v)", ErrUnresolvedPlaceholder, cur, key, flags.Unemployed)
			}
		}
		collected[cur] = true
		if unemployedAtCompany && cur == g.roles.Company {
			flags.Unemployed = true
		}
		next, ok := g.Next(cur, flags)
		if !ok {
			return nil
		}
		cur = next
	}
	return fmt.Errorf("flow graph does not terminate")
}

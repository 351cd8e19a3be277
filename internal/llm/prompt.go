package llm

import (
	"fmt"
	"strings"

	"tabletalk/internal/semantic"
)

// PromptContext is everything the generator folds into one prompt: the
// resolved schema slice, the user's question, and any prior conversation
// turns for follow-up disambiguation.
type PromptContext struct {
	Resolved *semantic.ResolvedContext
	Query    string
	History  []semantic.Turn
}

const systemPrompt = `You write Go code that answers questions about tabular data.

Rules:
- Respond with exactly one Go code block and nothing else.
- The code must define: func Answer(env *frame.Env) (*frame.Result, error)
- Import only "tabletalk/frame" and, if needed, these stdlib packages:
  fmt, strings, strconv, math, sort, time, errors.
- Read tables with env.Table("name"). Only the tables listed in the schema
  are bound; anything else fails.
- Return frame.NewTableResult, frame.NewScalarResult, or frame.NewChartResult.
- Never touch the filesystem, network, or environment.`

// BuildPrompt renders the user prompt: schema summary, conversation history,
// the question, and the ordered failures of earlier attempts so the model
// can self-correct.
func BuildPrompt(pc PromptContext, priorErrors []PriorFailure) string {
	var b strings.Builder

	b.WriteString("Schema:\n")
	writeSchemaSummary(&b, pc.Resolved)

	if len(pc.History) > 0 {
		b.WriteString("\nConversation so far:\n")
		for _, turn := range pc.History {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", turn.Query, turn.Answer)
		}
	}

	fmt.Fprintf(&b, "\nQuestion: %s\n", pc.Query)

	if len(priorErrors) > 0 {
		b.WriteString("\nEarlier attempts failed. Fix the cause; do not repeat the same code.\n")
		for i, pe := range priorErrors {
			fmt.Fprintf(&b, "\n--- attempt %d ---\n%s\nfailure: %s\n", i+1, pe.Code, pe.Reason)
		}
	}
	return b.String()
}

// writeSchemaSummary renders the compact TABLE text the model sees. Kept
// terse on purpose: column name, type, nullability marker, description.
func writeSchemaSummary(b *strings.Builder, rc *semantic.ResolvedContext) {
	writeEntity := func(kind, name, desc string, cols []semantic.Column) {
		fmt.Fprintf(b, "%s %s", kind, name)
		if desc != "" {
			fmt.Fprintf(b, " -- %s", desc)
		}
		b.WriteByte('\n')
		for _, c := range cols {
			fmt.Fprintf(b, "  %s: %s", c.Name, c.Type)
			if c.Nullable {
				b.WriteString(" nullable")
			}
			if c.Description != "" {
				fmt.Fprintf(b, " -- %s", c.Description)
			}
			b.WriteByte('\n')
		}
	}
	for _, t := range rc.Tables {
		writeEntity("TABLE", t.Name, t.Description, t.Columns)
	}
	for _, v := range rc.Views {
		writeEntity("VIEW", v.Name, v.Description, v.Columns)
		if len(v.Bases) > 0 {
			fmt.Fprintf(b, "  derived from: %s\n", strings.Join(v.Bases, ", "))
		}
	}
	if len(rc.Relationships) > 0 {
		b.WriteString("RELATIONSHIPS:\n")
		for _, rel := range rc.Relationships {
			fmt.Fprintf(b, "  %s -> %s (%s)\n", rel.Source, rel.Target, rel.Cardinality)
		}
	}
}

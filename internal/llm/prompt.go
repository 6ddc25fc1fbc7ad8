package llm

import (
	"fmt"
	"strings"
)

// systemPrompt frames every generation call. The pipeline has already done
// the tool work by the time the model runs: history and retrieved snippets
// arrive in the prompt itself, so the instructions are about grounding and
// citation, not tool selection.
const systemPrompt = `You are an expert AI assistant answering questions using a knowledge base.

You will be given the conversation so far, a set of retrieved document snippets, and the user's question.

When answering:
- Ground every factual claim in the retrieved snippets.
- Cite sources with numbered citations like [Source 1], [Source 2] matching the snippet numbering.
- Start with a concise explanation, then key points, then a brief summary.
- If the retrieved snippets are empty or not relevant, say that no relevant documents were found and answer only from the conversation context.

Provide the most accurate, comprehensive, and helpful answer possible.`

// renderUserMessage concatenates the generation input in the order the
// pipeline defines: bounded history, snippets with citation indices, then
// the new question. No token budget is enforced beyond the history cap;
// oversized prompts are the model endpoint's concern.
func renderUserMessage(req Request) string {
	var b strings.Builder

	if len(req.History) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, t := range req.History {
			fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
		}
		b.WriteString("\n")
	}

	if len(req.Snippets) > 0 {
		b.WriteString("Retrieved documents:\n")
		for i, s := range req.Snippets {
			fmt.Fprintf(&b, "[Source %d] %s\n", i+1, s.Text)
		}
		b.WriteString("\n")
	} else {
		b.WriteString("No documents were retrieved for this question.\n\n")
	}

	fmt.Fprintf(&b, "Question: %s", req.Query)
	return b.String()
}

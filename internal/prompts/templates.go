// Package prompts builds the three prompts of the answer chain. The
// builders are pure: the same inputs always produce the same text.
package prompts

import (
	"fmt"
	"strings"
)

// Templates renders prompts for one fixed Region. A nil or empty Region
// drops the local context blocks entirely.
type Templates struct {
	region  *Region
	context string
}

// New creates Templates for region.
func New(region *Region) *Templates {
	t := &Templates{}
	if !region.IsEmpty() {
		t.region = region
		t.context = region.ToPromptSection()
	}
	return t
}

// Region returns the configured region, or nil.
func (t *Templates) Region() *Region { return t.region }

func (t *Templates) regionName() string {
	if t.region == nil || t.region.Name == "" {
		return ""
	}
	return t.region.Name
}

// Decomposer asks the model for the single most critical concept behind
// question, as JSON key "concept".
func (t *Templates) Decomposer(question string) string {
	var b strings.Builder
	b.WriteString("You are an expert climate scientist")
	if name := t.regionName(); name != "" {
		fmt.Fprintf(&b, " specializing in the climate patterns of %s", name)
	}
	b.WriteString(".\n")
	b.WriteString("Your task is to analyze the user's question and identify the single most critical scientific concept needed for a layperson to understand the answer.\n\n")

	if t.context != "" {
		if name := t.regionName(); name != "" {
			fmt.Fprintf(&b, "LOCAL CONTEXT FOR %s:\n", strings.ToUpper(name))
		} else {
			b.WriteString("LOCAL CONTEXT:\n")
		}
		b.WriteString(t.context)
		b.WriteString("\n\n")
	}

	b.WriteString("If the user's input is conversational (greeting, thanks), meta-commentary, or not about climate science, return \"General Conversation\" or \"Context Verification\" as the concept.\n\n")
	b.WriteString("Return your answer as a JSON object with a single key: \"concept\".\n\n")
	fmt.Fprintf(&b, "User Question: \"%s\"\n\n", question)
	b.WriteString("JSON output:\n")
	return b.String()
}

// Explainer asks for a concise explanation of concept, as JSON key
// "explanation". It never carries regional context.
func (t *Templates) Explainer(concept string) string {
	var b strings.Builder
	b.WriteString("You are an expert climate scientist. Provide a clear, direct, and accurate explanation of the requested concept.\n\n")
	b.WriteString("Styles:\n")
	b.WriteString("- Be concise and factual.\n")
	b.WriteString("- Avoid overused analogies.\n")
	b.WriteString("- Do not dumb it down excessively; respect the user's intelligence.\n\n")
	b.WriteString("Return your explanation as a JSON object with a single key: \"explanation\".\n\n")
	fmt.Fprintf(&b, "Concept to Explain: \"%s\"\n\n", concept)
	b.WriteString("JSON output:\n")
	return b.String()
}

// Synthesizer asks for the final plain-text answer to question, grounded
// on explanation and continuing historyText.
func (t *Templates) Synthesizer(question, explanation, historyText string) string {
	var b strings.Builder
	b.WriteString("You are \"Atmo\", a helpful climate assistant")
	if name := t.regionName(); name != "" {
		fmt.Fprintf(&b, " with deep knowledge of %s's climate science", name)
	}
	b.WriteString(".\n\n")

	b.WriteString("INPUTS:\n")
	fmt.Fprintf(&b, "1. User's Question: \"%s\"\n", question)
	fmt.Fprintf(&b, "2. Background Knowledge: \"%s\"\n", explanation)
	fmt.Fprintf(&b, "3. Conversation History:\n%s\n\n", historyText)

	if t.context != "" {
		b.WriteString("LOCAL CONTEXT:\n")
		b.WriteString(t.context)
		b.WriteString("\n\n")
	}

	b.WriteString("INSTRUCTIONS:\n")
	b.WriteString("- Use the Background Knowledge to inform your answer.\n")
	if t.context != "" {
		name := t.regionName()
		if name == "" {
			name = "region"
		}
		fmt.Fprintf(&b, "- IMPORTANT: Prioritize %s-specific data and local impacts from the local context.\n", name)
	}
	b.WriteString("- Maintain continuity with history.\n")
	b.WriteString("- Be direct and professional. Avoid filler phrases.\n\n")
	b.WriteString("Response (Plain Text):\n")
	return b.String()
}

package llm

import (
	"context"
	"strings"
)

// HeuristicExtractor is the no-network fallback used when no chat provider
// is configured. It produces a single theme from the document's first line
// and one narrative per leading paragraph. The output is crude but keeps
// local development and tests independent of any API key.
type HeuristicExtractor struct{}

func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{}
}

func (h *HeuristicExtractor) Extract(_ context.Context, text string) (*ExtractedDocument, error) {
	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return &ExtractedDocument{Summary: "", Conclusions: []string{}, Themes: []ExtractedTheme{}}, nil
	}

	label := firstSentence(paragraphs[0])
	if len(label) > 80 {
		label = label[:80]
	}

	var narratives []ExtractedNarrative
	for _, paragraph := range paragraphs {
		if len(narratives) == 5 {
			break
		}
		statement := firstSentence(paragraph)
		if statement == "" {
			continue
		}
		if len(statement) > 500 {
			statement = statement[:500]
		}
		quote := paragraph
		if len(quote) > 250 {
			quote = quote[:250]
		}
		narratives = append(narratives, ExtractedNarrative{
			Statement:  statement,
			SubTheme:   "Overview",
			Stance:     "neutral",
			Confidence: "opinion",
			Evidence:   []ExtractedEvidence{{Quote: quote}},
		})
	}

	return &ExtractedDocument{
		Summary:     firstSentence(paragraphs[0]),
		Conclusions: []string{},
		Themes: []ExtractedTheme{
			{Label: label, Narratives: narratives},
		},
	}, nil
}

func splitParagraphs(text string) []string {
	var out []string
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block != "" {
			out = append(out, block)
		}
	}
	return out
}

func firstSentence(paragraph string) string {
	paragraph = strings.TrimSpace(strings.ReplaceAll(paragraph, "\n", " "))
	for _, terminator := range []string{". ", "! ", "? "} {
		if idx := strings.Index(paragraph, terminator); idx >= 0 {
			return paragraph[:idx+1]
		}
	}
	return paragraph
}

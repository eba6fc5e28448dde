package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const suggestSystemPrompt = "You are an analyst. Given a list of investment theme labels, identify which labels " +
	"refer to the same investment thesis or topic. Group labels that are the same theme, a development or angle " +
	"of a core theme, synonyms or rephrasings, or the same entity. " +
	"Do NOT group labels that are distinct investment theses (e.g. 'China internet' and 'China economy' must stay " +
	"in separate groups). Return ONLY valid JSON. Do not include markdown.\n" +
	"Output format: {\"groups\": [[\"label1\", \"label2\"], [\"label3\"], ...]} " +
	"Each inner array is a set of labels that describe the same theme. " +
	"Put each label in at most one group. Single-label groups are allowed for themes with no duplicates."

// MergeSuggester asks the chat provider to group labels that name the same
// theme. It satisfies merge.Suggester; its callers treat errors as advisory.
type MergeSuggester struct {
	client *Client
}

func NewMergeSuggester(client *Client) *MergeSuggester {
	return &MergeSuggester{client: client}
}

func (s *MergeSuggester) SuggestGroups(ctx context.Context, labels []string) ([][]string, error) {
	if len(labels) == 0 {
		return nil, nil
	}

	var builder strings.Builder
	builder.WriteString("Here are investment theme labels extracted from research. ")
	builder.WriteString("Which refer to the same theme? Return JSON with \"groups\": array of arrays of labels.\n\nLabels:\n")
	for _, label := range labels {
		builder.WriteString("- ")
		builder.WriteString(label)
		builder.WriteString("\n")
	}

	raw, err := s.client.Complete(ctx, suggestSystemPrompt, builder.String(), 4096)
	if err != nil {
		return nil, fmt.Errorf("suggest-merges completion: %w", err)
	}

	var payload struct {
		Groups [][]string `json:"groups"`
	}
	if err := json.Unmarshal([]byte(StripMarkdownFences(raw)), &payload); err != nil {
		return nil, fmt.Errorf("suggest-merges returned invalid JSON: %w", err)
	}

	var out [][]string
	for _, group := range payload.Groups {
		var cleaned []string
		for _, label := range group {
			if trimmed := strings.TrimSpace(label); trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			out = append(out, cleaned)
		}
	}
	return out, nil
}

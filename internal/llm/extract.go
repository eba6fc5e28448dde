package llm

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed extraction.schema.json
var extractionSchemaJSON string

const maxDocumentChars = 120_000

// ExtractedDocument is the structured output of one extraction call.
type ExtractedDocument struct {
	Summary     string           `json:"summary"`
	Conclusions []string         `json:"conclusions"`
	Themes      []ExtractedTheme `json:"themes"`
}

type ExtractedTheme struct {
	Label      string               `json:"label"`
	Narratives []ExtractedNarrative `json:"narratives"`
}

type ExtractedNarrative struct {
	Statement  string              `json:"statement"`
	SubTheme   string              `json:"sub_theme"`
	Stance     string              `json:"narrative_stance"`
	Confidence string              `json:"confidence_level"`
	Evidence   []ExtractedEvidence `json:"evidence"`
}

type ExtractedEvidence struct {
	Quote string `json:"quote"`
	Page  *int   `json:"page"`
}

const extractSystemPrompt = "You are an analyst extracting market narratives from research.\n" +
	"Return ONLY valid JSON. Do not include markdown.\n" +
	"CRITICAL: Theme labels must be ONLY the core entity or topic name (e.g. 'BYD', 'Miniso', 'Gold'). " +
	"NEVER append qualifiers, strategies, or dimensions to the theme label. Those go in sub_theme.\n" +
	"Sub-themes are short reusable lenses ('Demand outlook', 'Valuation') or named catalysts ('CHIPS Act') " +
	"when the entity is central to the narrative.\n" +
	"For each narrative provide sub_theme, narrative_stance (bullish/bearish/mixed/neutral), " +
	"and confidence_level (fact/opinion).\n" +
	"Be concise, but include direct quotes as evidence with page numbers when possible.\n"

const extractUserTemplate = "Extract investment themes and narratives from the document below. " +
	"Respond with JSON matching this schema:\n%s\n\nDocument:\n%s"

// Extractor turns raw document text into themes and narratives.
type Extractor struct {
	client *Client
}

func NewExtractor(client *Client) *Extractor {
	return &Extractor{client: client}
}

// Extract calls the chat provider and validates the response against the
// embedded extraction schema before returning it.
func (e *Extractor) Extract(ctx context.Context, text string) (*ExtractedDocument, error) {
	if len(text) > maxDocumentChars {
		text = text[:maxDocumentChars]
	}

	userPrompt := fmt.Sprintf(extractUserTemplate, extractionSchemaJSON, text)
	raw, err := e.client.Complete(ctx, extractSystemPrompt, userPrompt, 4096)
	if err != nil {
		return nil, fmt.Errorf("extraction completion: %w", err)
	}
	return ParseExtraction([]byte(StripMarkdownFences(raw)))
}

// ParseExtraction validates raw JSON against the extraction schema and
// decodes it, normalizing stance and confidence values.
func ParseExtraction(raw []byte) (*ExtractedDocument, error) {
	value, err := decodeStrictJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("decode extraction JSON: %w", err)
	}

	schema, err := loadExtractionSchema()
	if err != nil {
		return nil, fmt.Errorf("load extraction schema: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("extraction schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize extraction JSON: %w", err)
	}

	var doc ExtractedDocument
	if err := json.Unmarshal(normalized, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal extraction: %w", err)
	}

	for i := range doc.Themes {
		for j := range doc.Themes[i].Narratives {
			narrative := &doc.Themes[i].Narratives[j]
			narrative.Stance = normalizeStance(narrative.Stance)
			narrative.Confidence = normalizeConfidence(narrative.Confidence)
		}
	}
	return &doc, nil
}

// StripMarkdownFences removes a surrounding ``` code fence if the model
// wrapped its JSON in one despite instructions.
func StripMarkdownFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
			trimmed = trimmed[idx+1:]
		} else {
			trimmed = trimmed[3:]
		}
	}
	if strings.HasSuffix(trimmed, "```") {
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = strings.TrimRight(trimmed[:idx], " \t\r\n")
		}
	}
	return strings.TrimSpace(trimmed)
}

func normalizeStance(stance string) string {
	switch strings.ToLower(strings.TrimSpace(stance)) {
	case "bullish":
		return "bullish"
	case "bearish":
		return "bearish"
	case "mixed":
		return "mixed"
	default:
		return "neutral"
	}
}

func normalizeConfidence(confidence string) string {
	if strings.ToLower(strings.TrimSpace(confidence)) == "fact" {
		return "fact"
	}
	return "opinion"
}

var (
	extractionSchemaOnce sync.Once
	extractionSchema     *jsonschema.Schema
	extractionSchemaErr  error
)

func loadExtractionSchema() (*jsonschema.Schema, error) {
	extractionSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		if err := compiler.AddResource("extraction.schema.json", strings.NewReader(extractionSchemaJSON)); err != nil {
			extractionSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, err := compiler.Compile("extraction.schema.json")
		if err != nil {
			extractionSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}
		extractionSchema = schema
	})

	if extractionSchemaErr != nil {
		return nil, extractionSchemaErr
	}
	if extractionSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return extractionSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("response is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("response contains trailing content")
	}
	return value, nil
}

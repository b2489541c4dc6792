package extract

import (
	"github.com/google/generative-ai-go/genai"
)

// SystemPrompt instructs the model how to synthesize insights from one block.
const SystemPrompt = `You are a data analyst specialized in UX Research.
Your task is to synthesize qualitative data (text) and quantitative data (KPIs) into actionable insights.

For each insight, fill in:
- "quote": a representative quote (the user's own words)
- "topic": a category (e.g. Usability, Performance)
- "sentiment": positive | negative | neutral
- "user_need": the underlying user need
- "evidence": whether it came from qualitative data, quantitative data, or both. If quantitative, name the KPI.

RULES:
- Return ONLY valid JSON (an array of objects).
- At most 5 insights per block.`

// InsightSchema is the JSON schema of the expected response: an array of
// insight objects with all five fields required.
var InsightSchema = map[string]any{
	"type": "array",
	"items": map[string]any{
		"type": "object",
		"properties": map[string]any{
			"quote":     map[string]any{"type": "string"},
			"topic":     map[string]any{"type": "string"},
			"sentiment": map[string]any{"type": "string", "enum": []string{"positive", "negative", "neutral"}},
			"user_need": map[string]any{"type": "string"},
			"evidence":  map[string]any{"type": "string"},
		},
		"required": []string{"quote", "topic", "sentiment", "user_need", "evidence"},
	},
}

// fewShot pairs a short survey block with the answer the model should give.
var fewShot = [][2]string{
	{
		userPrompt("QUALITATIVE DATA\nQuestion: What would you improve?\nThe checkout keeps asking for my address again\nI could not find the invoice download"),
		`[{"quote":"The checkout keeps asking for my address again","topic":"Usability","sentiment":"negative","user_need":"Saved shipping details","evidence":"Qualitative"},` +
			`{"quote":"I could not find the invoice download","topic":"Navigation","sentiment":"negative","user_need":"Easy access to invoices","evidence":"Qualitative"}]`,
	},
}

// GenaiSchema converts a JSON schema map into the genai schema used for
// structured output. Unknown keys are ignored.
func GenaiSchema(schema map[string]any) *genai.Schema {
	out := &genai.Schema{}
	switch schema["type"] {
	case "array":
		out.Type = genai.TypeArray
	case "object":
		out.Type = genai.TypeObject
	case "string":
		out.Type = genai.TypeString
	case "number":
		out.Type = genai.TypeNumber
	case "integer":
		out.Type = genai.TypeInteger
	case "boolean":
		out.Type = genai.TypeBoolean
	}

	if items, ok := schema["items"].(map[string]any); ok {
		out.Items = GenaiSchema(items)
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, p := range props {
			if pm, ok := p.(map[string]any); ok {
				out.Properties[name] = GenaiSchema(pm)
			}
		}
	}
	if enum, ok := schema["enum"].([]string); ok {
		out.Enum = enum
		out.Format = "enum"
	}
	if req, ok := schema["required"].([]string); ok {
		out.Required = req
	}
	return out
}

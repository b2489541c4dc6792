package model

import (
	"bytes"
	"encoding/json"
)

// Category tells the pipeline how to read FileInput.Content.
type Category string

const (
	// CategorySurvey marks content as a JSON-encoded SurveyPayload.
	CategorySurvey Category = "pesquisa_usuario"
	// CategoryTranscript marks content as a plain-text interview transcript.
	CategoryTranscript Category = "transcricao_entrevista"
)

// FileInput is one research artifact submitted for analysis.
type FileInput struct {
	Filename string   `json:"filename"`
	Content  string   `json:"content"`
	Category Category `json:"category"`
}

// KPI is an opaque quantitative data point attached as context to qualitative blocks.
type KPI map[string]any

// SurveyPayload is the structured form of a survey file.
type SurveyPayload struct {
	QuantitativeKPIs []KPI     `json:"quantitativeKPIs"`
	QualitativeData  []QAGroup `json:"qualitativeData"`
}

// QAGroup is one open question together with its free-text answers.
// Answers stays loosely typed because survey exports mix strings with
// numbers and nulls; the normalizer keeps only non-empty strings.
type QAGroup struct {
	Question string `json:"question"`
	Answers  []any  `json:"answers"`
}

// UnmarshalJSON accepts the legacy Portuguese keys (pergunta, respostas)
// alongside question and answers. A group whose fields have the wrong JSON
// type decodes to empty values instead of failing the whole payload; the
// normalizer then skips it.
func (g *QAGroup) UnmarshalJSON(data []byte) error {
	var raw struct {
		Question  json.RawMessage `json:"question"`
		Answers   json.RawMessage `json:"answers"`
		Pergunta  json.RawMessage `json:"pergunta"`
		Respostas json.RawMessage `json:"respostas"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		// null or a non-object group
		*g = QAGroup{}
		return nil
	}

	question := raw.Question
	if len(question) == 0 {
		question = raw.Pergunta
	}
	answers := raw.Answers
	if len(answers) == 0 {
		answers = raw.Respostas
	}

	*g = QAGroup{}
	_ = json.Unmarshal(question, &g.Question)
	if err := json.Unmarshal(answers, &g.Answers); err != nil {
		g.Answers = nil
	}
	return nil
}

// RawRecord is one candidate insight as returned by the model, before
// sanitization. A nil RawRecord stands for a non-object array element.
type RawRecord map[string]any

// Sentiment is the polarity of an insight.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Valid reports whether s is one of the three allowed values.
func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNegative, SentimentNeutral:
		return true
	default:
		return false
	}
}

// Insight is a normalized structured record summarizing one piece of user feedback.
type Insight struct {
	Quote     string    `json:"quote"`
	Topic     string    `json:"topic"`
	Sentiment Sentiment `json:"sentiment"`
	UserNeed  string    `json:"user_need"`
	Evidence  string    `json:"evidence"`
}

// AnalysisResult is the per-file output of the pipeline.
type AnalysisResult struct {
	Filename string    `json:"filename"`
	Insights []Insight `json:"insights"`
}

// MarshalJSON encodes a nil insight list as [] so callers always see an array.
// Quotes are user text, so <, > and & are kept as is.
func (r AnalysisResult) MarshalJSON() ([]byte, error) {
	type alias AnalysisResult
	if r.Insights == nil {
		r.Insights = []Insight{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(alias(r)); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// AnalysisRequest is a batch of files plus an optional KPI list shared by
// every file that carries no KPIs of its own.
type AnalysisRequest struct {
	Files []FileInput `json:"files"`
	KPIs  []KPI       `json:"kpis,omitempty"`
}

// TokenUsage tracks token consumption across extraction calls.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates other into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Total returns input plus output tokens.
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}

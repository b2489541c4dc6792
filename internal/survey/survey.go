// Package survey turns survey payloads into extraction blocks and KPI context.
package survey

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/insights-cli/internal/chunk"
	"github.com/sells-group/insights-cli/internal/model"
)

// ErrMalformedSurvey is returned by Parse when content is not a survey object.
var ErrMalformedSurvey = eris.New("survey: malformed payload")

// questionPrefix opens every question unit so the chunker's marker splits on it.
const questionPrefix = "Question: "

// Parse decodes survey content. The content must be a JSON object whose
// qualitativeData field is an array. KPI entries that are not objects are
// dropped.
func Parse(content string) (*model.SurveyPayload, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &top); err != nil || top == nil {
		return nil, eris.Wrap(ErrMalformedSurvey, "survey: content is not a JSON object")
	}

	rawGroups, ok := top["qualitativeData"]
	if !ok || !isArray(rawGroups) {
		return nil, eris.Wrap(ErrMalformedSurvey, "survey: qualitativeData missing or not an array")
	}

	var payload model.SurveyPayload
	if err := json.Unmarshal(rawGroups, &payload.QualitativeData); err != nil {
		return nil, eris.Wrap(ErrMalformedSurvey, err.Error())
	}

	payload.QuantitativeKPIs = parseKPIs(top["quantitativeKPIs"])
	return &payload, nil
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

func parseKPIs(raw json.RawMessage) []model.KPI {
	kpis := []model.KPI{}
	if !isArray(raw) {
		return kpis
	}
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return kpis
	}
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			kpis = append(kpis, model.KPI(obj))
		}
	}
	return kpis
}

// Normalize builds one text unit per usable question group and chunks each
// unit on its own, so two questions never share a block. Groups with a blank
// question or without any non-empty string answer are skipped.
func Normalize(payload *model.SurveyPayload, splitter chunk.Splitter) ([]string, []model.KPI) {
	blocks := []string{}
	kpis := []model.KPI{}
	if payload == nil {
		return blocks, kpis
	}
	if payload.QuantitativeKPIs != nil {
		kpis = payload.QuantitativeKPIs
	}

	for _, g := range payload.QualitativeData {
		question := strings.TrimSpace(g.Question)
		if question == "" {
			continue
		}
		answers := stringAnswers(g.Answers)
		if len(answers) == 0 {
			continue
		}
		unit := questionPrefix + question + "\n" + strings.Join(answers, "\n")
		blocks = append(blocks, splitter.Split(unit)...)
	}
	return blocks, kpis
}

func stringAnswers(raw []any) []string {
	var out []string
	for _, a := range raw {
		s, ok := a.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// BlocksForFile dispatches on the file category. Survey files that fail to
// parse are chunked as plain text with no KPIs.
func BlocksForFile(f model.FileInput, splitter chunk.Splitter) ([]string, []model.KPI) {
	if f.Category != model.CategorySurvey {
		return splitter.Split(f.Content), []model.KPI{}
	}

	payload, err := Parse(f.Content)
	if err != nil {
		zap.L().Debug("survey: falling back to plain text",
			zap.String("file", f.Filename),
			zap.Error(err),
		)
		return splitter.Split(f.Content), []model.KPI{}
	}
	return Normalize(payload, splitter)
}

package survey

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/insights-cli/internal/model"
)

// ErrTooFewRows is returned when a sheet lacks the type and header rows.
var ErrTooFewRows = eris.New("survey: sheet needs a type row and a header row")

// Column type prefixes found in the first row of a survey export.
const (
	typeOpenText       = "opentext"
	typeMultipleChoice = "multiplechoice"
	typeRating         = "rating"
	typeOpinionScale   = "opinionscale"
)

var metadataHeaders = map[string]bool{
	"id":           true,
	"data":         true,
	"timestamp":    true,
	"participante": true,
	"respondente":  true,
	"e-mail":       true,
	"email":        true,
}

var choiceSep = regexp.MustCompile(`[,;]+`)

// Import is a survey built from spreadsheet rows.
type Import struct {
	Payload *model.SurveyPayload `json:"structured_data"`
	// Summary has one line per kept column.
	Summary []string `json:"summary"`
}

// Content encodes the payload as survey file content.
func (imp *Import) Content() (string, error) {
	data, err := json.Marshal(imp.Payload)
	if err != nil {
		return "", eris.Wrap(err, "survey: encode import")
	}
	return string(data), nil
}

// FromRows converts an exported survey sheet into a payload. Row 0 holds the
// column types, row 1 the question headers, the remaining rows responses.
// Open-text columns become question groups; every other column becomes a KPI
// with a value distribution.
func FromRows(rows [][]string) (*Import, error) {
	if len(rows) < 2 {
		return nil, eris.Wrapf(ErrTooFewRows, "survey: got %d rows", len(rows))
	}

	types, headers, data := rows[0], rows[1], rows[2:]
	imp := &Import{
		Payload: &model.SurveyPayload{
			QuantitativeKPIs: []model.KPI{},
			QualitativeData:  []model.QAGroup{},
		},
		Summary: []string{},
	}

	for i, header := range headers {
		header = strings.TrimSpace(header)
		if header == "" || metadataHeaders[strings.ToLower(header)] {
			continue
		}
		colType := ""
		if i < len(types) {
			colType = strings.ToLower(strings.TrimSpace(types[i]))
		}

		values := column(data, i)
		if len(values) == 0 {
			continue
		}

		typeLabel := colType
		if typeLabel == "" {
			typeLabel = "unknown"
		}
		imp.Summary = append(imp.Summary, fmt.Sprintf("%s (type: %s, N=%d)", header, typeLabel, len(values)))

		if strings.HasPrefix(colType, typeOpenText) {
			answers := make([]any, len(values))
			for j, v := range values {
				answers[j] = v
			}
			imp.Payload.QualitativeData = append(imp.Payload.QualitativeData, model.QAGroup{
				Question: header,
				Answers:  answers,
			})
			continue
		}

		imp.Payload.QuantitativeKPIs = append(imp.Payload.QuantitativeKPIs, buildKPI(header, colType, i, values))
	}

	return imp, nil
}

// column returns the trimmed non-empty cells of column i.
func column(rows [][]string, i int) []string {
	var out []string
	for _, row := range rows {
		if i >= len(row) {
			continue
		}
		if v := strings.TrimSpace(row[i]); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func buildKPI(header, colType string, order int, values []string) model.KPI {
	kpi := model.KPI{
		"metric":  header,
		"details": fmt.Sprintf("N=%d responses", len(values)),
		"type":    colType,
		"n":       len(values),
		"order":   order,
	}

	switch {
	case strings.HasPrefix(colType, typeMultipleChoice):
		var options []string
		for _, v := range values {
			options = append(options, choiceSep.Split(v, -1)...)
		}
		dist, keys := countTokens(options)
		kpi["distribution"] = dist
		kpi["value"] = topOption(dist, keys)

	case strings.HasPrefix(colType, typeRating), strings.HasPrefix(colType, typeOpinionScale):
		var nums []string
		sum := 0.0
		for _, v := range values {
			f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", "."), 64)
			if err != nil {
				continue
			}
			sum += f
			nums = append(nums, strconv.FormatFloat(f, 'f', -1, 64))
		}
		dist, _ := countTokens(nums)
		kpi["distribution"] = dist
		if len(nums) > 0 {
			kpi["value"] = strconv.FormatFloat(sum/float64(len(nums)), 'f', 1, 64)
		}

	default:
		dist, _ := countTokens(values)
		kpi["distribution"] = dist
	}

	return kpi
}

// countTokens tallies sanitized tokens and returns the keys in first-seen order.
func countTokens(tokens []string) (map[string]int, []string) {
	dist := map[string]int{}
	var keys []string
	for _, t := range tokens {
		t = sanitizeToken(t)
		if t == "" {
			continue
		}
		if _, seen := dist[t]; !seen {
			keys = append(keys, t)
		}
		dist[t]++
	}
	return dist, keys
}

func sanitizeToken(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "undefined", "nan", "null":
		return ""
	}
	return s
}

// topOption picks the most frequent option; ties go to the first seen.
func topOption(dist map[string]int, keys []string) string {
	best, bestCount := "", 0
	for _, k := range keys {
		if dist[k] > bestCount {
			best, bestCount = k, dist[k]
		}
	}
	return best
}

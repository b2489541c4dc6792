// Package sanitize turns raw model records into validated insights.
package sanitize

import (
	"strconv"
	"strings"

	"github.com/sells-group/insights-cli/internal/model"
)

const (
	// DefaultCap bounds the records accepted from a single block.
	DefaultCap = 5
	// UnspecifiedNeed fills an empty user_need.
	UnspecifiedNeed = "Unspecified"
	// QualitativeEvidence fills an empty evidence.
	QualitativeEvidence = "Qualitative"
)

// sentimentAliases maps lower-cased model output to the allowed values.
var sentimentAliases = map[string]model.Sentiment{
	"positive": model.SentimentPositive,
	"negative": model.SentimentNegative,
	"neutral":  model.SentimentNeutral,
	"positivo": model.SentimentPositive,
	"negativo": model.SentimentNegative,
	"neutro":   model.SentimentNeutral,
}

// Sanitize validates at most the first limit records (DefaultCap when limit
// is not positive). Records without a quote or topic are dropped. The result
// is never nil.
func Sanitize(raw []model.RawRecord, limit int) []model.Insight {
	if limit <= 0 {
		limit = DefaultCap
	}
	if len(raw) > limit {
		raw = raw[:limit]
	}

	out := make([]model.Insight, 0, len(raw))
	for _, rec := range raw {
		if rec == nil {
			continue
		}
		quote := field(rec, "quote")
		topic := field(rec, "topic")
		if quote == "" || topic == "" {
			continue
		}

		ins := model.Insight{
			Quote:     quote,
			Topic:     topic,
			Sentiment: NormalizeSentiment(field(rec, "sentiment")),
			UserNeed:  field(rec, "user_need"),
			Evidence:  field(rec, "evidence"),
		}
		if ins.UserNeed == "" {
			ins.UserNeed = UnspecifiedNeed
		}
		if ins.Evidence == "" {
			ins.Evidence = QualitativeEvidence
		}
		out = append(out, ins)
	}
	return out
}

// NormalizeSentiment maps s onto the allowed set, defaulting to neutral.
func NormalizeSentiment(s string) model.Sentiment {
	if v, ok := sentimentAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return v
	}
	return model.SentimentNeutral
}

// field returns the trimmed string form of a scalar value. Objects, arrays and
// null yield "".
func field(rec model.RawRecord, key string) string {
	switch v := rec[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	default:
		return ""
	}
}

// Package compose assembles the text handed to the model for one block.
package compose

import (
	"bytes"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/insights-cli/internal/model"
)

const (
	qualitativeHeader  = "QUALITATIVE DATA\n"
	quantitativeHeader = "\n\n---\nQUANTITATIVE DATA (KPIs)\n"
	// SerializationFailed replaces the KPI section when the KPIs cannot be encoded.
	SerializationFailed = "\n\n---\nQUANTITATIVE DATA: [serialization failed]"
)

// Compose returns the extraction payload for a block. KPIs are appended as
// indented JSON only when present.
func Compose(block string, kpis []model.KPI) string {
	var sb strings.Builder
	sb.WriteString(qualitativeHeader)
	sb.WriteString(strings.TrimSpace(block))

	if len(kpis) == 0 {
		return sb.String()
	}

	encoded, err := encodeKPIs(kpis)
	if err != nil {
		zap.L().Warn("compose: kpi serialization failed", zap.Int("kpis", len(kpis)), zap.Error(err))
		sb.WriteString(SerializationFailed)
		return sb.String()
	}

	sb.WriteString(quantitativeHeader)
	sb.WriteString(encoded)
	return sb.String()
}

func encodeKPIs(kpis []model.KPI) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(kpis); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

package scanning

import (
	"encoding/json"
	"time"
)

// UsageReport describes the model usage of one analysis
type UsageReport struct {
	RequestID     string
	PromptVersion string
	Usage         Usage
	Raw           json.RawMessage // usage object exactly as returned
	ReportedAt    time.Time
}

// UsageRecorder receives usage reports. Implementations must not block the
// caller for long and have no way to fail the analysis.
type UsageRecorder interface {
	RecordUsage(report UsageReport)
}

// parseUsage reads token counts from a usage object, ignoring anything it
// doesn't recognize
func parseUsage(raw json.RawMessage) Usage {
	var usage Usage
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &usage)
	}
	return usage
}

// MultiRecorder forwards every report to each of its recorders in order
type MultiRecorder []UsageRecorder

// RecordUsage implements UsageRecorder
func (m MultiRecorder) RecordUsage(report UsageReport) {
	for _, r := range m {
		if r != nil {
			r.RecordUsage(report)
		}
	}
}

package escalation

import "strings"

// Severity grades an escalation for triage ordering.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
	SeverityUrgent Severity = "urgent"
)

// Rank orders severities for triage dashboards; higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityUrgent:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityUrgent:
		return true
	}
	return false
}

var urgentKeywords = []string{
	"chest pain", "heart attack", "stroke", "difficulty breathing",
	"severe bleeding", "unconscious", "suicide", "overdose",
}

var highKeywords = []string{
	"severe pain", "high fever", "infection", "allergic reaction",
	"swelling", "vomiting blood",
}

var mediumKeywords = []string{
	"persistent pain", "worsening symptoms", "medication concerns",
	"new symptoms", "fever",
}

// ClassifySeverity grades an escalation reason by case-insensitive keyword
// match, most severe tier first. Reasons matching no keyword are low.
func ClassifySeverity(reason string) Severity {
	lower := strings.ToLower(reason)
	for _, kw := range urgentKeywords {
		if strings.Contains(lower, kw) {
			return SeverityUrgent
		}
	}
	for _, kw := range highKeywords {
		if strings.Contains(lower, kw) {
			return SeverityHigh
		}
	}
	for _, kw := range mediumKeywords {
		if strings.Contains(lower, kw) {
			return SeverityMedium
		}
	}
	return SeverityLow
}

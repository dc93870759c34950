package types

import "strings"

// AgentKind selects the assistant persona. It decides which payload field
// carries visible text in a completion stream.
type AgentKind string

const (
	AgentGeneral         AgentKind = "general"
	AgentStudyMaterials  AgentKind = "study-materials"
	AgentAcademicAdvisor AgentKind = "academic-advisor"
	AgentNotifications   AgentKind = "notifications"
)

var agentKinds = []AgentKind{
	AgentGeneral,
	AgentStudyMaterials,
	AgentAcademicAdvisor,
	AgentNotifications,
}

// AgentKinds lists every known agent kind in display order.
func AgentKinds() []AgentKind {
	return append([]AgentKind{}, agentKinds...)
}

// ParseAgentKind reports whether raw names a known agent kind.
func ParseAgentKind(raw string) (AgentKind, bool) {
	value := AgentKind(strings.ToLower(strings.TrimSpace(raw)))
	for _, kind := range agentKinds {
		if kind == value {
			return kind, true
		}
	}
	return "", false
}

// NormalizeAgentKind maps blank or unknown kinds to AgentGeneral.
func NormalizeAgentKind(kind AgentKind) AgentKind {
	if parsed, ok := ParseAgentKind(string(kind)); ok {
		return parsed
	}
	return AgentGeneral
}

func (k AgentKind) DisplayName() string {
	switch NormalizeAgentKind(k) {
	case AgentStudyMaterials:
		return "Study Resources"
	case AgentAcademicAdvisor:
		return "Academic Advisor"
	case AgentNotifications:
		return "Notifications"
	default:
		return "General Assistant"
	}
}

func (k AgentKind) Description() string {
	switch NormalizeAgentKind(k) {
	case AgentStudyMaterials:
		return "Find relevant study materials and documents"
	case AgentAcademicAdvisor:
		return "Get course recommendations and academic advice"
	case AgentNotifications:
		return "Send notifications and emails to students"
	default:
		return "General purpose chat bot"
	}
}

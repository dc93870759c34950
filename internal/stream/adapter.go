package stream

import "unichat/internal/types"

// ResponseAdapter picks the user-visible text out of a completion chunk for
// one agent kind.
type ResponseAdapter interface {
	Kind() types.AgentKind
	// Extract returns the fragment carried by chunk, or false when the chunk
	// has no visible text.
	Extract(chunk types.CompletionChunk) (string, bool)
}

// AdapterFor returns the adapter for kind. Unknown kinds get the general
// adapter.
func AdapterFor(kind types.AgentKind) ResponseAdapter {
	switch types.NormalizeAgentKind(kind) {
	case types.AgentStudyMaterials:
		return studyMaterialsAdapter{}
	case types.AgentAcademicAdvisor:
		return academicAdvisorAdapter{}
	case types.AgentNotifications:
		return notificationsAdapter{}
	case types.AgentGeneral:
		return generalAdapter{}
	}
	return generalAdapter{}
}

// Extract is AdapterFor(kind).Extract(chunk).
func Extract(kind types.AgentKind, chunk types.CompletionChunk) (string, bool) {
	return AdapterFor(kind).Extract(chunk)
}

// Finished reports an explicit stop signal in chunk.
func Finished(chunk types.CompletionChunk) bool {
	return chunk.Stopped()
}

type generalAdapter struct{}

func (generalAdapter) Kind() types.AgentKind { return types.AgentGeneral }

func (generalAdapter) Extract(chunk types.CompletionChunk) (string, bool) {
	return fallback(chunk)
}

type academicAdvisorAdapter struct{}

func (academicAdvisorAdapter) Kind() types.AgentKind { return types.AgentAcademicAdvisor }

func (academicAdvisorAdapter) Extract(chunk types.CompletionChunk) (string, bool) {
	return fallback(chunk)
}

type studyMaterialsAdapter struct{}

func (studyMaterialsAdapter) Kind() types.AgentKind { return types.AgentStudyMaterials }

func (studyMaterialsAdapter) Extract(chunk types.CompletionChunk) (string, bool) {
	if chunk.Resource != nil && chunk.Resource.Content != "" {
		return chunk.Resource.Content, true
	}
	return fallback(chunk)
}

type notificationsAdapter struct{}

func (notificationsAdapter) Kind() types.AgentKind { return types.AgentNotifications }

func (notificationsAdapter) Extract(chunk types.CompletionChunk) (string, bool) {
	if chunk.Notification != nil && chunk.Notification.Message != "" {
		return chunk.Notification.Message, true
	}
	return fallback(chunk)
}

func fallback(chunk types.CompletionChunk) (string, bool) {
	content := chunk.DeltaContent()
	return content, content != ""
}

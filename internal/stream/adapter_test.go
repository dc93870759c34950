package stream

import (
	"testing"

	"github.com/stretchr/testify/require"

	"unichat/internal/types"
)

func deltaChunk(content string) types.CompletionChunk {
	return types.CompletionChunk{Choices: []types.CompletionChoice{{Delta: types.CompletionDelta{Content: content}}}}
}

func TestAdapterFallbackForEveryKind(t *testing.T) {
	for _, kind := range types.AgentKinds() {
		adapter := AdapterFor(kind)
		require.Equal(t, kind, adapter.Kind())
		text, ok := adapter.Extract(deltaChunk("generic"))
		require.True(t, ok, kind)
		require.Equal(t, "generic", text, kind)
	}
}

func TestAdapterAgentSpecificFields(t *testing.T) {
	chunk := deltaChunk("generic")
	chunk.Resource = &types.ResourcePayload{Content: "syllabus.pdf"}
	chunk.Notification = &types.NotificationPayload{Message: "email queued"}

	cases := []struct {
		kind types.AgentKind
		want string
	}{
		{types.AgentGeneral, "generic"},
		{types.AgentAcademicAdvisor, "generic"},
		{types.AgentStudyMaterials, "syllabus.pdf"},
		{types.AgentNotifications, "email queued"},
	}
	for _, tc := range cases {
		text, ok := Extract(tc.kind, chunk)
		require.True(t, ok, tc.kind)
		require.Equal(t, tc.want, text, tc.kind)
	}
}

func TestAdapterNoFragment(t *testing.T) {
	empty := types.CompletionChunk{Resource: &types.ResourcePayload{}}
	for _, kind := range types.AgentKinds() {
		_, ok := Extract(kind, empty)
		require.False(t, ok, kind)
	}
}

func TestAdapterUnknownKindUsesGeneral(t *testing.T) {
	require.Equal(t, types.AgentGeneral, AdapterFor("article").Kind())
	require.Equal(t, types.AgentGeneral, AdapterFor("").Kind())
}

func TestFinishedDetectsStop(t *testing.T) {
	chunk := deltaChunk("")
	require.False(t, Finished(chunk))
	chunk.Choices[0].FinishReason = types.FinishReasonStop
	require.True(t, Finished(chunk))
	require.False(t, Finished(types.CompletionChunk{}))
}
